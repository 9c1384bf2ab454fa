package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSchema = errors.New("unknown schema")
	ErrNilDocument   = errors.New("nil document")

	errTrailingData = errors.New("trailing data after document")
)

// Error codes carried in FieldError.Code.
const (
	CodeRequired           = "required"
	CodeUnrecognizedKeys   = "unrecognized_keys"
	CodeInvalidType        = "invalid_type"
	CodeTooSmall           = "too_small"
	CodeTooBig             = "too_big"
	CodeEmpty              = "empty"
	CodeInvalidEnumValue   = "invalid_enum_value"
	CodeInvalidLiteral     = "invalid_literal"
	CodeInvalidString      = "invalid_string"
	CodeDuplicate          = "duplicate"
	CodeUnsupportedVersion = "unsupported_version"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInvalidJSON        = "invalid_json"
	CodeUnknownSchema      = "unknown_schema"
	CodeInvalid            = "invalid"
)

// ValidationError wraps the field errors of a rejected document.
type ValidationError struct {
	Schema SchemaID
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s: invalid document", e.Schema)
	}
	first := e.Errors[0]
	path := first.Path
	if path == "" {
		path = "$"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: %s: %s", e.Schema, path, first.Message)
	}
	return fmt.Sprintf("%s: %s: %s (and %d more)", e.Schema, path, first.Message, len(e.Errors)-1)
}
