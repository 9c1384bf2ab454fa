package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/davidahmann/lawgate/pkg/types"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// SchemaID names one of the embedded document schemas.
type SchemaID string

const (
	Lawbook       SchemaID = "lawbook"
	ChangeRequest SchemaID = "change_request"
	IssueDraft    SchemaID = "issue_draft"
	WorkPlan      SchemaID = "work_plan"
)

const (
	// MaxPayloadBytes bounds the size of an encoded document.
	MaxPayloadBytes = 256 << 10
	// MaxErrors caps the errors reported for a single document.
	MaxErrors = 100
)

const schemaBaseURL = "https://lawgate.schemas.local/"

// IDs returns every known schema id in byte order.
func IDs() []SchemaID {
	return []SchemaID{ChangeRequest, IssueDraft, Lawbook, WorkPlan}
}

// ParseID maps a string onto a known SchemaID.
func ParseID(s string) (SchemaID, error) {
	for _, id := range IDs() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSchema, s)
}

// FieldError is one caller-facing validation failure.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of Validate or Parse. Data holds the typed document
// (types.Lawbook, types.ChangeRequest, types.IssueDraft or types.WorkPlan)
// when Success is true.
type Result struct {
	Schema  SchemaID     `json:"schema"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Err returns nil for a successful result and a *ValidationError otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &ValidationError{Schema: r.Schema, Errors: r.Errors}
}

type document struct {
	constraint string
	decode     func([]byte) (any, error)
	check      func(any) []FieldError
	normalize  func(any) (any, error)
}

var documents = map[SchemaID]document{
	Lawbook: {
		constraint: ">= 0.7.0, < 0.8.0",
		decode:     decodeTyped[types.Lawbook],
		check:      typedCheck(checkLawbook),
		normalize:  typedNormalize(NormalizeLawbook),
	},
	ChangeRequest: {
		constraint: ">= 0.7.0, < 0.8.0",
		decode:     decodeTyped[types.ChangeRequest],
		check:      typedCheck(checkChangeRequest),
		normalize:  typedNormalize(NormalizeChangeRequest),
	},
	IssueDraft: {
		constraint: "~1.0",
		decode:     decodeTyped[types.IssueDraft],
		check:      typedCheck(checkIssueDraft),
		normalize:  typedNormalize(NormalizeIssueDraft),
	},
	WorkPlan: {
		constraint: ">= 1.0.0, < 2.0.0",
		decode:     decodeTyped[types.WorkPlan],
		check:      typedCheck(checkWorkPlan),
		normalize:  typedNormalize(NormalizeWorkPlan),
	},
}

type compiled struct {
	document
	schema  *jsonschema.Schema
	raw     map[string]any
	version *semver.Constraints
}

var (
	loadOnce sync.Once
	registry map[SchemaID]*compiled
	loadErr  error
)

func load() (map[SchemaID]*compiled, error) {
	loadOnce.Do(func() {
		registry, loadErr = compileAll()
	})
	return registry, loadErr
}

func compileAll() (map[SchemaID]*compiled, error) {
	out := make(map[SchemaID]*compiled, len(documents))
	for id, doc := range documents {
		data, err := schemaFS.ReadFile("schemas/" + string(id) + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", id, err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode schema %s: %w", id, err)
		}

		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		url := schemaBaseURL + string(id) + ".schema.json"
		if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", id, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", id, err)
		}

		constraint, err := semver.NewConstraint(doc.constraint)
		if err != nil {
			return nil, fmt.Errorf("version constraint %s: %w", id, err)
		}
		out[id] = &compiled{document: doc, schema: sch, raw: raw, version: constraint}
	}
	return out, nil
}

func lookup(id SchemaID) (*compiled, []FieldError) {
	reg, err := load()
	if err != nil {
		return nil, []FieldError{{Code: CodeInvalid, Message: "Schema unavailable"}}
	}
	c, ok := reg[id]
	if !ok {
		return nil, []FieldError{{Code: CodeUnknownSchema, Message: fmt.Sprintf("Unknown schema %q", id)}}
	}
	return c, nil
}

// Validate checks raw against the schema named by id. Raw may be encoded
// JSON ([]byte or json.RawMessage) or any JSON-serializable Go value.
// Strings are not trimmed and collections are not reordered; see Parse.
func Validate(id SchemaID, raw any) Result {
	c, errs := lookup(id)
	if errs != nil {
		return failure(id, errs)
	}

	data, errs := encodeInput(raw)
	if errs != nil {
		return failure(id, errs)
	}

	instance, err := decodeInstance(data)
	if err != nil {
		return failure(id, []FieldError{{Code: CodeInvalidJSON, Message: "Invalid JSON"}})
	}

	versionErrs := c.checkVersion(instance)
	if err := c.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return failure(id, append(versionErrs, translate(verr, c.raw, instance)...))
		}
		return failure(id, append(versionErrs, FieldError{Code: CodeInvalid, Message: "Invalid document"}))
	}
	if versionErrs != nil {
		return failure(id, versionErrs)
	}

	value, err := c.decode(data)
	if err != nil {
		return failure(id, []FieldError{{Code: CodeInvalidType, Message: "Document does not match its declared types"}})
	}

	errs = append(blankStrings(instance, nil), c.check(value)...)
	if len(errs) > 0 {
		return failure(id, errs)
	}
	return Result{Schema: id, Success: true, Data: value}
}

// Parse validates raw and returns the normalized typed document.
func Parse(id SchemaID, raw any) Result {
	res := Validate(id, raw)
	if !res.Success {
		return res
	}
	normalized, err := Normalize(id, res.Data)
	if err != nil {
		return failure(id, []FieldError{{Code: CodeInvalid, Message: "Document could not be normalized"}})
	}
	res.Data = normalized
	return res
}

// ParseAs is Parse with the typed document returned directly.
func ParseAs[T any](id SchemaID, raw any) (T, Result) {
	var zero T
	res := Parse(id, raw)
	if !res.Success {
		return zero, res
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, failure(id, []FieldError{{Code: CodeInvalidType, Message: fmt.Sprintf("Schema %s does not produce %T", id, zero)}})
	}
	return v, res
}

// Normalize returns a copy of doc with strings trimmed and unordered
// collections deduplicated and sorted. doc must already be valid. It
// accepts the typed document, a pointer to it, or its generic JSON form.
func Normalize(id SchemaID, doc any) (any, error) {
	d, ok := documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, id)
	}
	return d.normalize(doc)
}

func encodeInput(raw any) ([]byte, []FieldError) {
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, []FieldError{{Code: CodeInvalidType, Message: "Document is not JSON-serializable"}}
		}
		data = encoded
	}
	if len(data) > MaxPayloadBytes {
		return nil, []FieldError{{Code: CodePayloadTooLarge, Message: fmt.Sprintf("Payload exceeds %d bytes", MaxPayloadBytes)}}
	}
	return data, nil
}

// decodeInstance decodes a single JSON value with numbers kept as
// json.Number, the form the validator expects. Trailing data is an error.
func decodeInstance(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return instance, nil
}

func (c *compiled) checkVersion(instance any) []FieldError {
	obj, ok := instance.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["version"].(string)
	if !ok {
		return nil
	}
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err == nil && c.version.Check(v) {
		return nil
	}
	return []FieldError{{
		Path:    "version",
		Code:    CodeUnsupportedVersion,
		Message: fmt.Sprintf("Unsupported version %q: expected %s", raw, c.constraint),
	}}
}

func failure(id SchemaID, errs []FieldError) Result {
	return Result{Schema: id, Errors: sortErrors(errs)}
}

// sortErrors orders errors by path, code and message, drops exact
// duplicates and caps the list at MaxErrors.
func sortErrors(errs []FieldError) []FieldError {
	out := make([]FieldError, len(errs))
	copy(out, errs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Message < out[j].Message
	})
	deduped := out[:0]
	for _, e := range out {
		if len(deduped) > 0 && e == deduped[len(deduped)-1] {
			continue
		}
		deduped = append(deduped, e)
	}
	if len(deduped) > MaxErrors {
		deduped = deduped[:MaxErrors]
	}
	return deduped
}

func decodeTyped[T any](data []byte) (any, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func typedCheck[T any](fn func(T) []FieldError) func(any) []FieldError {
	return func(v any) []FieldError {
		doc, ok := v.(T)
		if !ok {
			return []FieldError{{Code: CodeInvalidType, Message: "Unexpected document type"}}
		}
		return fn(doc)
	}
}

func typedNormalize[T any](fn func(T) T) func(any) (any, error) {
	return func(v any) (any, error) {
		doc, err := asDocument[T](v)
		if err != nil {
			return nil, err
		}
		return fn(doc), nil
	}
}

func asDocument[T any](v any) (T, error) {
	var zero T
	switch doc := v.(type) {
	case T:
		return doc, nil
	case *T:
		if doc == nil {
			return zero, ErrNilDocument
		}
		return *doc, nil
	case nil:
		return zero, ErrNilDocument
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode document: %w", err)
	}
	out, err := decodeTyped[T](data)
	if err != nil {
		return zero, fmt.Errorf("decode document: %w", err)
	}
	return out.(T), nil
}
