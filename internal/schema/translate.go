package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// translate flattens a jsonschema error tree into field errors. Limits and
// key lists are read back from the raw schema so messages name them.
func translate(verr *jsonschema.ValidationError, root map[string]any, instance any) []FieldError {
	var out []FieldError
	for _, leaf := range leaves(verr) {
		out = append(out, describe(leaf, root, instance)...)
	}
	return out
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range e.Causes {
		out = append(out, leaves(cause)...)
	}
	return out
}

func describe(e *jsonschema.ValidationError, root map[string]any, instance any) []FieldError {
	instSegs := splitPointer(e.InstanceLocation)
	path := joinSegments(instSegs)
	value, _ := resolve(instance, instSegs)

	kwSegs := splitPointer(fragment(e.AbsoluteKeywordLocation))
	if len(kwSegs) == 0 {
		return []FieldError{{Path: path, Code: CodeInvalid, Message: "Invalid value"}}
	}
	keyword := kwSegs[len(kwSegs)-1]
	node, _ := resolve(root, kwSegs)
	parent, _ := resolve(root, kwSegs[:len(kwSegs)-1])

	if len(kwSegs) >= 2 && kwSegs[len(kwSegs)-2] == "propertyNames" {
		name := ""
		if len(instSegs) > 0 {
			name = instSegs[len(instSegs)-1]
		}
		return []FieldError{{Path: path, Code: CodeUnrecognizedKeys, Message: fmt.Sprintf("Unrecognized key: %q", name)}}
	}

	switch keyword {
	case "required":
		return missingProperties(path, node, value)
	case "additionalProperties":
		if allowed, ok := node.(bool); ok && !allowed {
			return unknownProperties(path, parent, value)
		}
	case "type":
		return []FieldError{{
			Path:    path,
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("Expected %s, received %s", typeNames(node), jsonType(value)),
		}}
	case "minLength":
		if s, ok := value.(string); ok && s == "" {
			return []FieldError{{Path: path, Code: CodeEmpty, Message: "String must not be empty"}}
		}
		return []FieldError{{Path: path, Code: CodeTooSmall, Message: fmt.Sprintf("String must contain at least %d character(s)", intOf(node))}}
	case "maxLength":
		return []FieldError{{Path: path, Code: CodeTooBig, Message: fmt.Sprintf("String must contain at most %d character(s)", intOf(node))}}
	case "minItems":
		if arr, ok := value.([]any); ok && len(arr) == 0 {
			return []FieldError{{Path: path, Code: CodeEmpty, Message: "Array must not be empty"}}
		}
		return []FieldError{{Path: path, Code: CodeTooSmall, Message: fmt.Sprintf("Array must contain at least %d element(s)", intOf(node))}}
	case "maxItems":
		return []FieldError{{Path: path, Code: CodeTooBig, Message: fmt.Sprintf("Array must contain at most %d element(s)", intOf(node))}}
	case "maxProperties":
		return []FieldError{{Path: path, Code: CodeTooBig, Message: fmt.Sprintf("Object must contain at most %d key(s)", intOf(node))}}
	case "minimum":
		return []FieldError{{Path: path, Code: CodeTooSmall, Message: fmt.Sprintf("Number must be greater than or equal to %s", literal(node))}}
	case "maximum":
		return []FieldError{{Path: path, Code: CodeTooBig, Message: fmt.Sprintf("Number must be less than or equal to %s", literal(node))}}
	case "enum":
		return []FieldError{{Path: path, Code: CodeInvalidEnumValue, Message: fmt.Sprintf("Invalid enum value. Expected %s, received %s", enumList(node), literal(value))}}
	case "const":
		return []FieldError{{Path: path, Code: CodeInvalidLiteral, Message: fmt.Sprintf("Invalid literal value, expected %s", literal(node))}}
	case "pattern":
		return []FieldError{{Path: path, Code: CodeInvalidString, Message: fmt.Sprintf("Invalid format: expected pattern %v", node)}}
	case "format":
		return []FieldError{{Path: path, Code: CodeInvalidString, Message: fmt.Sprintf("Invalid %v", node)}}
	}
	return []FieldError{{Path: path, Code: CodeInvalid, Message: "Invalid value"}}
}

func missingProperties(path string, node, value any) []FieldError {
	names, _ := node.([]any)
	obj, _ := value.(map[string]any)
	var out []FieldError
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			continue
		}
		if _, present := obj[name]; present {
			continue
		}
		out = append(out, FieldError{Path: joinPath(path, name), Code: CodeRequired, Message: "Required"})
	}
	if len(out) == 0 {
		out = append(out, FieldError{Path: path, Code: CodeRequired, Message: "Required"})
	}
	return out
}

func unknownProperties(path string, parent, value any) []FieldError {
	schemaNode, _ := parent.(map[string]any)
	allowed, _ := schemaNode["properties"].(map[string]any)
	obj, _ := value.(map[string]any)

	keys := make([]string, 0, len(obj))
	for key := range obj {
		if _, ok := allowed[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]FieldError, 0, len(keys))
	for _, key := range keys {
		out = append(out, FieldError{
			Path:    joinPath(path, key),
			Code:    CodeUnrecognizedKeys,
			Message: fmt.Sprintf("Unrecognized key: %q", key),
		})
	}
	if len(out) == 0 {
		out = append(out, FieldError{Path: path, Code: CodeUnrecognizedKeys, Message: "Unrecognized key"})
	}
	return out
}

// fragment returns the JSON pointer part of an absolute keyword location.
func fragment(location string) string {
	i := strings.IndexByte(location, '#')
	if i < 0 {
		return ""
	}
	frag := location[i+1:]
	if unescaped, err := url.PathUnescape(frag); err == nil {
		frag = unescaped
	}
	return frag
}

func splitPointer(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	segs := strings.Split(ptr, "/")
	for i, s := range segs {
		s = strings.ReplaceAll(s, "~1", "/")
		segs[i] = strings.ReplaceAll(s, "~0", "~")
	}
	return segs
}

func joinSegments(segs []string) string {
	return strings.Join(segs, ".")
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return joinPath(path, strconv.Itoa(i))
}

func resolve(v any, segs []string) (any, bool) {
	cur := v
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[s]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case int:
		return n
	}
	return 0
}

func typeNames(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		names := make([]string, 0, len(t))
		for _, n := range t {
			names = append(names, fmt.Sprint(n))
		}
		return strings.Join(names, " | ")
	}
	return "value"
}

func jsonType(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float64:
		return "number"
	}
	return "unknown"
}

func enumList(v any) string {
	values, _ := v.([]any)
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, literal(value))
	}
	return strings.Join(parts, " | ")
}

func literal(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprint(v)
}
