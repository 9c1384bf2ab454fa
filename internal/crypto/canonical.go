package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// CanonicalOption tunes Canonicalize.
type CanonicalOption func(*canonicalConfig)

type canonicalConfig struct {
	setFields map[string]struct{}
}

// WithSetFields marks object fields whose array values are unordered sets.
// Elements of those arrays are deduplicated and sorted by their canonical
// encoding, at any nesting level.
func WithSetFields(names ...string) CanonicalOption {
	return func(c *canonicalConfig) {
		if c.setFields == nil {
			c.setFields = make(map[string]struct{}, len(names))
		}
		for _, name := range names {
			c.setFields[name] = struct{}{}
		}
	}
}

// Canonicalize encodes v as canonical JSON bytes.
func Canonicalize(v any, opts ...CanonicalOption) ([]byte, error) {
	cfg := canonicalConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	enc := encoder{cfg: cfg, active: map[visitKey]struct{}{}}
	var buf bytes.Buffer
	if err := enc.writeValue(&buf, v, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type mapEntry struct {
	key   string
	value any
}

type visitKey struct {
	ptr uintptr
	len int
}

type encoder struct {
	cfg canonicalConfig
	// active holds the containers on the current descent path.
	active map[visitKey]struct{}
}

func fail(path string, err error) error {
	return &CanonicalizationError{Path: path, Err: err}
}

func (e *encoder) writeValue(buf *bytes.Buffer, v any, path string) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}

	switch value := v.(type) {
	case json.Number:
		return writeJSONNumber(buf, value, path)
	case json.RawMessage:
		return e.writeRaw(buf, value, path)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return writeString(buf, rv.String())
	case reflect.Bool:
		if rv.Bool() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, rv.Float(), path)
	case reflect.Map:
		return e.writeMap(buf, rv, path)
	case reflect.Slice, reflect.Array:
		return e.writeSlice(buf, rv, path)
	case reflect.Struct:
		return e.writeStruct(buf, rv, path)
	case reflect.Invalid:
		buf.WriteString("null")
		return nil
	default:
		return fail(path, ErrUnsupportedType)
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

func writeJSONNumber(buf *bytes.Buffer, n json.Number, path string) error {
	s := n.String()
	if !stringsHasFloat(s) {
		if value, err := strconv.ParseInt(s, 10, 64); err == nil {
			buf.WriteString(strconv.FormatInt(value, 10))
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fail(path, ErrUnsupportedType)
	}
	return writeFloat(buf, f, path)
}

func writeFloat(buf *bytes.Buffer, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fail(path, ErrNonFiniteNumber)
	}
	formatted, err := jcs.NumberToJSON(f)
	if err != nil {
		return fail(path, ErrNonFiniteNumber)
	}
	buf.WriteString(formatted)
	return nil
}

// writeStruct routes structs through encoding/json so json tags decide the
// field names, then canonicalizes the generic form.
func (e *encoder) writeStruct(buf *bytes.Buffer, rv reflect.Value, path string) error {
	raw, err := json.Marshal(rv.Interface())
	if err != nil {
		return fail(path, marshalCause(err))
	}
	return e.writeRaw(buf, raw, path)
}

// marshalCause maps an encoding/json failure onto the package sentinels.
func marshalCause(err error) error {
	var valueErr *json.UnsupportedValueError
	if errors.As(err, &valueErr) {
		switch {
		case strings.HasPrefix(valueErr.Str, "encountered a cycle"):
			return ErrCycle
		case valueErr.Value.Kind() == reflect.Float32 || valueErr.Value.Kind() == reflect.Float64:
			return ErrNonFiniteNumber
		}
	}
	return ErrUnsupportedType
}

func (e *encoder) writeRaw(buf *bytes.Buffer, raw []byte, path string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fail(path, ErrUnsupportedType)
	}
	return e.writeValue(buf, generic, path)
}

func (e *encoder) enter(rv reflect.Value, length int, path string) (visitKey, error) {
	key := visitKey{ptr: rv.Pointer(), len: length}
	if key.ptr == 0 {
		return key, nil
	}
	if _, ok := e.active[key]; ok {
		return key, fail(path, ErrCycle)
	}
	e.active[key] = struct{}{}
	return key, nil
}

func (e *encoder) leave(key visitKey) {
	delete(e.active, key)
}

func (e *encoder) writeMap(buf *bytes.Buffer, rv reflect.Value, path string) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fail(path, ErrNonStringMapKey)
	}
	if rv.IsNil() {
		buf.WriteString("null")
		return nil
	}
	visit, err := e.enter(rv, -1, path)
	if err != nil {
		return err
	}
	defer e.leave(visit)

	entries := make([]mapEntry, 0, rv.Len())
	seen := map[string]struct{}{}

	iter := rv.MapRange()
	for iter.Next() {
		keyStr := norm.NFC.String(iter.Key().String())
		if _, ok := seen[keyStr]; ok {
			return fail(joinPath(path, keyStr), ErrKeyCollision)
		}
		seen[keyStr] = struct{}{}
		entries = append(entries, mapEntry{key: keyStr, value: iter.Value().Interface()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})

	buf.WriteByte('{')
	for i, entry := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, entry.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		childPath := joinPath(path, entry.key)
		if _, ok := e.cfg.setFields[entry.key]; ok {
			if err := e.writeSet(buf, entry.value, childPath); err != nil {
				return err
			}
			continue
		}
		if err := e.writeValue(buf, entry.value, childPath); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (e *encoder) writeSlice(buf *bytes.Buffer, rv reflect.Value, path string) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		buf.WriteString("null")
		return nil
	}
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		visit, err := e.enter(rv, rv.Len(), path)
		if err != nil {
			return err
		}
		defer e.leave(visit)
	}

	buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.writeValue(buf, rv.Index(i).Interface(), indexPath(path, i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// writeSet encodes an unordered array field: each element is canonicalized on
// its own, duplicates are dropped and the encodings are sorted byte-wise.
// Non-array values fall back to the regular encoding.
func (e *encoder) writeSet(buf *bytes.Buffer, v any, path string) error {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || (rv.Kind() == reflect.Slice && rv.IsNil()) {
		return e.writeValue(buf, v, path)
	}

	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		visit, err := e.enter(rv, rv.Len(), path)
		if err != nil {
			return err
		}
		defer e.leave(visit)
	}

	encoded := make([][]byte, 0, rv.Len())
	seen := make(map[string]struct{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		var elem bytes.Buffer
		if err := e.writeValue(&elem, rv.Index(i).Interface(), indexPath(path, i)); err != nil {
			return err
		}
		if _, ok := seen[elem.String()]; ok {
			continue
		}
		seen[elem.String()] = struct{}{}
		encoded = append(encoded, elem.Bytes())
	}
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})

	buf.WriteByte('[')
	for i, elem := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(elem)
	}
	buf.WriteByte(']')
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func stringsHasFloat(s string) bool {
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' {
			return true
		}
	}
	return false
}
