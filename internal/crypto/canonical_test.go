package crypto

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCanonicalizeOrdersKeysAndKeepsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{
			"z": nil,
			"y": true,
		},
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":1,"b":"value","c":null,"d":{"y":true,"z":null}}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeFloats(t *testing.T) {
	cases := map[float64]string{
		1.25: "1.25",
		1.0:  "1",
		-0.5: "-0.5",
		1e21: "1e+21",
	}
	for in, want := range cases {
		got, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("canonicalize %v: %v", in, err)
		}
		if string(got) != want {
			t.Fatalf("canonicalize %v: got %s want %s", in, got, want)
		}
	}
}

func TestCanonicalizeRejectsNonFinite(t *testing.T) {
	_, err := Canonicalize(map[string]any{"x": math.NaN()})
	if !errors.Is(err, ErrNonFiniteNumber) {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
	var cerr *CanonicalizationError
	if !errors.As(err, &cerr) || cerr.Path != "x" {
		t.Fatalf("expected canonicalization error at x, got %v", err)
	}
}

func TestCanonicalizeJSONNumber(t *testing.T) {
	got, err := Canonicalize(json.Number("42"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	got, err = Canonicalize(json.Number("2.50"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "2.5" {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	if _, err := Canonicalize(json.Number("nope")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	input := map[string]any{
		"text": "e\u0301",
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := "{\"text\":\"\u00e9\"}"
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeDoesNotEscapeHTML(t *testing.T) {
	got, err := Canonicalize(map[string]any{"cmd": "a && b <c>"})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"cmd":"a && b <c>"}` {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeMapKeyCollision(t *testing.T) {
	input := map[string]any{
		"e\u0301": 1,
		"\u00e9":  2,
	}

	_, err := Canonicalize(input)
	if !errors.Is(err, ErrKeyCollision) {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestCanonicalizeNonStringMapKey(t *testing.T) {
	input := map[int]any{1: "a"}
	_, err := Canonicalize(input)
	if !errors.Is(err, ErrNonStringMapKey) {
		t.Fatalf("expected ErrNonStringMapKey, got %v", err)
	}
}

func TestCanonicalizeUnsupportedType(t *testing.T) {
	_, err := Canonicalize(map[string]any{"ch": make(chan int)})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestCanonicalizeCycle(t *testing.T) {
	m := map[string]any{"name": "root"}
	m["self"] = m

	_, err := Canonicalize(m)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	s := []any{"x", nil}
	s[1] = s
	if _, err := Canonicalize(s); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for slice, got %v", err)
	}
}

func TestCanonicalizeStructFieldErrors(t *testing.T) {
	type sample struct {
		Score float64 `json:"score"`
	}
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Canonicalize(sample{Score: f}); !errors.Is(err, ErrNonFiniteNumber) {
			t.Fatalf("expected ErrNonFiniteNumber for %v, got %v", f, err)
		}
	}

	type node struct {
		Name string `json:"name"`
		Next *node  `json:"next"`
	}
	n := &node{Name: "loop"}
	n.Next = n
	if _, err := Canonicalize(n); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for struct, got %v", err)
	}

	type holder struct {
		C chan int `json:"c"`
	}
	if _, err := Canonicalize(holder{C: make(chan int)}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for struct, got %v", err)
	}
}

func TestCanonicalizeSharedReferenceIsNotCycle(t *testing.T) {
	shared := map[string]any{"k": "v"}
	input := map[string]any{"a": shared, "b": shared}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":{"k":"v"},"b":{"k":"v"}}` {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeStructUsesJSONTags(t *testing.T) {
	type payload struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
		Skip  string `json:"skip,omitempty"`
	}

	got, err := Canonicalize(payload{Zeta: 1, Alpha: "a"})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"alpha":"a","zeta":1}` {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeSlices(t *testing.T) {
	input := []any{1, nil, "a"}
	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != `[1,null,"a"]` {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	var nilSlice []any
	got, err = Canonicalize(nilSlice)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != "null" {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeSetFields(t *testing.T) {
	input := map[string]any{
		"labels": []any{"b", "a", "b"},
		"steps":  []any{"b", "a", "b"},
		"nested": map[string]any{"labels": []string{"z", "y"}},
	}

	got, err := Canonicalize(input, WithSetFields("labels"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"labels":["a","b"],"nested":{"labels":["y","z"]},"steps":["b","a","b"]}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	labels := []any{"b", "a"}
	input := map[string]any{"labels": labels}

	if _, err := Canonicalize(input, WithSetFields("labels")); err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if labels[0] != "b" || labels[1] != "a" {
		t.Fatalf("input mutated: %v", labels)
	}
}

func TestHashOrderInsensitive(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected equal hashes, got %s vs %s", h1, h2)
	}
	if !ValidDigest(h1) {
		t.Fatalf("expected 64 hex chars, got %q", h1)
	}
	if ShortHash(h1) != h1[:ShortHashLen] {
		t.Fatalf("unexpected short hash %q", ShortHash(h1))
	}
}

func TestHashPropagatesCanonicalizationError(t *testing.T) {
	if _, err := Hash(math.Inf(1)); !errors.Is(err, ErrNonFiniteNumber) {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
}
