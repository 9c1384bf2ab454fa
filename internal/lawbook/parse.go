// Package lawbook loads, versions and serves the lawbook that every gate
// evaluates against.
package lawbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/davidahmann/lawgate/internal/schema"
	"github.com/davidahmann/lawgate/pkg/types"
)

// Parse validates raw JSON against the lawbook schema and returns the
// normalized lawbook. Validation failures are *schema.ValidationError.
func Parse(raw []byte) (types.Lawbook, error) {
	lb, res := schema.ParseAs[types.Lawbook](schema.Lawbook, raw)
	if !res.Success {
		return types.Lawbook{}, res.Err()
	}
	return lb, nil
}

// LoadFile reads a lawbook from a .json, .jsonc, .yaml or .yml file.
func LoadFile(path string) (types.Lawbook, error) {
	// #nosec G304 -- path is operator-provided lawbook path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Lawbook{}, err
	}
	data, err := ToJSON(path, raw)
	if err != nil {
		return types.Lawbook{}, err
	}
	lb, err := Parse(data)
	if err != nil {
		return types.Lawbook{}, fmt.Errorf("%s: %w", path, err)
	}
	return lb, nil
}

// ToJSON converts a lawbook file body to JSON based on the file extension.
// JSONC comments and trailing commas are stripped.
func ToJSON(path string, raw []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".jsonc":
		return jsonc.ToJSON(raw), nil
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", path, err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml %s: %w", path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
