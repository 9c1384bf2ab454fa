package schema

import (
	"encoding/json"
	"fmt"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/pkg/types"
)

// lawbookHashExcluded are observation fields that do not change what a
// lawbook permits.
var lawbookHashExcluded = []string{"createdAt"}

// LawbookHash returns the content hash of lb. Two lawbooks that differ only
// in set ordering, surrounding whitespace or createdAt share a hash.
func LawbookHash(lb types.Lawbook) (string, error) {
	data, err := json.Marshal(NormalizeLawbook(lb))
	if err != nil {
		return "", fmt.Errorf("encode lawbook: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("decode lawbook: %w", err)
	}
	for _, field := range lawbookHashExcluded {
		delete(generic, field)
	}
	return crypto.Hash(generic)
}
