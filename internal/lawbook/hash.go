package lawbook

import (
	"github.com/davidahmann/lawgate/internal/schema"
	"github.com/davidahmann/lawgate/pkg/types"
)

// ComputeHash returns the content hash of lb; see schema.LawbookHash.
func ComputeHash(lb types.Lawbook) (string, error) {
	return schema.LawbookHash(lb)
}
