package ledger

import (
	"fmt"
	"time"

	"github.com/davidahmann/lawgate/internal/crypto"
)

// TimeLayout is the stored timestamp form. Every value has nine fractional
// digits and a Z suffix, so text order is time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. It also accepts RFC 3339 values
// written with trimmed fractions.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// MakeDraftRecord canonicalizes a normalized draft document and derives its
// content hash. BodyJSON is exactly the hashed bytes.
func MakeDraftRecord(draftID, schemaID string, doc any, createdAt string) (DraftRecord, error) {
	if draftID == "" {
		return DraftRecord{}, ErrMissingID
	}
	if schemaID == "" {
		return DraftRecord{}, fmt.Errorf("ledger: missing schema id")
	}
	canonical, err := crypto.Canonicalize(doc)
	if err != nil {
		return DraftRecord{}, err
	}
	return DraftRecord{
		DraftID:     draftID,
		SchemaID:    schemaID,
		ContentHash: crypto.DigestHex(canonical),
		BodyJSON:    canonical,
		CreatedAt:   createdAt,
	}, nil
}
