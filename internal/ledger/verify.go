package ledger

import (
	"errors"

	"github.com/davidahmann/lawgate/internal/crypto"
)

var ErrDraftDigestMismatch = errors.New("draft digest mismatch")

// VerifyDraft checks that a stored draft body still hashes to its content
// hash.
func VerifyDraft(rec DraftRecord) error {
	if crypto.DigestHex(rec.BodyJSON) != rec.ContentHash {
		return ErrDraftDigestMismatch
	}
	return nil
}
