// Package idempotency derives run and request identities from content.
package idempotency

import (
	"errors"
	"strings"

	"github.com/davidahmann/lawgate/internal/crypto"
)

var (
	ErrEmptyScope     = errors.New("idempotency scope is required")
	ErrEmptyAction    = errors.New("idempotency action id is required")
	ErrInvalidSegment = errors.New("idempotency action id must not contain ':'")
)

const separator = ":"

// BuildKey returns scope:actionID:hash(inputs). Semantically equal inputs
// yield the same key regardless of object key order.
func BuildKey(scope, actionID string, inputs any, opts ...crypto.CanonicalOption) (string, error) {
	scope = strings.TrimSpace(scope)
	actionID = strings.TrimSpace(actionID)
	if scope == "" {
		return "", ErrEmptyScope
	}
	if actionID == "" {
		return "", ErrEmptyAction
	}
	if strings.Contains(actionID, separator) {
		return "", ErrInvalidSegment
	}

	digest, err := crypto.Hash(inputs, opts...)
	if err != nil {
		return "", err
	}
	return scope + separator + actionID + separator + digest, nil
}

// SplitKey reverses BuildKey. The scope may itself contain ':' (for example
// "incident:INC-1"), so the key is split from the right.
func SplitKey(key string) (scope, actionID, digest string, ok bool) {
	last := strings.LastIndex(key, separator)
	if last <= 0 {
		return "", "", "", false
	}
	digest = key[last+1:]
	rest := key[:last]
	mid := strings.LastIndex(rest, separator)
	if mid <= 0 {
		return "", "", "", false
	}
	scope, actionID = rest[:mid], rest[mid+1:]
	if !crypto.ValidDigest(digest) || actionID == "" {
		return "", "", "", false
	}
	return scope, actionID, digest, true
}
