package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortHashLen is the number of hex characters exposed by ShortHash.
const ShortHashLen = 12

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// Hash returns the hex SHA-256 digest of the canonical encoding of v.
func Hash(v any, opts ...CanonicalOption) (string, error) {
	canonical, err := Canonicalize(v, opts...)
	if err != nil {
		return "", err
	}
	return DigestHex(canonical), nil
}

// ShortHash truncates a full hex digest for display. Equality checks must
// always use the full digest.
func ShortHash(full string) string {
	if len(full) <= ShortHashLen {
		return full
	}
	return full[:ShortHashLen]
}

// ValidDigest reports whether s looks like a full hex SHA-256 digest.
func ValidDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
