package crypto

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType = errors.New("unsupported type for canonicalization")
	ErrNonStringMapKey = errors.New("map keys must be strings")
	ErrKeyCollision    = errors.New("normalized map key collision")
	ErrCycle           = errors.New("cyclic value")
	ErrNonFiniteNumber = errors.New("non-finite number")
)

// CanonicalizationError reports the JSON path of a value that cannot be
// canonicalized. It is not retryable.
type CanonicalizationError struct {
	Path string
	Err  error
}

func (e *CanonicalizationError) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("canonicalize %s: %v", path, e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }
