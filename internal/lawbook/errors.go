package lawbook

import "errors"

var (
	ErrVersionNotFound   = errors.New("lawbook version not found")
	ErrNoActiveLawbook   = errors.New("no active lawbook")
	ErrUnsupportedFormat = errors.New("unsupported lawbook file format")
)
