package archive

import "errors"

var (
	ErrInvalidKey    = errors.New("archive: invalid key")
	ErrNotFound      = errors.New("archive: object not found")
	ErrInvalidConfig = errors.New("archive: invalid configuration")

	ErrBucketNotFound     = errors.New("archive: bucket not found")
	ErrAccessDenied       = errors.New("archive: access denied")
	ErrServiceUnavailable = errors.New("archive: service temporarily unavailable")
)
