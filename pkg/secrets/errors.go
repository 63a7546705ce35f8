package secrets

import "errors"

var (
	ErrInvalidKey          = errors.New("invalid master key: must be at least 32 bytes")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	ErrSealFailed          = errors.New("seal failed")
	ErrOpenFailed          = errors.New("open failed")
	ErrInvalidCiphertext   = errors.New("invalid ciphertext format")
)
