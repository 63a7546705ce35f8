package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the minimum master key length and the derived AES-256 key size.
const KeySize = 32

const hkdfSalt = "billing-secrets-v1"

// Sealer encrypts small payloads with AES-256-GCM under a key derived from
// a master key and a purpose label. Sealers for different purposes cannot
// open each other's output.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key for purpose from masterKey.
func NewSealer(masterKey []byte, purpose string) (*Sealer, error) {
	if len(masterKey) < KeySize {
		return nil, ErrInvalidKey
	}

	key := make([]byte, KeySize)
	defer clear(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, []byte(hkdfSalt), []byte(purpose)), key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext || tag. additionalData is authenticated
// but not stored; Open must be given the same value.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}
	return plaintext, nil
}

// GenerateKey returns a random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
