// Package secrets seals payloads at rest.
//
// A Sealer derives an AES-256 key from a master key with HKDF-SHA-256, using
// a purpose label as the HKDF info so one master key can serve several
// stores without key reuse. Output is self-contained: the random nonce is
// prepended to the GCM ciphertext.
//
//	sealer, err := secrets.NewSealer(masterKey, "ledger-payload")
//	sealed, err := sealer.Seal(body, []byte(eventID))
//	body, err = sealer.Open(sealed, []byte(eventID))
//
// Errors wrap ErrInvalidKey, ErrSealFailed, ErrOpenFailed or
// ErrInvalidCiphertext.
package secrets
