package secrets_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/secrets"
)

func newSealer(t *testing.T, purpose string) (*secrets.Sealer, []byte) {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	s, err := secrets.NewSealer(key, purpose)
	require.NoError(t, err)
	return s, key
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newSealer(t, "ledger-payload")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"event", []byte(`{"event_id":"evt_1","event_type":"subscription.updated"}`)},
		{"binary", []byte{0x00, 0xFF, 0x10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sealed, err := s.Seal(tt.data, []byte("evt_1"))
			require.NoError(t, err)
			if len(tt.data) > 0 {
				assert.False(t, bytes.Contains(sealed, tt.data))
			}

			opened, err := s.Open(sealed, []byte("evt_1"))
			require.NoError(t, err)
			assert.Equal(t, tt.data, opened)
		})
	}
}

func TestSealer_NonceIsRandom(t *testing.T) {
	t.Parallel()
	s, _ := newSealer(t, "ledger-payload")

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_Rejects(t *testing.T) {
	t.Parallel()
	s, key := newSealer(t, "ledger-payload")
	sealed, err := s.Seal([]byte("payload"), []byte("evt_1"))
	require.NoError(t, err)

	t.Run("other additional data", func(t *testing.T) {
		t.Parallel()
		_, err := s.Open(sealed, []byte("evt_2"))
		assert.ErrorIs(t, err, secrets.ErrOpenFailed)
	})

	t.Run("other purpose", func(t *testing.T) {
		t.Parallel()
		other, err := secrets.NewSealer(key, "queue-payload")
		require.NoError(t, err)
		_, err = other.Open(sealed, []byte("evt_1"))
		assert.ErrorIs(t, err, secrets.ErrOpenFailed)
	})

	t.Run("tampered", func(t *testing.T) {
		t.Parallel()
		tampered := bytes.Clone(sealed)
		tampered[len(tampered)-1] ^= 0x01
		_, err := s.Open(tampered, []byte("evt_1"))
		assert.ErrorIs(t, err, secrets.ErrOpenFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := s.Open(sealed[:8], []byte("evt_1"))
		assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)
	})
}

func TestNewSealer_ShortKey(t *testing.T) {
	t.Parallel()
	_, err := secrets.NewSealer(make([]byte, 16), "ledger-payload")
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	// Longer keys are accepted.
	_, err = secrets.NewSealer(bytes.Repeat([]byte{1}, 64), "ledger-payload")
	assert.NoError(t, err)
}
