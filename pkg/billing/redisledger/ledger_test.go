package redisledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billing/redisledger"
	"github.com/dmitrymomot/billing/pkg/secrets"
)

func newLedger(t *testing.T, opts ...redisledger.Option) (*redisledger.Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisledger.New(client, opts...), mr
}

func entry(id string) billing.LedgerEntry {
	return billing.LedgerEntry{
		EventID:    id,
		Provider:   billing.ProviderPaddle,
		EventType:  billing.EventTransactionCompleted,
		Payload:    []byte(`{}`),
		ReceivedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestLedger(t *testing.T) {
	t.Parallel()

	t.Run("claim forget reclaim", func(t *testing.T) {
		t.Parallel()
		l, mr := newLedger(t)
		ctx := context.Background()

		ok, err := l.RecordEventIfNew(ctx, entry("evt_1"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, mr.Exists(redisledger.DefaultPrefix+"paddle:evt_1"))
		assert.Zero(t, mr.TTL(redisledger.DefaultPrefix+"paddle:evt_1"))

		ok, err = l.RecordEventIfNew(ctx, entry("evt_1"))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, l.ForgetEvent(ctx, billing.ProviderPaddle, "evt_1"))
		ok, err = l.RecordEventIfNew(ctx, entry("evt_1"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("forgetting an unknown event is a no-op", func(t *testing.T) {
		t.Parallel()
		l, _ := newLedger(t)
		assert.NoError(t, l.ForgetEvent(context.Background(), billing.ProviderPaddle, "evt_none"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		t.Parallel()
		l, mr := newLedger(t, redisledger.WithPrefix("test:"))
		_, err := l.RecordEventIfNew(context.Background(), entry("evt_p"))
		require.NoError(t, err)
		assert.True(t, mr.Exists("test:paddle:evt_p"))
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		t.Parallel()
		l, _ := newLedger(t)
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.RecordEventIfNew(context.Background(), entry("evt_race"))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("keeps the payload", func(t *testing.T) {
		t.Parallel()
		l, _ := newLedger(t)
		ctx := context.Background()
		e := entry("evt_body")
		e.Payload = []byte(`{"event_id":"evt_body"}`)
		_, err := l.RecordEventIfNew(ctx, e)
		require.NoError(t, err)

		got, err := l.Payload(ctx, billing.ProviderPaddle, "evt_body")
		require.NoError(t, err)
		assert.JSONEq(t, `{"event_id":"evt_body"}`, string(got))

		_, err = l.Payload(ctx, billing.ProviderPaddle, "evt_none")
		assert.ErrorIs(t, err, billing.ErrNotFound)
	})

	t.Run("seals the payload", func(t *testing.T) {
		t.Parallel()
		key, err := secrets.GenerateKey()
		require.NoError(t, err)
		sealer, err := secrets.NewSealer(key, "ledger-payload")
		require.NoError(t, err)
		l, mr := newLedger(t, redisledger.WithPayloadSealer(sealer))
		ctx := context.Background()

		e := entry("evt_sealed")
		e.Payload = []byte(`{"customer":"secret@example.com"}`)
		_, err = l.RecordEventIfNew(ctx, e)
		require.NoError(t, err)

		stored, err := mr.Get(redisledger.DefaultPrefix + "paddle:evt_sealed")
		require.NoError(t, err)
		assert.Contains(t, stored, `"sealed":true`)

		got, err := l.Payload(ctx, billing.ProviderPaddle, "evt_sealed")
		require.NoError(t, err)
		assert.Equal(t, e.Payload, got)
	})

	t.Run("server errors surface", func(t *testing.T) {
		t.Parallel()
		l, mr := newLedger(t)
		mr.Close()
		_, err := l.RecordEventIfNew(context.Background(), entry("evt_down"))
		assert.Error(t, err)
	})
}
