package billingsvc

import (
	"context"
	"path"
	"time"

	"github.com/dmitrymomot/billing/pkg/archive"
	"github.com/dmitrymomot/billing/pkg/billing"
)

// EventArchiver writes claimed deliveries to an archive store, one object
// per event under provider/yyyy/mm/dd/event_id.json.
type EventArchiver struct {
	store   archive.Store
	timeout time.Duration
}

// NewEventArchiver panics if store is nil. A zero timeout leaves the
// request deadline in charge.
func NewEventArchiver(store archive.Store, timeout time.Duration) *EventArchiver {
	if store == nil {
		panic("billingsvc: archive Store is required")
	}
	return &EventArchiver{store: store, timeout: timeout}
}

// EventKey is the archive key of a ledger entry.
func EventKey(e billing.LedgerEntry) string {
	return path.Join(e.Provider, e.ReceivedAt.UTC().Format("2006/01/02"), e.EventID+".json")
}

func (a *EventArchiver) ArchiveEvent(ctx context.Context, e billing.LedgerEntry) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.store.Put(ctx, EventKey(e), e.Payload,
		archive.WithContentType("application/json"),
		archive.WithMetadata(map[string]string{
			"event_id":    e.EventID,
			"event_type":  string(e.EventType),
			"received_at": e.ReceivedAt.UTC().Format(time.RFC3339),
		}),
	)
}

var _ billing.EventArchive = (*EventArchiver)(nil)
