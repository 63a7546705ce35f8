package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
)

const testSecret = "whsec_test_secret"

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return baseTime }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerID string, subscriptionIDs ...string) (string, error) {
	args := m.Called(ctx, customerID, subscriptionIDs)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, subscriptionID string) (billing.BillingPeriod, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(billing.BillingPeriod), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n billing.Notice) error {
	return m.Called(ctx, n).Error(0)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, a billing.Alert) error {
	return m.Called(ctx, a).Error(0)
}

type mockRetry struct {
	mock.Mock
}

func (m *mockRetry) ScheduleApply(ctx context.Context, task billing.ApplyEventTask) error {
	return m.Called(ctx, task).Error(0)
}

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	*billing.MemoryStore
	mu         sync.Mutex
	failWrites error
}

func (s *flakyStore) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *flakyStore) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWrites
}

func (s *flakyStore) UpsertByUserID(ctx context.Context, sub *billing.Subscription) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.MemoryStore.UpsertByUserID(ctx, sub)
}

func (s *flakyStore) UpdateByProviderSubscriptionID(ctx context.Context, id string, sub *billing.Subscription) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.MemoryStore.UpdateByProviderSubscriptionID(ctx, id, sub)
}

// stuckLedger claims like MemoryLedger but cannot release.
type stuckLedger struct {
	*billing.MemoryLedger
}

func (stuckLedger) ForgetEvent(context.Context, string, string) error {
	return errors.New("ledger unavailable")
}

func eventBody(t *testing.T, id string, typ billing.EventType, occurredAt time.Time, data map[string]any) []byte {
	t.Helper()
	env := map[string]any{
		"event_id":   id,
		"event_type": string(typ),
		"data":       data,
	}
	if !occurredAt.IsZero() {
		env["occurred_at"] = occurredAt.Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func customData(userID, plan string) map[string]any {
	return map[string]any{"userId": userID, "plan": plan}
}

func periodData(start, end time.Time) map[string]any {
	return map[string]any{
		"starts_at": start.Format(time.RFC3339),
		"ends_at":   end.Format(time.RFC3339),
	}
}

func mustParse(t *testing.T, body []byte) *billing.Event {
	t.Helper()
	ev, err := billing.ParseEvent(body)
	require.NoError(t, err)
	return ev
}

func seed(t *testing.T, store billing.Store, sub *billing.Subscription) {
	t.Helper()
	require.NoError(t, store.UpsertByUserID(context.Background(), sub))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
