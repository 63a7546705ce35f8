package billingsvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/notifications"
	"github.com/dmitrymomot/billing/svc/billingsvc"
)

const testSecret = "whsec_test_secret"

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

// failingStore rejects writes when failWrites is set.
type failingStore struct {
	*billing.MemoryStore
	failWrites bool
}

func (s *failingStore) UpsertByUserID(ctx context.Context, sub *billing.Subscription) error {
	if s.failWrites {
		return errors.New("database is gone")
	}
	return s.MemoryStore.UpsertByUserID(ctx, sub)
}

type fixture struct {
	handler  http.Handler
	store    *failingStore
	ledger   *billing.MemoryLedger
	provider *mockProvider
	inbox    *notifications.Manager
}

func newFixture(t *testing.T, opts ...billingsvc.Option) *fixture {
	t.Helper()
	log := discardLogger()

	catalog, err := billing.DefaultCatalog().WithPriceRefs(map[billing.Plan]string{
		billing.PlanStarter:  "pri_starter",
		billing.PlanGrowth:   "pri_growth",
		billing.PlanBusiness: "pri_business",
	})
	require.NoError(t, err)

	store := &failingStore{MemoryStore: billing.NewMemoryStore()}
	ledger := billing.NewMemoryLedger()
	provider := &mockProvider{}
	inbox := notifications.NewManager(notifications.NewMemoryStorage(), nil, notifications.WithManagerLogger(log))
	notifier := billingsvc.NewNotifier(inbox, billingsvc.WithDashboardURL("https://app.example.com/"), billingsvc.WithNotifierLogger(log))

	dispatcher := billing.NewDispatcher(store, catalog, billing.WithNotifier(notifier), billing.WithDispatcherLogger(log))
	processor := billing.NewProcessor(billing.NewVerifier(testSecret, 0), ledger, dispatcher, billing.WithProcessorLogger(log))
	guard := billing.NewPlanChangeGuard(billing.NewLimitsValidator(store, catalog))
	resolver := billing.NewCustomerResolver(store, provider, log)
	sessions := billing.NewSessions(store, catalog, guard, resolver, provider, billing.WithSessionsLogger(log))
	svc := billing.NewService(processor, sessions, store)

	reg := prometheus.NewRegistry()
	opts = append([]billingsvc.Option{
		billingsvc.WithLogger(log),
		billingsvc.WithMetrics(billingsvc.NewMetrics(reg), reg),
		billingsvc.WithNotifications(inbox),
		billingsvc.WithCatalog(catalog),
		billingsvc.WithHealthChecks(map[string]httpserver.Check{
			"store": func(context.Context) error { return nil },
		}),
	}, opts...)
	server := billingsvc.NewServer(svc, billingsvc.Config{}, opts...)
	return &fixture{handler: server.Router(), store: store, ledger: ledger, provider: provider, inbox: inbox}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) deliver(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/webhooks/paddle", body, map[string]string{
		billing.SignatureHeader: billing.SignPayload(body, testSecret, time.Now()),
		"Content-Type":          "application/json",
	})
}

func asUser(id, email string) map[string]string {
	return map[string]string{"X-User-ID": id, "X-User-Email": email, "Content-Type": "application/json"}
}

func transactionCompleted(t *testing.T, eventID, userID, plan string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":    eventID,
		"event_type":  "transaction.completed",
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":              "txn_1",
			"subscription_id": "sub_1",
			"customer_id":     "ctm_1",
			"custom_data":     map[string]any{"userId": userID, "plan": plan},
			"billing_period": map[string]any{
				"starts_at": "2026-01-01T00:00:00Z",
				"ends_at":   "2026-02-01T00:00:00Z",
			},
		},
	})
	require.NoError(t, err)
	return body
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
