package billingsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/archive"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/email"
	"github.com/dmitrymomot/billing/pkg/notifications"
	"github.com/dmitrymomot/billing/pkg/queue"
	"github.com/dmitrymomot/billing/svc/billingsvc"
)

type mockWebhookSender struct {
	mock.Mock
}

func (m *mockWebhookSender) Send(ctx context.Context, endpoint string, data any) error {
	return m.Called(ctx, endpoint, data).Error(0)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, a billing.Alert) error {
	return m.Called(ctx, a).Error(0)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	args := m.Called(ctx, payload, len(opts))
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type mockEmailSource struct {
	mock.Mock
}

func (m *mockEmailSource) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func TestAlerter(t *testing.T) {
	t.Parallel()
	alert := billing.Alert{Severity: billing.SeverityCritical, Title: "event claimed but not applied", EventID: "evt_1"}

	t.Run("posts to endpoint", func(t *testing.T) {
		t.Parallel()
		sender := &mockWebhookSender{}
		sender.On("Send", mock.Anything, "https://ops.example.com/hook", mock.Anything).Return(nil).Once()

		a := billingsvc.NewAlerter(sender, "https://ops.example.com/hook", discardLogger())
		require.NoError(t, a.Alert(context.Background(), alert))
		sender.AssertExpectations(t)
	})

	t.Run("log only without endpoint", func(t *testing.T) {
		t.Parallel()
		sender := &mockWebhookSender{}
		a := billingsvc.NewAlerter(sender, "", discardLogger())
		require.NoError(t, a.Alert(context.Background(), alert))
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

		require.NoError(t, billingsvc.NewAlerter(nil, "https://ops.example.com/hook", nil).Alert(context.Background(), alert))
	})

	t.Run("send failure is returned", func(t *testing.T) {
		t.Parallel()
		sender := &mockWebhookSender{}
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))
		a := billingsvc.NewAlerter(sender, "https://ops.example.com/hook", discardLogger())
		assert.Error(t, a.Alert(context.Background(), alert))
	})
}

func TestRetryScheduler(t *testing.T) {
	t.Parallel()
	task := billing.ApplyEventTask{Provider: billing.ProviderPaddle, EventID: "evt_1", Payload: []byte(`{}`)}

	q := &mockEnqueuer{}
	q.On("Enqueue", mock.Anything, task, 3).Return(uuid.New(), nil).Once()
	require.NoError(t, billingsvc.NewRetryScheduler(q, "billing-events", 8, discardLogger()).ScheduleApply(context.Background(), task))

	failing := &mockEnqueuer{}
	failing.On("Enqueue", mock.Anything, task, 2).Return(uuid.Nil, errors.New("queue down")).Once()
	err := billingsvc.NewRetryScheduler(failing, "billing-events", 0, nil).ScheduleApply(context.Background(), task)
	assert.Error(t, err)

	q.AssertExpectations(t)
	failing.AssertExpectations(t)
	assert.Panics(t, func() { billingsvc.NewRetryScheduler(nil, "q", 0, nil) })
}

func TestRetryScheduler_QueueRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	task := billing.ApplyEventTask{Provider: billing.ProviderPaddle, EventID: "evt_9", Payload: []byte(`{"event_id":"evt_9"}`)}
	require.NoError(t, billingsvc.NewRetryScheduler(enq, "billing-events", 4, nil).ScheduleApply(ctx, task))

	claimed, err := storage.ClaimTask(ctx, uuid.New(), []string{"billing-events"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskName(billing.ApplyEventTask{}), claimed.Name)
	assert.Equal(t, queue.PriorityHigh, claimed.Priority)
	assert.Equal(t, 4, claimed.MaxAttempts)

	var got billing.ApplyEventTask
	require.NoError(t, json.Unmarshal(claimed.Payload, &got))
	assert.Equal(t, task, got)
}

func TestDeadLetterHook(t *testing.T) {
	t.Parallel()
	alerter := &mockAlerter{}
	alerter.On("Alert", mock.Anything, mock.MatchedBy(func(a billing.Alert) bool {
		return a.Severity == billing.SeverityCritical && a.Detail != ""
	})).Return(nil).Once()

	hook := billingsvc.NewDeadLetterHook(alerter, discardLogger())
	hook(context.Background(), queue.DeadTask{TaskID: uuid.New(), Name: "billing.ApplyEventTask", Attempts: 5, Error: "boom", FailedAt: time.Now()})
	alerter.AssertExpectations(t)

	assert.NotPanics(t, func() {
		billingsvc.NewDeadLetterHook(nil, nil)(context.Background(), queue.DeadTask{})
	})
}

func TestNotifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	notice := billing.Notice{
		Kind:       billing.NoticePaymentFailed,
		UserID:     "u1",
		Plan:       billing.PlanGrowth,
		EventID:    "evt_1",
		OccurredAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("queued delivery", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)
		inbox := notifications.NewManager(notifications.NewMemoryStorage(), nil, notifications.WithManagerLogger(discardLogger()))
		n := billingsvc.NewNotifier(inbox, billingsvc.WithNoticeQueue(enq, "billing-notices"), billingsvc.WithNotifierLogger(discardLogger()))

		require.NoError(t, n.Notify(ctx, notice))
		list, err := inbox.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list, "nothing is stored before the worker runs")

		task, err := storage.ClaimTask(ctx, uuid.New(), []string{"billing-notices"}, time.Minute)
		require.NoError(t, err)
		h := n.Handler()
		assert.Equal(t, task.Name, h.Name())
		require.NoError(t, h.Handle(ctx, task.Payload))
		require.NoError(t, h.Handle(ctx, task.Payload), "redelivery collapses")

		list, err = inbox.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "evt_1:payment_failed", list[0].ID)
		assert.Equal(t, notifications.TypeError, list[0].Type)
	})

	t.Run("missing recipient is not retried", func(t *testing.T) {
		t.Parallel()
		deliverer := notifications.DelivererFunc(func(context.Context, notifications.Notification) error {
			return email.ErrNoRecipient
		})
		inbox := notifications.NewManager(notifications.NewMemoryStorage(), deliverer, notifications.WithManagerLogger(discardLogger()))
		n := billingsvc.NewNotifier(inbox, billingsvc.WithNotifierLogger(discardLogger()))

		payload, err := json.Marshal(billing.NoticeTask{Notice: notice})
		require.NoError(t, err)
		assert.NoError(t, n.Handler().Handle(ctx, payload))
		assert.ErrorIs(t, n.Notify(ctx, notice), notifications.ErrDeliveryFailed)
	})
}

func TestNoticeNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  billing.NoticeKind
		typ   notifications.Type
		title string
		url   string
	}{
		{billing.NoticeSubscriptionConfirmed, notifications.TypeSuccess, "Your Growth plan is active", "https://app.example.com"},
		{billing.NoticeSubscriptionCanceled, notifications.TypeWarning, "Your subscription was canceled", "https://app.example.com/billing"},
		{billing.NoticeSubscriptionPastDue, notifications.TypeWarning, "Your subscription is past due", "https://app.example.com/billing"},
		{billing.NoticePaymentFailed, notifications.TypeError, "Payment failed", "https://app.example.com/billing"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			n := billingsvc.NoticeNotification(billing.Notice{Kind: tt.kind, UserID: "u1", Plan: billing.PlanGrowth, EventID: "evt"}, "https://app.example.com")
			assert.Equal(t, "evt:"+string(tt.kind), n.ID)
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, tt.url, n.ActionURL)
			assert.NotEmpty(t, n.Message)
			assert.NoError(t, n.Validate())
		})
	}
}

func TestRecipientLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := billing.NewMemoryStore()
	withCustomer := billing.NewFreeSubscription("u1", time.Now())
	withCustomer.ProviderCustomerID = "ctm_1"
	require.NoError(t, store.UpsertByUserID(ctx, withCustomer))
	require.NoError(t, store.UpsertByUserID(ctx, billing.NewFreeSubscription("u2", time.Now())))

	source := &mockEmailSource{}
	source.On("CustomerEmail", mock.Anything, "ctm_1").Return("jo@example.com", nil).Once()
	lookup := billingsvc.NewRecipientLookup(store, source)

	addr, err := lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", addr)

	addr, err = lookup(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, addr)

	addr, err = lookup(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, addr)
	source.AssertExpectations(t)
}

func TestCachedEmailSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	source := &mockEmailSource{}
	source.On("CustomerEmail", mock.Anything, "ctm_1").Return("jo@example.com", nil).Once()
	source.On("CustomerEmail", mock.Anything, "ctm_2").Return("", nil).Twice()
	source.On("CustomerEmail", mock.Anything, "ctm_3").Return("", errors.New("provider down")).Once()

	cached := billingsvc.NewCachedEmailSource(source, 8, time.Minute)
	for range 3 {
		addr, err := cached.CustomerEmail(ctx, "ctm_1")
		require.NoError(t, err)
		assert.Equal(t, "jo@example.com", addr)
	}
	for range 2 {
		addr, err := cached.CustomerEmail(ctx, "ctm_2")
		require.NoError(t, err)
		assert.Empty(t, addr)
	}
	_, err := cached.CustomerEmail(ctx, "ctm_3")
	assert.Error(t, err)
	source.AssertExpectations(t)
}

func TestEventArchiver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := archive.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	entry := billing.LedgerEntry{
		EventID:    "evt_7",
		Provider:   billing.ProviderPaddle,
		EventType:  billing.EventTransactionCompleted,
		Payload:    []byte(`{"event_id":"evt_7"}`),
		ReceivedAt: time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC),
	}
	a := billingsvc.NewEventArchiver(store, time.Second)
	require.NoError(t, a.ArchiveEvent(ctx, entry))

	key := billingsvc.EventKey(entry)
	assert.Equal(t, "paddle/2026/10/14/evt_7.json", key)
	body, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"evt_7"}`, string(body))

	assert.Panics(t, func() { billingsvc.NewEventArchiver(nil, 0) })
}
