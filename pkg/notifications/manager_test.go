package notifications_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/notifications"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, n notifications.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func newManager(t *testing.T, d notifications.Deliverer) (*notifications.Manager, *notifications.MemoryStorage) {
	t.Helper()
	storage := notifications.NewMemoryStorage()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := notifications.NewManager(storage, d,
		notifications.WithManagerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		notifications.WithManagerClock(func() time.Time { return now }))
	return m, storage
}

func TestManager_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores then delivers", func(t *testing.T) {
		t.Parallel()
		d := &mockDeliverer{}
		d.On("Deliver", mock.Anything, mock.MatchedBy(func(n notifications.Notification) bool {
			return n.ID == "n1" && n.UserID == "u1" && n.Type == notifications.TypeInfo
		})).Return(nil).Once()
		m, storage := newManager(t, d)

		require.NoError(t, m.Send(ctx, notifications.Notification{ID: "n1", UserID: "u1", Title: "hello"}))

		list, err := storage.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Delivered())
		d.AssertExpectations(t)
	})

	t.Run("same id is delivered once", func(t *testing.T) {
		t.Parallel()
		d := &mockDeliverer{}
		d.On("Deliver", mock.Anything, mock.Anything).Return(nil).Once()
		m, storage := newManager(t, d)

		n := notifications.Notification{ID: "n1", UserID: "u1", Title: "hello"}
		require.NoError(t, m.Send(ctx, n))
		require.NoError(t, m.Send(ctx, n))

		count, err := storage.CountUnread(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		d.AssertNumberOfCalls(t, "Deliver", 1)
	})

	t.Run("failed delivery is retried with the same id", func(t *testing.T) {
		t.Parallel()
		d := &mockDeliverer{}
		d.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
		d.On("Deliver", mock.Anything, mock.Anything).Return(nil).Once()
		m, storage := newManager(t, d)

		n := notifications.Notification{ID: "n1", UserID: "u1", Title: "hello"}
		err := m.Send(ctx, n)
		require.ErrorIs(t, err, notifications.ErrDeliveryFailed)

		list, err := storage.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.False(t, list[0].Delivered())

		require.NoError(t, m.Send(ctx, n))
		list, err = storage.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		assert.True(t, list[0].Delivered())
		d.AssertExpectations(t)
	})

	t.Run("generates id", func(t *testing.T) {
		t.Parallel()
		m, storage := newManager(t, nil)

		require.NoError(t, m.Send(ctx, notifications.Notification{UserID: "u1", Title: "hello"}))
		list, err := storage.List(ctx, "u1", notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.NotEmpty(t, list[0].ID)
	})

	t.Run("invalid notification", func(t *testing.T) {
		t.Parallel()
		m, _ := newManager(t, nil)

		err := m.Send(ctx, notifications.Notification{Title: "no user"})
		assert.ErrorIs(t, err, notifications.ErrInvalidNotification)
	})
}

func TestManager_MarkRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Send(ctx, notifications.Notification{ID: id, UserID: "u1", Title: id}))
	}
	require.NoError(t, m.Send(ctx, notifications.Notification{ID: "other", UserID: "u2", Title: "x"}))

	require.NoError(t, m.MarkRead(ctx, "u1", "a", "other", "missing"))
	require.NoError(t, m.MarkRead(ctx, "u1"))

	count, err := m.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = m.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "other users' notifications are untouched")

	unread, err := m.List(ctx, "u1", notifications.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "c", unread[0].ID, "newest first")
}

func TestMultiDeliverer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ok := &mockDeliverer{}
	ok.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	failing := &mockDeliverer{}
	failing.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("boom"))
	last := &mockDeliverer{}
	last.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	err := notifications.NewMultiDeliverer(ok, failing, last).Deliver(ctx, notifications.Notification{ID: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliverer 1")
	last.AssertCalled(t, "Deliver", mock.Anything, mock.Anything)

	assert.NoError(t, notifications.NewMultiDeliverer(ok, last).Deliver(ctx, notifications.Notification{ID: "n"}))
}
