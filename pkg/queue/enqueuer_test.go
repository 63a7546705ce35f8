package queue_test

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

	"github.com/dmitrymomot/billing/pkg/queue"
)

type testPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

type mockEnqueuerRepository struct {
	mock.Mock
}

func (m *mockEnqueuerRepository) CreateTask(ctx context.Context, task *queue.Task) error {
	return m.Called(ctx, task).Error(0)
}

func TestNewEnqueuer(t *testing.T) {
	t.Parallel()

	_, err := queue.NewEnqueuer(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	e, err := queue.NewEnqueuer(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage()
		e, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue("billing"), queue.WithDefaultMaxAttempts(5))
		require.NoError(t, err)

		id, err := e.Enqueue(context.Background(), testPayload{Message: "hello", Value: 7})
		require.NoError(t, err)

		task, ok := storage.Task(id)
		require.True(t, ok)
		assert.Equal(t, "billing", task.Queue)
		assert.Equal(t, "queue_test.testPayload", task.Name)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		assert.Equal(t, queue.PriorityDefault, task.Priority)
		assert.Equal(t, 5, task.MaxAttempts)
		assert.Zero(t, task.Attempts)

		var got testPayload
		require.NoError(t, json.Unmarshal(task.Payload, &got))
		assert.Equal(t, testPayload{Message: "hello", Value: 7}, got)
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage()
		e, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		before := time.Now()
		id, err := e.Enqueue(context.Background(), &testPayload{},
			queue.WithQueue("notices"),
			queue.WithPriority(queue.PriorityHigh),
			queue.WithMaxAttempts(8),
			queue.WithDelay(time.Hour),
			queue.WithTaskName("custom"),
		)
		require.NoError(t, err)

		task, _ := storage.Task(id)
		assert.Equal(t, "notices", task.Queue)
		assert.Equal(t, "custom", task.Name)
		assert.Equal(t, queue.PriorityHigh, task.Priority)
		assert.Equal(t, 8, task.MaxAttempts)
		assert.True(t, task.RunAt.After(before.Add(59*time.Minute)))
	})

	t.Run("pointer payload uses the type name", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, queue.TaskName(testPayload{}), queue.TaskName(&testPayload{}))
	})

	t.Run("rejects", func(t *testing.T) {
		t.Parallel()
		e, err := queue.NewEnqueuer(queue.NewMemoryStorage())
		require.NoError(t, err)

		_, err = e.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)

		_, err = e.Enqueue(context.Background(), testPayload{}, queue.WithPriority(101))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)

		_, err = e.Enqueue(context.Background(), make(chan int))
		assert.Error(t, err)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()
		repo := &mockEnqueuerRepository{}
		repo.On("CreateTask", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		e, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		id, err := e.Enqueue(context.Background(), testPayload{})
		assert.ErrorIs(t, err, queue.ErrTaskCreateFailed)
		assert.Equal(t, uuid.Nil, id)
		repo.AssertExpectations(t)
	})
}
