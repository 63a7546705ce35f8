package queue

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billing/pkg/pg"
)

// Migrations holds the goose migrations for the queue tables.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "queue_schema_migrations"
)

// PostgresStorage is a queue store on PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED, so any number of workers may poll the same queues.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) CreateTask(ctx context.Context, t *Task) error {
	if t == nil {
		return ErrPayloadNil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_tasks (id, queue, name, payload, status, priority, attempts, max_attempts, run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Queue, t.Name, t.Payload, t.Status, int16(t.Priority), t.Attempts, t.MaxAttempts, t.RunAt, t.CreatedAt)
	return err
}

// ClaimTask also reclaims tasks whose lock expired, which recovers work from
// crashed workers.
func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET
			status = 'processing',
			locked_until = now() + $3::interval,
			locked_by = $2,
			attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
			  AND ((status = 'pending' AND run_at <= now())
			    OR (status = 'processing' AND locked_until < now()))
			ORDER BY priority DESC, run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, name, payload, status, priority, attempts, max_attempts,
			run_at, locked_until, locked_by, COALESCE(last_error, ''), created_at`,
		queues, workerID, lockFor)

	var (
		t        Task
		priority int16
	)
	err := row.Scan(&t.ID, &t.Queue, &t.Name, &t.Payload, &t.Status, &priority, &t.Attempts, &t.MaxAttempts,
		&t.RunAt, &t.LockedUntil, &t.LockedBy, &t.LastError, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	return &t, nil
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, id uuid.UUID) error {
	return s.expectOne(s.pool.Exec(ctx, `
		UPDATE queue_tasks SET status = 'completed', completed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id))
}

func (s *PostgresStorage) FailTask(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return s.expectOne(s.pool.Exec(ctx, `
		UPDATE queue_tasks SET status = 'pending', last_error = $2, run_at = $3, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, id, errMsg, retryAt))
}

func (s *PostgresStorage) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) (*DeadTask, error) {
	dead := &DeadTask{ID: uuid.New(), Error: errMsg}
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			DELETE FROM queue_tasks WHERE id = $1
			RETURNING id, queue, name, payload, attempts`, id).
			Scan(&dead.TaskID, &dead.Queue, &dead.Name, &dead.Payload, &dead.Attempts)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
		}
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO queue_dead_tasks (id, task_id, queue, name, payload, attempts, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING failed_at`,
			dead.ID, dead.TaskID, dead.Queue, dead.Name, dead.Payload, dead.Attempts, dead.Error).
			Scan(&dead.FailedAt)
	})
	if err != nil {
		return nil, err
	}
	return dead, nil
}

func (s *PostgresStorage) expectOne(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

var (
	_ WorkerRepository   = (*PostgresStorage)(nil)
	_ EnqueuerRepository = (*PostgresStorage)(nil)
	_ WorkerRepository   = (*MemoryStorage)(nil)
	_ EnqueuerRepository = (*MemoryStorage)(nil)
)
