package notifications

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations holds the goose migrations for the notifications table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "notifications_schema_migrations"
)

const notificationColumns = `id, user_id, kind, type, title, message, action_url, data, read_at, delivered_at, created_at`

// PostgresStorage persists notifications in PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Create(ctx context.Context, n Notification) (Notification, bool, error) {
	if err := n.Validate(); err != nil {
		return Notification{}, false, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var data []byte
	if len(n.Data) > 0 {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return Notification{}, false, fmt.Errorf("encode notification data: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, type, title, message, action_url, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Kind, string(n.Type), n.Title, n.Message, n.ActionURL, data, n.CreatedAt)
	if err != nil {
		return Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}

	stored, err := scanNotification(s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, n.ID))
	if err != nil {
		return Notification{}, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *PostgresStorage) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET delivered_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	var (
		query strings.Builder
		args  = []any{userID}
	)
	query.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`)
	if opts.OnlyUnread {
		query.WriteString(` AND read_at IS NULL`)
	}
	if len(opts.Kinds) > 0 {
		args = append(args, opts.Kinds)
		fmt.Fprintf(&query, ` AND kind = ANY($%d)`, len(args))
	}
	query.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&query, ` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $3
		WHERE user_id = $1 AND id = ANY($2) AND read_at IS NULL`, userID, ids, at)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n    Notification
		typ  string
		data []byte
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Kind, &typ, &n.Title, &n.Message, &n.ActionURL,
		&data, &n.ReadAt, &n.DeliveredAt, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	n.Type = Type(typ)
	n.Read = n.ReadAt != nil
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return Notification{}, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return n, nil
}

var _ Storage = (*PostgresStorage)(nil)
