// Package postgres persists the notification outbox.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enrollsync/internal/notify"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
	txcontext "enrollsync/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Enqueue(ctx context.Context, n *notify.Notification) error {
	query := `
		INSERT INTO notification_outbox
			(id, guardian_id, email, first_name, child_name, one_time_pw, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		n.ID, uuid.UUID(n.GuardianID), n.Email, n.FirstName, n.ChildName,
		n.OneTimePW, n.Status, n.Attempts, n.LastError, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]*notify.Notification, error) {
	query := `
		SELECT id, guardian_id, email, first_name, child_name, one_time_pw,
		       status, attempts, last_error, created_at, sent_at
		FROM notification_outbox
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, notify.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var out []*notify.Notification
	for rows.Next() {
		var n notify.Notification
		var gID uuid.UUID
		var sentAt sql.NullTime
		if err := rows.Scan(&n.ID, &gID, &n.Email, &n.FirstName, &n.ChildName,
			&n.OneTimePW, &n.Status, &n.Attempts, &n.LastError, &n.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.GuardianID = domain.GuardianID(gID)
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE notification_outbox SET status = $2, sent_at = $3 WHERE id = $1`,
		id, notify.StatusSent, at)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return requireRow(res)
}

func (s *Store) MarkAttempt(ctx context.Context, id uuid.UUID, attempts int, lastError string, failed bool) error {
	status := notify.StatusPending
	if failed {
		status = notify.StatusFailed
	}
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE notification_outbox SET attempts = $2, last_error = $3, status = $4 WHERE id = $1`,
		id, attempts, lastError, status)
	if err != nil {
		return fmt.Errorf("mark notification attempt: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
