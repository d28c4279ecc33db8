// Package postgres persists trial entitlements and the usage rows the quota
// checker reads. Pure I/O.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"enrollsync/internal/entitlement"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
	txcontext "enrollsync/pkg/platform/tx"
)

const uniqueViolation = "23505"

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

func (s *Store) GetTrial(ctx context.Context, guardianID domain.GuardianID) (*entitlement.Trial, error) {
	query := `
		SELECT guardian_id, tier, starts_at, expires_at, active
		FROM trial_entitlements
		WHERE guardian_id = $1
	`
	var t entitlement.Trial
	var gID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(guardianID)).Scan(
		&gID, &t.Tier, &t.StartsAt, &t.ExpiresAt, &t.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get trial: %w", err)
	}
	t.GuardianID = domain.GuardianID(gID)
	return &t, nil
}

func (s *Store) CreateTrial(ctx context.Context, t *entitlement.Trial) error {
	query := `
		INSERT INTO trial_entitlements (guardian_id, tier, starts_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(t.GuardianID), t.Tier, t.StartsAt, t.ExpiresAt, t.Active)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create trial: %w", err)
	}
	return nil
}

func (s *Store) UpsertUsageRow(ctx context.Context, row *entitlement.UsageRow) error {
	query := `
		INSERT INTO usage_tracking (guardian_id, metric, used, usage_limit, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guardian_id, metric) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(row.GuardianID), row.Metric, row.Used, row.Limit,
		row.PeriodStart, row.PeriodEnd)
	if err != nil {
		return fmt.Errorf("upsert usage row: %w", err)
	}
	return nil
}
