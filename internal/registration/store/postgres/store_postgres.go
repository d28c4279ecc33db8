// Package postgres is the registration store adapter for either deployment.
// The same adapter serves as Source or Target; only the *sql.DB differs.
// This store is pure I/O — classification and sync policy live in services.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"enrollsync/internal/registration"
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

const recordColumns = `
	id, foreign_id, org_id,
	guardian_name, guardian_email, guardian_phone,
	child_first_name, child_last_name, child_birth_date, child_gender,
	document_urls,
	payment_amount_cents, payment_method, payment_paid, payment_verified,
	status, reviewed_by, reviewed_at, rejection_reason,
	created_at, synced_to_target, synced_at, guardian_id, student_id`

func (s *Store) Get(ctx context.Context, id domain.RegistrationID) (*registration.Record, error) {
	query := `SELECT` + recordColumns + ` FROM registrations WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return rec, nil
}

func (s *Store) GetByForeignID(ctx context.Context, foreignID domain.RegistrationID) (*registration.Record, error) {
	query := `SELECT` + recordColumns + ` FROM registrations WHERE foreign_id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(foreignID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get registration by foreign id: %w", err)
	}
	return rec, nil
}

func (s *Store) ListByOrg(ctx context.Context, orgID domain.OrgID) ([]*registration.Record, error) {
	query := `SELECT` + recordColumns + ` FROM registrations WHERE org_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []*registration.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

func (s *Store) ListOrgIDs(ctx context.Context) ([]domain.OrgID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT org_id FROM registrations`)
	if err != nil {
		return nil, fmt.Errorf("list org ids: %w", err)
	}
	defer rows.Close()

	var out []domain.OrgID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan org id: %w", err)
		}
		out = append(out, domain.OrgID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list org ids: %w", err)
	}
	return out, nil
}

// Insert is idempotent: a re-run of the same batch hits ON CONFLICT and
// matches zero rows instead of duplicating the mirror.
func (s *Store) Insert(ctx context.Context, rec *registration.Record) error {
	query := `
		INSERT INTO registrations (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		nullableID(uuid.UUID(rec.ForeignID)),
		uuid.UUID(rec.OrgID),
		rec.GuardianName, rec.GuardianEmail, rec.GuardianPhone,
		rec.ChildFirstName, rec.ChildLastName, rec.ChildBirthDate, rec.ChildGender,
		pq.Array(rec.DocumentURLs),
		rec.PaymentAmountCents, rec.PaymentMethod, rec.PaymentPaid, rec.PaymentVerified,
		string(rec.Status), rec.ReviewedBy, rec.ReviewedAt, rec.RejectionReason,
		rec.CreatedAt, rec.SyncedToTarget, rec.SyncedAt,
		nullableID(uuid.UUID(rec.GuardianID)),
		nullableID(uuid.UUID(rec.StudentID)),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *Store) UpdateMirroredFields(ctx context.Context, rec *registration.Record, syncedAt time.Time) error {
	query := `
		UPDATE registrations SET
			status = $2,
			reviewed_by = $3,
			reviewed_at = $4,
			rejection_reason = $5,
			document_urls = $6,
			payment_amount_cents = $7,
			payment_method = $8,
			payment_paid = $9,
			payment_verified = $10,
			synced_at = $11
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		string(rec.Status), rec.ReviewedBy, rec.ReviewedAt, rec.RejectionReason,
		pq.Array(rec.DocumentURLs),
		rec.PaymentAmountCents, rec.PaymentMethod, rec.PaymentPaid, rec.PaymentVerified,
		syncedAt,
	)
	if err != nil {
		return fmt.Errorf("update mirrored fields: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SetStatus(ctx context.Context, id domain.RegistrationID, status registration.Status, reviewedBy string, reviewedAt time.Time, reason string) error {
	query := `
		UPDATE registrations SET
			status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(id), string(status), reviewedBy, reviewedAt, reason)
	if err != nil {
		return fmt.Errorf("set registration status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) MarkSynced(ctx context.Context, id, foreignID domain.RegistrationID, syncedAt time.Time) error {
	query := `
		UPDATE registrations SET
			foreign_id = $2, synced_to_target = TRUE, synced_at = $3
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(id), uuid.UUID(foreignID), syncedAt)
	if err != nil {
		return fmt.Errorf("mark registration synced: %w", err)
	}
	return requireRow(res)
}

func (s *Store) MarkProvisioned(ctx context.Context, id domain.RegistrationID, guardianID domain.GuardianID, studentID domain.StudentID) error {
	query := `
		UPDATE registrations SET guardian_id = $2, student_id = $3
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(id), uuid.UUID(guardianID), uuid.UUID(studentID))
	if err != nil {
		return fmt.Errorf("mark registration provisioned: %w", err)
	}
	return requireRow(res)
}

// Delete matches zero rows for an already-gone id, which keeps the orphan
// delete batch safely re-runnable.
func (s *Store) Delete(ctx context.Context, id domain.RegistrationID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM registrations WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*registration.Record, error) {
	var rec registration.Record
	var recID, orgID uuid.UUID
	var foreignID, guardianID, studentID uuid.NullUUID
	var reviewedAt, syncedAt sql.NullTime
	var status string
	var docURLs pq.StringArray
	err := row.Scan(
		&recID, &foreignID, &orgID,
		&rec.GuardianName, &rec.GuardianEmail, &rec.GuardianPhone,
		&rec.ChildFirstName, &rec.ChildLastName, &rec.ChildBirthDate, &rec.ChildGender,
		&docURLs,
		&rec.PaymentAmountCents, &rec.PaymentMethod, &rec.PaymentPaid, &rec.PaymentVerified,
		&status, &rec.ReviewedBy, &reviewedAt, &rec.RejectionReason,
		&rec.CreatedAt, &rec.SyncedToTarget, &syncedAt, &guardianID, &studentID,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = domain.RegistrationID(recID)
	rec.OrgID = domain.OrgID(orgID)
	rec.Status = registration.Status(status)
	rec.DocumentURLs = []string(docURLs)
	if foreignID.Valid {
		rec.ForeignID = domain.RegistrationID(foreignID.UUID)
	}
	if guardianID.Valid {
		rec.GuardianID = domain.GuardianID(guardianID.UUID)
	}
	if studentID.Valid {
		rec.StudentID = domain.StudentID(studentID.UUID)
	}
	if reviewedAt.Valid {
		rec.ReviewedAt = &reviewedAt.Time
	}
	if syncedAt.Valid {
		rec.SyncedAt = &syncedAt.Time
	}
	return &rec, nil
}

func nullableID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
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
