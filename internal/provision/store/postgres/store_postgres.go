// Package postgres is the target platform's directory adapter: guardian
// profiles, students, classes, and class assignments. Pure I/O — the
// provisioning state machine lives in the service.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"enrollsync/internal/provision"
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

func (s *Store) GetProfileByEmail(ctx context.Context, email, role string) (*provision.GuardianAccount, error) {
	query := `
		SELECT id, identity_ref, email, role, org_id, first_name, last_name, phone, created_at
		FROM guardian_profiles
		WHERE email = $1 AND role = $2
	`
	var acct provision.GuardianAccount
	var id uuid.UUID
	var identityRef uuid.NullUUID
	var orgID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, email, role).Scan(
		&id, &identityRef, &acct.Email, &acct.Role, &orgID,
		&acct.FirstName, &acct.LastName, &acct.Phone, &acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get profile by email: %w", err)
	}
	acct.ID = domain.GuardianID(id)
	acct.OrgID = domain.OrgID(orgID)
	if identityRef.Valid {
		acct.IdentityRef = domain.GuardianID(identityRef.UUID)
	}
	return &acct, nil
}

func (s *Store) CreateProfile(ctx context.Context, acct *provision.GuardianAccount) error {
	query := `
		INSERT INTO guardian_profiles (id, identity_ref, email, role, org_id, first_name, last_name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(acct.ID),
		uuid.NullUUID{UUID: uuid.UUID(acct.IdentityRef), Valid: !acct.IdentityRef.IsNil()},
		acct.Email, acct.Role, uuid.UUID(acct.OrgID),
		acct.FirstName, acct.LastName, acct.Phone, acct.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create guardian profile: %w", err)
	}
	return nil
}

func (s *Store) RepairIdentityRef(ctx context.Context, id domain.GuardianID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE guardian_profiles SET identity_ref = id WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("repair identity ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) FindStudent(ctx context.Context, firstName, lastName string, birthDate time.Time, guardianID domain.GuardianID) (*provision.Student, error) {
	query := `
		SELECT id, org_id, guardian_id, first_name, last_name, birth_date, gender,
		       status, enrolled_at, payment_paid, payment_verified, payment_method
		FROM students
		WHERE first_name = $1 AND last_name = $2 AND birth_date = $3 AND guardian_id = $4
	`
	var st provision.Student
	var id, orgID, gID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, firstName, lastName, birthDate, uuid.UUID(guardianID)).Scan(
		&id, &orgID, &gID, &st.FirstName, &st.LastName, &st.BirthDate, &st.Gender,
		&st.Status, &st.EnrolledAt, &st.PaymentPaid, &st.PaymentVerified, &st.PaymentMethod,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	st.ID = domain.StudentID(id)
	st.OrgID = domain.OrgID(orgID)
	st.GuardianID = domain.GuardianID(gID)
	return &st, nil
}

func (s *Store) CreateStudent(ctx context.Context, st *provision.Student) error {
	query := `
		INSERT INTO students (id, org_id, guardian_id, first_name, last_name, birth_date, gender,
		                      status, enrolled_at, payment_paid, payment_verified, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(st.ID), uuid.UUID(st.OrgID), uuid.UUID(st.GuardianID),
		st.FirstName, st.LastName, st.BirthDate, st.Gender,
		st.Status, st.EnrolledAt, st.PaymentPaid, st.PaymentVerified, st.PaymentMethod,
	)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (s *Store) ListClasses(ctx context.Context, orgID domain.OrgID) ([]*provision.Class, error) {
	query := `
		SELECT id, org_id, name, active
		FROM classes
		WHERE org_id = $1 AND active
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []*provision.Class
	for rows.Next() {
		var c provision.Class
		var id, oID uuid.UUID
		if err := rows.Scan(&id, &oID, &c.Name, &c.Active); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		c.ID = domain.ClassID(id)
		c.OrgID = domain.OrgID(oID)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

func (s *Store) AssignmentExists(ctx context.Context, studentID domain.StudentID, classID domain.ClassID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM class_assignments WHERE student_id = $1 AND class_id = $2)`,
		uuid.UUID(studentID), uuid.UUID(classID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("assignment exists: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a provision.ClassAssignment) error {
	query := `
		INSERT INTO class_assignments (student_id, class_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, class_id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(a.StudentID), uuid.UUID(a.ClassID), a.AssignedAt)
	if err != nil {
		return fmt.Errorf("create class assignment: %w", err)
	}
	return nil
}
