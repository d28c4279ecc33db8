package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
	txcontext "enrollsync/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresProvider stores logins in the target platform's auth schema.
type PostgresProvider struct {
	db         *sql.DB
	resetLinks *ResetLinkBuilder
}

func NewPostgresProvider(db *sql.DB, resetLinks *ResetLinkBuilder) *PostgresProvider {
	return &PostgresProvider{db: db, resetLinks: resetLinks}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *PostgresProvider) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

func (p *PostgresProvider) Create(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ident := &Identity{
		ID:        domain.NewGuardianID(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	query := `
		INSERT INTO auth_identities (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = p.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(ident.ID), ident.Email, string(hash), ident.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return ident, nil
}

func (p *PostgresProvider) UpdatePassword(ctx context.Context, id domain.GuardianID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := p.execer(ctx).ExecContext(ctx,
		`UPDATE auth_identities SET password_hash = $2 WHERE id = $1`,
		uuid.UUID(id), string(hash))
	if err != nil {
		return fmt.Errorf("update identity password: %w", err)
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

func (p *PostgresProvider) ListByEmail(ctx context.Context, email string) ([]*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, email, created_at FROM auth_identities WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		var ident Identity
		var id uuid.UUID
		if err := rows.Scan(&id, &ident.Email, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.ID = domain.GuardianID(id)
		out = append(out, &ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

func (p *PostgresProvider) PasswordResetLink(_ context.Context, email string) (string, error) {
	return p.resetLinks.Build(strings.ToLower(strings.TrimSpace(email)), time.Now().UTC())
}
