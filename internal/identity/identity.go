// Package identity wraps the authentication backend behind the narrow
// surface the provisioner needs. Every operation is idempotent from the
// caller's perspective except Create, which the provisioner only calls
// once the fresh-account path is confirmed.
package identity

import (
	"context"
	"time"

	"enrollsync/pkg/domain"
)

// Identity is an authentication login, separate from the profile row the
// directory holds. The provisioner enforces profile id == identity id.
type Identity struct {
	ID        domain.GuardianID
	Email     string
	CreatedAt time.Time
}

// Provider is the identity-provider boundary.
type Provider interface {
	// Create registers a new login with a generated one-time password.
	// Returns sentinel.ErrConflict when the email is already registered,
	// which happens when two invocations race past ListByEmail.
	Create(ctx context.Context, email, password string) (*Identity, error)

	// UpdatePassword replaces the password for an existing login. Used to
	// issue a fresh one-time password when adopting an orphaned identity.
	UpdatePassword(ctx context.Context, id domain.GuardianID, password string) error

	// ListByEmail returns logins registered under the normalized email.
	ListByEmail(ctx context.Context, email string) ([]*Identity, error)

	// PasswordResetLink mints a short-lived reset link. Links are generated
	// fresh at send time and never cached.
	PasswordResetLink(ctx context.Context, email string) (string, error)
}
