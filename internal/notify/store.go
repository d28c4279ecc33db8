package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStore persists pending notifications. Pure I/O.
type OutboxStore interface {
	// Enqueue inserts a pending notification.
	Enqueue(ctx context.Context, n *Notification) error

	// ListPending returns up to limit pending rows, oldest first.
	ListPending(ctx context.Context, limit int) ([]*Notification, error)

	// MarkSent records a successful delivery.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkAttempt records a failed attempt; when attempts reaches the
	// worker's cap the row is moved to failed.
	MarkAttempt(ctx context.Context, id uuid.UUID, attempts int, lastError string, failed bool) error
}

// Sender delivers one rendered message. Fire-and-forget from the
// pipeline's perspective; retries are the worker's concern.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ResetLinker mints a fresh password-reset link at send time. Satisfied by
// the identity provider.
type ResetLinker interface {
	PasswordResetLink(ctx context.Context, email string) (string, error)
}
