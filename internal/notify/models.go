// Package notify delivers the welcome/approval message for freshly
// provisioned accounts through a transactional outbox: the provisioning
// chain enqueues a pending row and a background worker delivers it with
// retries. Delivery failures never fail or roll back provisioning.
package notify

import (
	"time"

	"github.com/google/uuid"

	"enrollsync/pkg/domain"
)

// Delivery states of an outbox row.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed" // attempt cap reached, needs operator attention
)

// Notification is one pending welcome message. The one-time password is
// carried in the row; the reset link is deliberately NOT — it is minted
// fresh at send time so a queued message can never carry an expired link.
type Notification struct {
	ID         uuid.UUID
	GuardianID domain.GuardianID
	Email      string
	FirstName  string
	ChildName  string
	OneTimePW  string

	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}
