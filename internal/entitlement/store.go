package entitlement

import (
	"context"

	"enrollsync/pkg/domain"
)

// Store persists trials and usage rows. Pure I/O.
type Store interface {
	// GetTrial fetches a guardian's trial. sentinel.ErrNotFound if absent.
	GetTrial(ctx context.Context, guardianID domain.GuardianID) (*Trial, error)

	// CreateTrial inserts a trial. sentinel.ErrConflict if one exists.
	CreateTrial(ctx context.Context, t *Trial) error

	// UpsertUsageRow writes one metric's tracking row; re-running a grant
	// leaves an existing row untouched.
	UpsertUsageRow(ctx context.Context, row *UsageRow) error
}
