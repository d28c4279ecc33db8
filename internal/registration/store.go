package registration

import (
	"context"
	"time"

	"enrollsync/pkg/domain"
)

// Store is the row-level contract both deployments implement. The reconciler
// treats the two stores as interchangeable adapters, so the same classify-
// and-apply logic runs regardless of which one is origin for a record.
//
// Stores are pure I/O. They return sentinel facts (pkg/platform/sentinel);
// translating those into domain errors is the service layer's job.
type Store interface {
	// Get fetches a record by primary id. sentinel.ErrNotFound if absent.
	Get(ctx context.Context, id domain.RegistrationID) (*Record, error)

	// GetByForeignID fetches the record mirroring the given counterpart id.
	GetByForeignID(ctx context.Context, foreignID domain.RegistrationID) (*Record, error)

	// ListByOrg returns the full current set for one organization.
	ListByOrg(ctx context.Context, orgID domain.OrgID) ([]*Record, error)

	// ListOrgIDs returns every organization with at least one record.
	// The scheduled sweep iterates these.
	ListOrgIDs(ctx context.Context) ([]domain.OrgID, error)

	// Insert writes a record. Inserting an id that already exists is a
	// no-op, which makes re-running an insert batch safe.
	Insert(ctx context.Context, rec *Record) error

	// UpdateMirroredFields overwrites only the whitelisted fields plus the
	// sync timestamp. Locally-authored fields are left untouched.
	UpdateMirroredFields(ctx context.Context, rec *Record, syncedAt time.Time) error

	// SetStatus applies a reviewer-style status change. Used by status
	// back-propagation, never by the mirror batches.
	SetStatus(ctx context.Context, id domain.RegistrationID, status Status, reviewedBy string, reviewedAt time.Time, reason string) error

	// MarkSynced writes the sync bookkeeping back to an origin record:
	// the mirror's id as foreign id, the synced flag and timestamp.
	MarkSynced(ctx context.Context, id, foreignID domain.RegistrationID, syncedAt time.Time) error

	// MarkProvisioned records the guardian/student back-references after a
	// successful provisioning run.
	MarkProvisioned(ctx context.Context, id domain.RegistrationID, guardianID domain.GuardianID, studentID domain.StudentID) error

	// Delete removes a record. Deleting an absent id matches zero rows and
	// is not an error.
	Delete(ctx context.Context, id domain.RegistrationID) error
}
