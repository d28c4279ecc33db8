package provision

import (
	"context"
	"time"

	"enrollsync/pkg/domain"
)

// DirectoryStore is the target platform's profile/student/class schema.
// Pure I/O; the provisioning state machine lives in Service.
type DirectoryStore interface {
	// GetProfileByEmail fetches the profile for a normalized email and
	// role. sentinel.ErrNotFound if absent. At most one profile exists per
	// (email, role) pair.
	GetProfileByEmail(ctx context.Context, email, role string) (*GuardianAccount, error)

	// CreateProfile inserts a profile. sentinel.ErrConflict when the
	// (email, role) pair is already taken.
	CreateProfile(ctx context.Context, acct *GuardianAccount) error

	// RepairIdentityRef sets a profile's identity reference to its own id,
	// healing drift from a previous partial failure.
	RepairIdentityRef(ctx context.Context, id domain.GuardianID) error

	// FindStudent looks up a student by the natural key.
	FindStudent(ctx context.Context, firstName, lastName string, birthDate time.Time, guardianID domain.GuardianID) (*Student, error)

	// CreateStudent inserts a student row.
	CreateStudent(ctx context.Context, st *Student) error

	// ListClasses returns the organization's active classes.
	ListClasses(ctx context.Context, orgID domain.OrgID) ([]*Class, error)

	// AssignmentExists reports whether an equivalent assignment is present.
	AssignmentExists(ctx context.Context, studentID domain.StudentID, classID domain.ClassID) (bool, error)

	// CreateAssignment inserts a class assignment. Inserting an existing
	// pair is a no-op.
	CreateAssignment(ctx context.Context, a ClassAssignment) error
}
