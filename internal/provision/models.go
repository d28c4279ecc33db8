// Package provision owns the exactly-once account provisioning chain: the
// guardian account (auth identity + profile), the student record, and the
// placeholder class assignment that result from an approved registration.
package provision

import (
	"time"

	"enrollsync/pkg/domain"
)

// RoleParent is the only role this pipeline provisions.
const RoleParent = "parent"

// GuardianAccount is a guardian's profile row. Its id equals the auth
// identity id; that equality is a referential-integrity constraint of the
// data model, not a convention.
type GuardianAccount struct {
	ID          domain.GuardianID
	IdentityRef domain.GuardianID // nil indicates drift from a partial failure
	Email       string            // case-normalized
	Role        string
	OrgID       domain.OrgID
	FirstName   string
	LastName    string
	Phone       string
	CreatedAt   time.Time
}

// Student is the enrolled child. Uniqueness is by the natural key
// (first name, last name, birth date, guardian) so a redelivered approval
// recognizes the student it already created.
type Student struct {
	ID         domain.StudentID
	OrgID      domain.OrgID
	GuardianID domain.GuardianID
	FirstName  string
	LastName   string
	BirthDate  time.Time
	Gender     string
	Status     string // active | inactive
	EnrolledAt time.Time

	// Payment-verification snapshot copied from the registration at
	// creation time.
	PaymentPaid     bool
	PaymentVerified bool
	PaymentMethod   string
}

// StudentStatusActive is the status new students are created with.
const StudentStatusActive = "active"

// Class is a class within an organization.
type Class struct {
	ID     domain.ClassID
	OrgID  domain.OrgID
	Name   string
	Active bool
}

// ClassAssignment links a student to a class.
type ClassAssignment struct {
	StudentID  domain.StudentID
	ClassID    domain.ClassID
	AssignedAt time.Time
}
