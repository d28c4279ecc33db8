// Package domain holds the typed identifiers shared across the pipeline.
// Typed IDs make cross-entity assignment a compile error: a RegistrationID
// can never be passed where a GuardianID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "enrollsync/pkg/domain-errors"
)

type (
	// RegistrationID identifies a registration record in either store.
	RegistrationID uuid.UUID

	// OrgID identifies the tenant organization (school).
	OrgID uuid.UUID

	// GuardianID identifies a guardian account. By referential-integrity
	// design the auth identity id and the profile id are the same value.
	GuardianID uuid.UUID

	// StudentID identifies an enrolled child.
	StudentID uuid.UUID

	// ClassID identifies a class within an organization.
	ClassID uuid.UUID
)

func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewOrgID() OrgID                   { return OrgID(uuid.New()) }
func NewGuardianID() GuardianID         { return GuardianID(uuid.New()) }
func NewStudentID() StudentID           { return StudentID(uuid.New()) }
func NewClassID() ClassID               { return ClassID(uuid.New()) }

func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id OrgID) String() string          { return uuid.UUID(id).String() }
func (id GuardianID) String() string     { return uuid.UUID(id).String() }
func (id StudentID) String() string      { return uuid.UUID(id).String() }
func (id ClassID) String() string        { return uuid.UUID(id).String() }

func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id GuardianID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id StudentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ClassID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Trust boundaries (HTTP payloads, foreign ids read back
// from the opposite store) go through these parsers.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id")
	}
	return u, nil
}

func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s)
	return RegistrationID(u), err
}

func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID(s)
	return OrgID(u), err
}

func ParseGuardianID(s string) (GuardianID, error) {
	u, err := parseUUID(s)
	return GuardianID(u), err
}

func ParseStudentID(s string) (StudentID, error) {
	u, err := parseUUID(s)
	return StudentID(u), err
}

func ParseClassID(s string) (ClassID, error) {
	u, err := parseUUID(s)
	return ClassID(u), err
}
