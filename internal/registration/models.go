// Package registration defines the child-registration record shared by the
// Source Site and Target Platform stores, plus the pure classification logic
// the reconciler applies. All I/O lives in the store subpackages.
package registration

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"enrollsync/pkg/domain"
)

// Status is the reviewer-owned lifecycle of a registration.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusWaitlisted  Status = "waitlisted"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusWaitlisted:
		return true
	}
	return false
}

// Origin names which deployment a record was read from.
type Origin string

const (
	OriginSource Origin = "source"
	OriginTarget Origin = "target"
)

// Opposite returns the other deployment.
func (o Origin) Opposite() Origin {
	if o == OriginSource {
		return OriginTarget
	}
	return OriginSource
}

// Record is one child's enrollment application as stored in either system.
//
// ForeignID is the id of the counterpart row in the opposite system; a nil
// ForeignID means the record has never been mirrored. A record has at most
// one counterpart and the relationship is symmetric once established.
type Record struct {
	ID        domain.RegistrationID
	ForeignID domain.RegistrationID
	OrgID     domain.OrgID

	GuardianName  string
	GuardianEmail string
	GuardianPhone string

	ChildFirstName string
	ChildLastName  string
	ChildBirthDate time.Time
	ChildGender    string

	DocumentURLs []string

	PaymentAmountCents int64
	PaymentMethod      string
	PaymentPaid        bool
	PaymentVerified    bool

	Status          Status
	ReviewedBy      string
	ReviewedAt      *time.Time
	RejectionReason string

	CreatedAt time.Time

	// Sync bookkeeping, written only by the reconciler. Reviewer-authored
	// fields above are never touched through these paths.
	SyncedToTarget bool
	SyncedAt       *time.Time
	GuardianID     domain.GuardianID
	StudentID      domain.StudentID
}

// Mirrored reports whether the record carries foreign-id provenance.
func (r *Record) Mirrored() bool {
	return !r.ForeignID.IsNil()
}

// mirrorNamespace seeds the deterministic mirror id. Re-running an insert
// batch regenerates the same id for the same source record, so a crash
// between batches cannot produce duplicate mirrors.
var mirrorNamespace = uuid.MustParse("9d1c7a52-1f6e-4a0b-8c3d-2e5f90b4a761")

// MirrorID derives the id a source record's mirror gets in the target store.
func MirrorID(sourceID domain.RegistrationID) domain.RegistrationID {
	return domain.RegistrationID(uuid.NewSHA1(mirrorNamespace, []byte(sourceID.String())))
}

// mirroredFieldsEqual compares the fixed whitelist of fields the reconciler
// is allowed to propagate: status, reviewer, review timestamp, rejection
// reason, document urls, and the payment fields. Everything else is locally
// authored in the target and never compared or overwritten.
func mirroredFieldsEqual(src, mirror *Record) bool {
	if src.Status != mirror.Status ||
		src.ReviewedBy != mirror.ReviewedBy ||
		src.RejectionReason != mirror.RejectionReason ||
		src.PaymentAmountCents != mirror.PaymentAmountCents ||
		src.PaymentMethod != mirror.PaymentMethod ||
		src.PaymentPaid != mirror.PaymentPaid ||
		src.PaymentVerified != mirror.PaymentVerified {
		return false
	}
	if !timePtrEqual(src.ReviewedAt, mirror.ReviewedAt) {
		return false
	}
	return slices.Equal(src.DocumentURLs, mirror.DocumentURLs)
}

// ApplyMirroredFields copies the whitelisted fields from src onto mirror.
func ApplyMirroredFields(mirror, src *Record) {
	mirror.Status = src.Status
	mirror.ReviewedBy = src.ReviewedBy
	mirror.ReviewedAt = src.ReviewedAt
	mirror.RejectionReason = src.RejectionReason
	mirror.DocumentURLs = slices.Clone(src.DocumentURLs)
	mirror.PaymentAmountCents = src.PaymentAmountCents
	mirror.PaymentMethod = src.PaymentMethod
	mirror.PaymentPaid = src.PaymentPaid
	mirror.PaymentVerified = src.PaymentVerified
}

// NewMirror builds the target-store copy of a source record. The mirror id
// is deterministic (see MirrorID) and the foreign id points back at the
// source record, establishing provenance for later orphan detection.
func NewMirror(src *Record) *Record {
	mirror := &Record{
		ID:        MirrorID(src.ID),
		ForeignID: src.ID,
		OrgID:     src.OrgID,

		GuardianName:  src.GuardianName,
		GuardianEmail: src.GuardianEmail,
		GuardianPhone: src.GuardianPhone,

		ChildFirstName: src.ChildFirstName,
		ChildLastName:  src.ChildLastName,
		ChildBirthDate: src.ChildBirthDate,
		ChildGender:    src.ChildGender,

		CreatedAt: src.CreatedAt,
	}
	ApplyMirroredFields(mirror, src)
	return mirror
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
