package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollsync/internal/registration"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

// =============================================================================
// Registration Memory Store Test Suite
// =============================================================================
// The in-memory twin must match the postgres adapter's semantics exactly:
// idempotent inserts, zero-row deletes, whitelist-only mirrored updates.

type StoreSuite struct {
	suite.Suite
	store *Store
	orgID domain.OrgID
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.orgID = domain.NewOrgID()
}

func (s *StoreSuite) record() *registration.Record {
	return &registration.Record{
		ID:             domain.NewRegistrationID(),
		OrgID:          s.orgID,
		GuardianName:   "Amina Okafor",
		GuardianEmail:  "amina@example.com",
		ChildFirstName: "Zuri",
		ChildLastName:  "Okafor",
		Status:         registration.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func (s *StoreSuite) TestInsertIdempotent() {
	ctx := context.Background()
	rec := s.record()

	s.Require().NoError(s.store.Insert(ctx, rec))

	// Re-inserting the same id must not clobber the stored row.
	dup := *rec
	dup.GuardianName = "Someone Else"
	s.Require().NoError(s.store.Insert(ctx, &dup))

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal("Amina Okafor", stored.GuardianName)
	s.Equal(1, s.store.Len())
}

func (s *StoreSuite) TestGet() {
	ctx := context.Background()

	s.Run("missing id returns not found", func() {
		_, err := s.store.Get(ctx, domain.NewRegistrationID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned record is a copy", func() {
		rec := s.record()
		s.Require().NoError(s.store.Insert(ctx, rec))

		got, err := s.store.Get(ctx, rec.ID)
		s.Require().NoError(err)
		got.GuardianName = "mutated"

		again, err := s.store.Get(ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal("Amina Okafor", again.GuardianName)
	})
}

func (s *StoreSuite) TestUpdateMirroredFieldsWhitelist() {
	ctx := context.Background()
	rec := s.record()
	rec.GuardianPhone = "+254700000001"
	s.Require().NoError(s.store.Insert(ctx, rec))

	patch := *rec
	patch.Status = registration.StatusApproved
	patch.GuardianPhone = "+999999999999" // outside the whitelist
	syncedAt := time.Now().UTC()
	s.Require().NoError(s.store.UpdateMirroredFields(ctx, &patch, syncedAt))

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(registration.StatusApproved, stored.Status)
	s.Equal("+254700000001", stored.GuardianPhone, "non-whitelisted field must survive")
	s.Require().NotNil(stored.SyncedAt)
	s.True(stored.SyncedAt.Equal(syncedAt))
}

func (s *StoreSuite) TestMarkSynced() {
	ctx := context.Background()
	rec := s.record()
	s.Require().NoError(s.store.Insert(ctx, rec))

	foreignID := domain.NewRegistrationID()
	syncedAt := time.Now().UTC()
	s.Require().NoError(s.store.MarkSynced(ctx, rec.ID, foreignID, syncedAt))

	stored, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(foreignID, stored.ForeignID)
	s.True(stored.SyncedToTarget)
	s.True(stored.Mirrored())
}

func (s *StoreSuite) TestDeleteZeroRows() {
	ctx := context.Background()

	s.NoError(s.store.Delete(ctx, domain.NewRegistrationID()), "deleting an absent id is not an error")
}

func (s *StoreSuite) TestListOrgIDs() {
	ctx := context.Background()

	a := s.record()
	b := s.record()
	other := s.record()
	other.OrgID = domain.NewOrgID()
	for _, rec := range []*registration.Record{a, b, other} {
		s.Require().NoError(s.store.Insert(ctx, rec))
	}

	ids, err := s.store.ListOrgIDs(ctx)
	s.Require().NoError(err)
	s.Len(ids, 2)
}

func (s *StoreSuite) TestGetByForeignID() {
	ctx := context.Background()
	rec := s.record()
	foreignID := domain.NewRegistrationID()
	rec.ForeignID = foreignID
	s.Require().NoError(s.store.Insert(ctx, rec))

	got, err := s.store.GetByForeignID(ctx, foreignID)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)

	_, err = s.store.GetByForeignID(ctx, domain.NewRegistrationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
