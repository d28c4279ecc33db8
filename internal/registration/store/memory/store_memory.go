// Package memory is the in-memory registration store twin used by tests and
// local development. It mirrors the postgres adapter's semantics, including
// idempotent inserts and zero-row deletes.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"enrollsync/internal/registration"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.RegistrationID]*registration.Record
}

func New() *Store {
	return &Store{records: make(map[domain.RegistrationID]*registration.Record)}
}

func (s *Store) Get(_ context.Context, id domain.RegistrationID) (*registration.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) GetByForeignID(_ context.Context, foreignID domain.RegistrationID) (*registration.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ForeignID == foreignID {
			return clone(rec), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) ListByOrg(_ context.Context, orgID domain.OrgID) ([]*registration.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*registration.Record
	for _, rec := range s.records {
		if rec.OrgID == orgID {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (s *Store) ListOrgIDs(_ context.Context) ([]domain.OrgID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.OrgID]struct{})
	var out []domain.OrgID
	for _, rec := range s.records {
		if _, ok := seen[rec.OrgID]; ok {
			continue
		}
		seen[rec.OrgID] = struct{}{}
		out = append(out, rec.OrgID)
	}
	return out, nil
}

func (s *Store) Insert(_ context.Context, rec *registration.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return nil
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *Store) UpdateMirroredFields(_ context.Context, rec *registration.Record, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	registration.ApplyMirroredFields(existing, rec)
	at := syncedAt
	existing.SyncedAt = &at
	return nil
}

func (s *Store) SetStatus(_ context.Context, id domain.RegistrationID, status registration.Status, reviewedBy string, reviewedAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = status
	existing.ReviewedBy = reviewedBy
	at := reviewedAt
	existing.ReviewedAt = &at
	existing.RejectionReason = reason
	return nil
}

func (s *Store) MarkSynced(_ context.Context, id, foreignID domain.RegistrationID, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.ForeignID = foreignID
	existing.SyncedToTarget = true
	at := syncedAt
	existing.SyncedAt = &at
	return nil
}

func (s *Store) MarkProvisioned(_ context.Context, id domain.RegistrationID, guardianID domain.GuardianID, studentID domain.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.GuardianID = guardianID
	existing.StudentID = studentID
	return nil
}

func (s *Store) Delete(_ context.Context, id domain.RegistrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Len reports the number of stored records; test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(rec *registration.Record) *registration.Record {
	cp := *rec
	cp.DocumentURLs = slices.Clone(rec.DocumentURLs)
	if rec.ReviewedAt != nil {
		at := *rec.ReviewedAt
		cp.ReviewedAt = &at
	}
	if rec.SyncedAt != nil {
		at := *rec.SyncedAt
		cp.SyncedAt = &at
	}
	return &cp
}
