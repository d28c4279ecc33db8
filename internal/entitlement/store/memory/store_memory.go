// Package memory is the in-memory entitlement store twin used by tests.
package memory

import (
	"context"
	"sync"

	"enrollsync/internal/entitlement"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

type usageKey struct {
	guardian domain.GuardianID
	metric   string
}

type Store struct {
	mu     sync.RWMutex
	trials map[domain.GuardianID]*entitlement.Trial
	usage  map[usageKey]*entitlement.UsageRow
}

func New() *Store {
	return &Store{
		trials: make(map[domain.GuardianID]*entitlement.Trial),
		usage:  make(map[usageKey]*entitlement.UsageRow),
	}
}

func (s *Store) GetTrial(_ context.Context, guardianID domain.GuardianID) (*entitlement.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trials[guardianID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateTrial(_ context.Context, t *entitlement.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trials[t.GuardianID]; exists {
		return sentinel.ErrConflict
	}
	cp := *t
	s.trials[t.GuardianID] = &cp
	return nil
}

func (s *Store) UpsertUsageRow(_ context.Context, row *entitlement.UsageRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{guardian: row.GuardianID, metric: row.Metric}
	if _, exists := s.usage[key]; exists {
		return nil
	}
	cp := *row
	s.usage[key] = &cp
	return nil
}

// CountTrials reports stored trials; test helper.
func (s *Store) CountTrials() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trials)
}

// CountUsageRows reports stored usage rows; test helper.
func (s *Store) CountUsageRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usage)
}
