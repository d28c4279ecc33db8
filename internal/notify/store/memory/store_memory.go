// Package memory is the in-memory outbox twin used by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrollsync/internal/notify"
	"enrollsync/pkg/platform/sentinel"
)

type Store struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*notify.Notification
}

func New() *Store {
	return &Store{rows: make(map[uuid.UUID]*notify.Notification)}
}

func (s *Store) Enqueue(_ context.Context, n *notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.rows[n.ID] = &cp
	return nil
}

func (s *Store) ListPending(_ context.Context, limit int) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*notify.Notification
	for _, n := range s.rows {
		if n.Status == notify.StatusPending {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.Status = notify.StatusSent
	sentAt := at
	n.SentAt = &sentAt
	return nil
}

func (s *Store) MarkAttempt(_ context.Context, id uuid.UUID, attempts int, lastError string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.Attempts = attempts
	n.LastError = lastError
	if failed {
		n.Status = notify.StatusFailed
	}
	return nil
}

// ByStatus returns copies of rows in the given status; test helper.
func (s *Store) ByStatus(status string) []*notify.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*notify.Notification
	for _, n := range s.rows {
		if n.Status == status {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}
