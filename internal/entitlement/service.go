package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

// Service writes the trial grant and its usage rows. All writes are
// best-effort: a failure is logged but never rolls back the account that
// was already created, because re-deriving the grant from a clean retry is
// simpler than compensating a partially-created account.
type Service struct {
	store  Store
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, window time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("entitlement store is required")
	}
	if window <= 0 {
		return nil, errors.New("trial window must be positive")
	}
	svc := &Service{
		store:  store,
		window: window,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Grant attaches the trial to a freshly created guardian account. Invoked
// only for new accounts; a repair or redelivery never reaches here, and
// even if it did the at-most-once check below holds.
func (s *Service) Grant(ctx context.Context, guardianID domain.GuardianID) {
	if _, err := s.store.GetTrial(ctx, guardianID); err == nil {
		s.logger.InfoContext(ctx, "trial already granted, skipped", "guardian_id", guardianID)
		return
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "trial lookup failed", "error", err, "guardian_id", guardianID)
		return
	}

	start := s.now().UTC()
	trial := &Trial{
		GuardianID: guardianID,
		Tier:       TierTrial,
		StartsAt:   start,
		ExpiresAt:  start.Add(s.window),
		Active:     true,
	}
	if err := s.store.CreateTrial(ctx, trial); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		s.logger.ErrorContext(ctx, "trial grant failed", "error", err, "guardian_id", guardianID)
		// Fall through: usage rows are still worth attempting so the
		// quota checker has something to read.
	}

	for metric, limit := range trialLimits {
		row := &UsageRow{
			GuardianID:  guardianID,
			Metric:      metric,
			Used:        0,
			Limit:       limit,
			PeriodStart: start,
			PeriodEnd:   start.Add(s.window),
		}
		if err := s.store.UpsertUsageRow(ctx, row); err != nil {
			s.logger.ErrorContext(ctx, "usage row write failed",
				"error", err, "guardian_id", guardianID, "metric", metric)
		}
	}
}
