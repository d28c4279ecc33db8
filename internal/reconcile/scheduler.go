package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the full sweep for every known organization on a fixed
// interval. Each per-org sweep gets its own wall-clock timeout so one slow
// tenant cannot starve the rest of the cycle.
type Scheduler struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(service *Service, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (sc *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.cycle(ctx)
		}
	}
}

func (sc *Scheduler) cycle(ctx context.Context) {
	orgIDs, err := sc.service.source.ListOrgIDs(ctx)
	if err != nil {
		sc.logger.ErrorContext(ctx, "list organizations failed", "error", err)
		return
	}

	for _, orgID := range orgIDs {
		sweepCtx, cancel := context.WithTimeout(ctx, sc.timeout)
		if _, err := sc.service.Sweep(sweepCtx, orgID); err != nil {
			sc.logger.ErrorContext(ctx, "scheduled sweep failed", "error", err, "org_id", orgID)
		}
		cancel()
	}
}
