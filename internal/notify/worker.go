package notify

import (
	"context"
	"time"
)

// Worker drains the outbox on an interval, redelivering messages whose
// inline attempt failed. It keeps running until the context is cancelled.
type Worker struct {
	service  *Service
	interval time.Duration
	batch    int
}

func NewWorker(service *Service, interval time.Duration) *Worker {
	return &Worker{service: service, interval: interval, batch: 20}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain attempts every pending row once. Per-row failures are already
// recorded by deliver; the sweep itself never aborts on one bad row.
func (w *Worker) drain(ctx context.Context) {
	pending, err := w.service.outbox.ListPending(ctx, w.batch)
	if err != nil {
		w.service.logger.ErrorContext(ctx, "outbox list failed", "error", err)
		return
	}
	for _, n := range pending {
		_ = w.service.deliver(ctx, n)
	}
}
