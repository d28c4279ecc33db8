package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"enrollsync/internal/platform/metrics"
	"enrollsync/pkg/domain"
)

// Service enqueues welcome messages and owns the delivery attempt logic
// shared by the worker and the inline best-effort path.
type Service struct {
	outbox      OutboxStore
	sender      Sender
	resetLinks  ResetLinker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(outbox OutboxStore, sender Sender, resetLinks ResetLinker, maxAttempts int, opts ...Option) (*Service, error) {
	if outbox == nil {
		return nil, errors.New("outbox store is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if resetLinks == nil {
		return nil, errors.New("reset linker is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	svc := &Service{
		outbox:      outbox,
		sender:      sender,
		resetLinks:  resetLinks,
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EnqueueWelcome writes the pending row and attempts an immediate delivery.
// The enqueue failure is surfaced to the caller's response but must not
// fail provisioning; the inline attempt's failure is absorbed entirely,
// the worker picks the row up later.
func (s *Service) EnqueueWelcome(ctx context.Context, guardianID domain.GuardianID, email, firstName, childName, oneTimePW string) error {
	n := &Notification{
		ID:         uuid.New(),
		GuardianID: guardianID,
		Email:      email,
		FirstName:  firstName,
		ChildName:  childName,
		OneTimePW:  oneTimePW,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.outbox.Enqueue(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "welcome enqueue failed", "error", err, "email", email)
		return err
	}

	if err := s.deliver(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "inline welcome delivery failed, worker will retry",
			"error", err, "email", email)
	}
	return nil
}

// deliver renders the message with a reset link minted now and sends it,
// updating the outbox row either way.
func (s *Service) deliver(ctx context.Context, n *Notification) error {
	link, err := s.resetLinks.PasswordResetLink(ctx, n.Email)
	if err != nil {
		return s.recordFailure(ctx, n, err)
	}
	body, err := renderWelcome(n, link)
	if err != nil {
		return s.recordFailure(ctx, n, err)
	}
	if err := s.sender.Send(ctx, n.Email, welcomeSubject, body); err != nil {
		return s.recordFailure(ctx, n, err)
	}

	if err := s.outbox.MarkSent(ctx, n.ID, s.now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "mark sent failed", "error", err, "notification_id", n.ID)
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}
	s.logger.InfoContext(ctx, "welcome message sent", "email", n.Email)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, n *Notification, cause error) error {
	n.Attempts++
	failed := n.Attempts >= s.maxAttempts
	if err := s.outbox.MarkAttempt(ctx, n.ID, n.Attempts, cause.Error(), failed); err != nil {
		s.logger.ErrorContext(ctx, "mark attempt failed", "error", err, "notification_id", n.ID)
	}
	if s.metrics != nil {
		s.metrics.NotificationsFailed.Inc()
	}
	return cause
}
