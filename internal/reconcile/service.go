// Package reconcile orchestrates the pipeline: it applies the classified
// insert/update/delete batches between the two stores, back-propagates
// reviewer status changes, and drives provisioning for approved records.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enrollsync/internal/audit"
	"enrollsync/internal/platform/metrics"
	"enrollsync/internal/provision"
	"enrollsync/internal/registration"
	"enrollsync/pkg/domain"
	dErrors "enrollsync/pkg/domain-errors"
	"enrollsync/pkg/platform/sentinel"
)

var tracer = otel.Tracer("enrollsync/reconcile")

// Provisioner runs the guardian account chain for one approved record.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
}

// Grantor attaches the trial to a freshly created account. Best-effort.
type Grantor interface {
	Grant(ctx context.Context, guardianID domain.GuardianID)
}

// Notifier enqueues the welcome message for a freshly created account.
type Notifier interface {
	EnqueueWelcome(ctx context.Context, guardianID domain.GuardianID, email, firstName, childName, oneTimePW string) error
}

// Service applies sweeps and status-change events. It is stateless; two
// invocations for the same registration may race and correctness comes
// from the idempotent store operations underneath.
type Service struct {
	source      registration.Store
	target      registration.Store
	locator     *registration.Locator
	provisioner Provisioner
	grantor     Grantor
	notifier    Notifier
	trail       audit.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditTrail(trail audit.Publisher) Option {
	return func(s *Service) { s.trail = trail }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(source, target registration.Store, provisioner Provisioner, grantor Grantor, notifier Notifier, opts ...Option) (*Service, error) {
	if source == nil || target == nil {
		return nil, errors.New("both stores are required")
	}
	if provisioner == nil {
		return nil, errors.New("provisioner is required")
	}
	if grantor == nil {
		return nil, errors.New("entitlement grantor is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	svc := &Service{
		source:      source,
		target:      target,
		locator:     registration.NewLocator(source, registration.OriginSource, target, registration.OriginTarget),
		provisioner: provisioner,
		grantor:     grantor,
		notifier:    notifier,
		trail:       audit.NewNopPublisher(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SweepResult summarizes what one sweep applied.
type SweepResult struct {
	Inserted    int
	Updated     int
	Deleted     int
	Skipped     int
	Provisioned int
}

// Sweep reconciles one organization. Batches run insert, update, delete in
// that order so a crash between batches leaves the system under-applied but
// never over-applied; every batch is safe to re-run. Row failures are
// logged and skipped, they never abort the sibling rows.
func (s *Service) Sweep(ctx context.Context, orgID domain.OrgID) (*SweepResult, error) {
	ctx, span := tracer.Start(ctx, "reconcile.sweep")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID.String()))

	started := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
		}
	}()

	sourceRecs, err := s.source.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list source records")
	}
	targetRecs, err := s.target.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list target records")
	}

	cls := registration.Classify(sourceRecs, targetRecs)
	res := &SweepResult{}

	s.applyInserts(ctx, cls.New, res)
	s.applyUpdates(ctx, cls.Changed, res)
	s.applyDeletes(ctx, cls.Orphaned, res)
	s.provisionApprovedBatch(ctx, sourceRecs, res)

	s.trail.Publish(ctx, audit.Event{
		Action: audit.ActionSweepCompleted,
		OrgID:  orgID,
		Detail: map[string]any{
			"inserted":    res.Inserted,
			"updated":     res.Updated,
			"deleted":     res.Deleted,
			"skipped":     res.Skipped,
			"provisioned": res.Provisioned,
		},
		OccurredAt: s.now().UTC(),
	})
	s.logger.InfoContext(ctx, "sweep completed", "org_id", orgID,
		"inserted", res.Inserted, "updated", res.Updated,
		"deleted", res.Deleted, "skipped", res.Skipped,
		"provisioned", res.Provisioned)
	return res, nil
}

func (s *Service) applyInserts(ctx context.Context, recs []*registration.Record, res *SweepResult) {
	syncedAt := s.now().UTC()
	for _, src := range recs {
		mirror := registration.NewMirror(src)
		if err := s.target.Insert(ctx, mirror); err != nil {
			s.rowSkipped(ctx, "mirror insert failed", src.ID, err, res)
			continue
		}
		if err := s.source.MarkSynced(ctx, src.ID, mirror.ID, syncedAt); err != nil {
			// The mirror exists; the bookkeeping catches up next sweep
			// because the deterministic mirror id makes re-insert a no-op.
			s.logger.WarnContext(ctx, "mark synced failed after insert",
				"error", err, "registration_id", src.ID)
		}
		res.Inserted++
		if s.metrics != nil {
			s.metrics.RecordsInserted.Inc()
		}
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionMirrorInserted,
			OrgID:          src.OrgID,
			RegistrationID: src.ID,
			OccurredAt:     syncedAt,
		})
	}
}

func (s *Service) applyUpdates(ctx context.Context, pairs []registration.ChangePair, res *SweepResult) {
	syncedAt := s.now().UTC()
	for _, pair := range pairs {
		registration.ApplyMirroredFields(pair.Mirror, pair.Source)
		if err := s.target.UpdateMirroredFields(ctx, pair.Mirror, syncedAt); err != nil {
			s.rowSkipped(ctx, "mirror update failed", pair.Source.ID, err, res)
			continue
		}
		res.Updated++
		if s.metrics != nil {
			s.metrics.RecordsUpdated.Inc()
		}
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionMirrorUpdated,
			OrgID:          pair.Source.OrgID,
			RegistrationID: pair.Source.ID,
			OccurredAt:     syncedAt,
		})
	}
}

// applyDeletes removes orphaned mirrors. Classify only ever proposes
// records with foreign-id provenance, so target-only rows are untouchable
// here. A failed delete is retried naturally on the next sweep.
func (s *Service) applyDeletes(ctx context.Context, recs []*registration.Record, res *SweepResult) {
	for _, orphan := range recs {
		if err := s.target.Delete(ctx, orphan.ID); err != nil {
			s.logger.ErrorContext(ctx, "orphan delete failed, will retry next sweep",
				"error", err, "registration_id", orphan.ID)
			continue
		}
		res.Deleted++
		if s.metrics != nil {
			s.metrics.RecordsDeleted.Inc()
		}
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionMirrorDeleted,
			OrgID:          orphan.OrgID,
			RegistrationID: orphan.ID,
			OccurredAt:     s.now().UTC(),
		})
	}
}

// provisionApprovedBatch picks up approved records the event path missed,
// for example an approval whose webhook delivery was lost.
func (s *Service) provisionApprovedBatch(ctx context.Context, recs []*registration.Record, res *SweepResult) {
	for _, rec := range recs {
		if rec.Status != registration.StatusApproved || !rec.GuardianID.IsNil() {
			continue
		}
		if err := s.provisionApproved(ctx, s.source, rec); err != nil {
			s.rowSkipped(ctx, "provisioning failed", rec.ID, err, res)
			continue
		}
		res.Provisioned++
	}
}

// StatusChange is the payload of a reviewer-driven trigger event.
type StatusChange struct {
	RegistrationID domain.RegistrationID
	Before         registration.Status
	After          registration.Status
	ReviewedBy     string
	ReviewedAt     time.Time
	Reason         string
}

// HandleStatusChange processes one trigger event: locate the record,
// back-propagate the status to its counterpart when provenance allows, and
// run provisioning when the record just became approved.
//
// A record absent from both stores is a no-op, not an error: it may have
// been deleted between event emission and processing.
func (s *Service) HandleStatusChange(ctx context.Context, change StatusChange) error {
	ctx, span := tracer.Start(ctx, "reconcile.status_change")
	defer span.End()
	span.SetAttributes(attribute.String("registration_id", change.RegistrationID.String()))

	if !change.After.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", change.After)
	}

	located, err := s.locator.Locate(ctx, change.RegistrationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.InfoContext(ctx, "record vanished before processing, skipped",
			"registration_id", change.RegistrationID)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "locate registration")
	}

	rec := located.Record
	if err := s.backPropagate(ctx, located, change); err != nil {
		return err
	}

	if change.After == registration.StatusApproved && rec.GuardianID.IsNil() {
		// Keep the in-memory copy consistent with the event before
		// provisioning reads its fields.
		rec.Status = change.After
		if err := s.provisionApproved(ctx, s.storeFor(located.Origin), rec); err != nil {
			return err
		}
	}
	return nil
}

// backPropagate mirrors the status edit onto the counterpart record. Both
// platforms fire a row hook on every status write, including the ones this
// service makes, so two guards break the echo loop: only a record that
// originated elsewhere (foreign-id provenance without the origin-side
// synced flag) propagates, and a counterpart already carrying the status
// is left untouched so the hook chain terminates.
func (s *Service) backPropagate(ctx context.Context, located *registration.Located, change StatusChange) error {
	rec := located.Record
	if !rec.Mirrored() || rec.SyncedToTarget {
		// Origin-side edits reach the mirror through the sweep's update
		// batch; a never-mirrored record has nowhere to propagate.
		return nil
	}

	opposite := s.storeFor(located.Origin.Opposite())
	counterpart, err := opposite.Get(ctx, rec.ForeignID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "counterpart record missing, status not propagated",
			"registration_id", rec.ID, "foreign_id", rec.ForeignID)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "read counterpart record")
	}
	if counterpart.Status == change.After {
		return nil
	}

	err = opposite.SetStatus(ctx, rec.ForeignID, change.After, change.ReviewedBy, change.ReviewedAt, change.Reason)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "counterpart record missing, status not propagated",
			"registration_id", rec.ID, "foreign_id", rec.ForeignID)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "propagate status to counterpart")
	}

	s.trail.Publish(ctx, audit.Event{
		Action:         audit.ActionStatusPropagated,
		OrgID:          rec.OrgID,
		RegistrationID: rec.ID,
		Detail:         map[string]any{"status": string(change.After)},
		OccurredAt:     s.now().UTC(),
	})
	return nil
}

// provisionApproved runs the account chain for one approved record and
// records the guardian/student back-references in the origin store. Only a
// freshly created account (path 3) triggers the trial grant and the
// welcome message.
func (s *Service) provisionApproved(ctx context.Context, origin registration.Store, rec *registration.Record) error {
	res, err := s.provisioner.Provision(ctx, provision.Request{
		RegistrationID:  rec.ID,
		OrgID:           rec.OrgID,
		GuardianName:    rec.GuardianName,
		GuardianEmail:   rec.GuardianEmail,
		GuardianPhone:   rec.GuardianPhone,
		ChildFirstName:  rec.ChildFirstName,
		ChildLastName:   rec.ChildLastName,
		ChildBirthDate:  rec.ChildBirthDate,
		ChildGender:     rec.ChildGender,
		PaymentPaid:     rec.PaymentPaid,
		PaymentVerified: rec.PaymentVerified,
		PaymentMethod:   rec.PaymentMethod,
	})
	if err != nil {
		return err
	}

	guardianID := res.Guardian.ID
	studentID := domain.StudentID{}
	if res.Student != nil {
		studentID = res.Student.ID
	}
	if err := origin.MarkProvisioned(ctx, rec.ID, guardianID, studentID); err != nil {
		s.logger.ErrorContext(ctx, "mark provisioned failed",
			"error", err, "registration_id", rec.ID)
	} else {
		rec.GuardianID = guardianID
		rec.StudentID = studentID
	}

	switch {
	case res.Created:
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionAccountProvisioned,
			OrgID:          rec.OrgID,
			RegistrationID: rec.ID,
			GuardianID:     guardianID,
			OccurredAt:     s.now().UTC(),
		})
		s.grantor.Grant(ctx, guardianID)
		s.trail.Publish(ctx, audit.Event{
			Action:     audit.ActionTrialGranted,
			OrgID:      rec.OrgID,
			GuardianID: guardianID,
			OccurredAt: s.now().UTC(),
		})
		if err := s.notifier.EnqueueWelcome(ctx, guardianID, res.Guardian.Email,
			res.Guardian.FirstName, rec.ChildFirstName, res.OneTimePassword); err != nil {
			// Non-fatal: the registration is still recorded as synced.
			s.logger.ErrorContext(ctx, "welcome notification failed",
				"error", err, "guardian_id", guardianID)
		} else {
			s.trail.Publish(ctx, audit.Event{
				Action:     audit.ActionWelcomeEnqueued,
				OrgID:      rec.OrgID,
				GuardianID: guardianID,
				OccurredAt: s.now().UTC(),
			})
		}

	case res.Repaired:
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionAccountRepaired,
			OrgID:          rec.OrgID,
			RegistrationID: rec.ID,
			GuardianID:     guardianID,
			OccurredAt:     s.now().UTC(),
		})

	default:
		s.trail.Publish(ctx, audit.Event{
			Action:         audit.ActionDuplicateSkipped,
			OrgID:          rec.OrgID,
			RegistrationID: rec.ID,
			GuardianID:     guardianID,
			OccurredAt:     s.now().UTC(),
		})
	}
	return nil
}

func (s *Service) storeFor(origin registration.Origin) registration.Store {
	if origin == registration.OriginSource {
		return s.source
	}
	return s.target
}

func (s *Service) rowSkipped(ctx context.Context, msg string, id domain.RegistrationID, err error, res *SweepResult) {
	res.Skipped++
	if s.metrics != nil {
		s.metrics.RowsSkipped.Inc()
	}
	s.logger.ErrorContext(ctx, msg, "error", err, "registration_id", id)
}
