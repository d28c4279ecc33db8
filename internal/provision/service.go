package provision

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enrollsync/internal/identity"
	"enrollsync/internal/platform/metrics"
	"enrollsync/pkg/domain"
	dErrors "enrollsync/pkg/domain-errors"
	"enrollsync/pkg/guardianname"
	"enrollsync/pkg/platform/sentinel"
)

var tracer = otel.Tracer("enrollsync/provision")

// Locker serializes the provisioning chain per guardian email. Acquire
// returning ok=false means another invocation holds the lease; the caller
// proceeds on the idempotent path rather than blocking.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// TxRunner executes fn inside one storage transaction. The context passed
// to fn carries the transaction, which the postgres stores pick up through
// their execers; without a runner the writes run individually.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Request carries everything the chain needs from an approved registration.
type Request struct {
	RegistrationID domain.RegistrationID
	OrgID          domain.OrgID

	GuardianName  string
	GuardianEmail string
	GuardianPhone string

	ChildFirstName string
	ChildLastName  string
	ChildBirthDate time.Time
	ChildGender    string

	PaymentPaid     bool
	PaymentVerified bool
	PaymentMethod   string
}

// Result reports what the chain did. Created is true only on the fresh-
// account path; repairs must not re-grant a trial or re-send a welcome
// message.
type Result struct {
	Guardian *GuardianAccount
	Student  *Student
	ClassID  domain.ClassID

	Created  bool
	Repaired bool

	// OneTimePassword is set only when a fresh password was issued
	// (fresh account, or an orphaned identity that was adopted).
	OneTimePassword string
}

// Service is the account provisioner. It must produce exactly one guardian
// account per normalized email no matter how many times the same approval
// event is delivered; correctness comes from lookup-before-write on natural
// keys, with an optional advisory lease shrinking (not eliminating) the
// race window.
type Service struct {
	directory DirectoryStore
	idp       identity.Provider
	locker    Locker
	lockTTL   time.Duration
	txRunner  TxRunner
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// WithTxRunner makes the identity+profile writes of paths 2 and 3 atomic.
func WithTxRunner(r TxRunner) Option {
	return func(s *Service) { s.txRunner = r }
}

// WithTimeout bounds one full chain invocation. Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(directory DirectoryStore, idp identity.Provider, opts ...Option) (*Service, error) {
	if directory == nil {
		return nil, errors.New("directory store is required")
	}
	if idp == nil {
		return nil, errors.New("identity provider is required")
	}
	svc := &Service{
		directory: directory,
		idp:       idp,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Provision runs the full chain: guardian account, student, class
// assignment. Identity/profile failures are fatal; everything downstream is
// step-scoped and leaves the account usable.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "provision.chain")
	defer span.End()

	email := NormalizeEmail(req.GuardianEmail)
	if !govalidator.IsEmail(email) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid guardian email %q", req.GuardianEmail)
	}
	span.SetAttributes(attribute.String("registration_id", req.RegistrationID.String()))

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "provision:"+email, s.lockTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "advisory lock unavailable, proceeding idempotently", "error", err)
		} else if !ok {
			s.logger.InfoContext(ctx, "advisory lock held elsewhere, proceeding idempotently", "email", email)
		} else {
			defer release(ctx)
		}
	}

	res, err := s.ensureAccount(ctx, req, email)
	if err != nil {
		return nil, err
	}

	student, err := s.ensureStudent(ctx, req, res.Guardian)
	if err != nil {
		// Step-scoped: the account exists and stays usable; a redelivery
		// retries the student from the lookup.
		s.logger.ErrorContext(ctx, "student creation failed", "error", err, "email", email)
	} else {
		res.Student = student
		res.ClassID = s.assignClass(ctx, req.OrgID, student)
	}

	return res, nil
}

// ensureAccount is the per-email state machine from the design:
//
//	path 1: profile exists           -> reuse, repair identity ref if nil
//	path 2: identity without profile -> adopt identity, fresh password,
//	                                    profile with id = identity id
//	path 3: neither                  -> create identity then profile
func (s *Service) ensureAccount(ctx context.Context, req Request, email string) (*Result, error) {
	profile, err := s.directory.GetProfileByEmail(ctx, email, RoleParent)
	switch {
	case err == nil:
		// Path 1. No new identity, no password, no email.
		res := &Result{Guardian: profile}
		if profile.IdentityRef.IsNil() {
			if err := s.directory.RepairIdentityRef(ctx, profile.ID); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "repair profile identity reference")
			}
			profile.IdentityRef = profile.ID
			res.Repaired = true
			if s.metrics != nil {
				s.metrics.AccountsRepaired.Inc()
			}
			s.logger.InfoContext(ctx, "repaired profile identity reference", "guardian_id", profile.ID)
			return res, nil
		}
		if s.metrics != nil {
			s.metrics.DuplicatesSkipped.Inc()
		}
		s.logger.InfoContext(ctx, "account already exists, skipped", "email", email)
		return res, nil

	case errors.Is(err, sentinel.ErrNotFound):
		// Fall through to identity probing.

	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "look up guardian profile")
	}

	identities, err := s.idp.ListByEmail(ctx, email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list identities by email")
	}

	if len(identities) > 0 {
		return s.adoptIdentity(ctx, req, email, identities[0])
	}
	return s.createAccount(ctx, req, email)
}

// adoptIdentity is path 2: an identity orphaned by a previous partial
// failure gets a fresh one-time password and its missing profile, written
// together so a crash cannot orphan it a second time.
func (s *Service) adoptIdentity(ctx context.Context, req Request, email string, ident *identity.Identity) (*Result, error) {
	otp, err := GenerateOneTimePassword()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate one-time password")
	}

	profile := s.newProfile(req, email, ident.ID)
	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.idp.UpdatePassword(ctx, ident.ID, otp); err != nil {
			return err
		}
		return s.directory.CreateProfile(ctx, profile)
	})
	if errors.Is(err, sentinel.ErrConflict) {
		// A concurrent invocation finished the account first; nothing of
		// this attempt was committed and the winner's password stands.
		existing, getErr := s.directory.GetProfileByEmail(ctx, email, RoleParent)
		if getErr != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "profile create raced and re-read failed")
		}
		if s.metrics != nil {
			s.metrics.DuplicatesSkipped.Inc()
		}
		return &Result{Guardian: existing}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "repair orphaned identity")
	}

	if s.metrics != nil {
		s.metrics.AccountsRepaired.Inc()
	}
	s.logger.InfoContext(ctx, "adopted orphaned identity",
		"email", email, "guardian_id", ident.ID)
	return &Result{Guardian: profile, Repaired: true, OneTimePassword: otp}, nil
}

// createAccount is path 3, the only path that counts as a new account. The
// identity and its profile are written in one transaction; a conflict on
// either rolls both back and the fallback re-probes what the winner wrote.
func (s *Service) createAccount(ctx context.Context, req Request, email string) (*Result, error) {
	otp, err := GenerateOneTimePassword()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate one-time password")
	}

	var profile *GuardianAccount
	err = s.runInTx(ctx, func(ctx context.Context) error {
		ident, err := s.idp.Create(ctx, email, otp)
		if err != nil {
			return err
		}
		profile = s.newProfile(req, email, ident.ID)
		return s.directory.CreateProfile(ctx, profile)
	})
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost a race with a concurrent invocation past ListByEmail. Adopt
		// the winner's identity, or fall back to its finished profile.
		identities, listErr := s.idp.ListByEmail(ctx, email)
		if listErr != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity create raced and re-list failed")
		}
		if len(identities) > 0 {
			return s.adoptIdentity(ctx, req, email, identities[0])
		}
		existing, getErr := s.directory.GetProfileByEmail(ctx, email, RoleParent)
		if getErr != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity create raced and re-list failed")
		}
		return &Result{Guardian: existing}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create guardian account")
	}

	if s.metrics != nil {
		s.metrics.AccountsProvisioned.Inc()
	}
	s.logger.InfoContext(ctx, "provisioned new guardian account",
		"email", email, "guardian_id", profile.ID)
	return &Result{Guardian: profile, Created: true, OneTimePassword: otp}, nil
}

func (s *Service) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.txRunner == nil {
		return fn(ctx)
	}
	return s.txRunner.RunInTx(ctx, fn)
}

func (s *Service) newProfile(req Request, email string, id domain.GuardianID) *GuardianAccount {
	first, last := guardianname.Split(req.GuardianName, req.ChildLastName, email)
	return &GuardianAccount{
		ID:          id,
		IdentityRef: id,
		Email:       email,
		Role:        RoleParent,
		OrgID:       req.OrgID,
		FirstName:   first,
		LastName:    last,
		Phone:       req.GuardianPhone,
		CreatedAt:   s.now().UTC(),
	}
}

// ensureStudent looks the student up by the natural key before inserting;
// the approval event can be redelivered and re-inserting would duplicate
// the child under the same guardian.
func (s *Service) ensureStudent(ctx context.Context, req Request, guardian *GuardianAccount) (*Student, error) {
	existing, err := s.directory.FindStudent(ctx, req.ChildFirstName, req.ChildLastName, req.ChildBirthDate, guardian.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	st := &Student{
		ID:         domain.NewStudentID(),
		OrgID:      req.OrgID,
		GuardianID: guardian.ID,
		FirstName:  req.ChildFirstName,
		LastName:   req.ChildLastName,
		BirthDate:  req.ChildBirthDate,
		Gender:     req.ChildGender,
		Status:     StudentStatusActive,
		EnrolledAt: s.now().UTC(),

		PaymentPaid:     req.PaymentPaid,
		PaymentVerified: req.PaymentVerified,
		PaymentMethod:   req.PaymentMethod,
	}
	if err := s.directory.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// assignClass places the student in the organization's first active class.
// Placeholder semantics: the point is for the student to be visible in
// some class, not to pick the right one. Errors are logged, never fatal.
func (s *Service) assignClass(ctx context.Context, orgID domain.OrgID, st *Student) domain.ClassID {
	classes, err := s.directory.ListClasses(ctx, orgID)
	if err != nil {
		s.logger.ErrorContext(ctx, "list classes failed", "error", err, "org_id", orgID)
		return domain.ClassID{}
	}
	if len(classes) == 0 {
		s.logger.InfoContext(ctx, "no classes available, student left unassigned", "student_id", st.ID)
		return domain.ClassID{}
	}

	class := classes[0]
	exists, err := s.directory.AssignmentExists(ctx, st.ID, class.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "assignment lookup failed", "error", err, "student_id", st.ID)
		return domain.ClassID{}
	}
	if exists {
		return class.ID
	}

	if err := s.directory.CreateAssignment(ctx, ClassAssignment{
		StudentID:  st.ID,
		ClassID:    class.ID,
		AssignedAt: s.now().UTC(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "class assignment failed", "error", err, "student_id", st.ID)
		return domain.ClassID{}
	}
	return class.ID
}

// NormalizeEmail lowercases and trims; every email comparison in the
// pipeline goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
