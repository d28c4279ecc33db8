package provision_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollsync/internal/identity"
	"enrollsync/internal/platform/metrics"
	. "enrollsync/internal/provision"
	provMemory "enrollsync/internal/provision/store/memory"
	"enrollsync/pkg/domain"
	dErrors "enrollsync/pkg/domain-errors"
	"enrollsync/pkg/platform/sentinel"
)

// =============================================================================
// Provisioner Test Suite
// =============================================================================
// The provisioner must produce exactly one guardian account per normalized
// email no matter how many times the same approval is delivered. These tests
// exercise all three state-machine paths plus the redelivery and drift
// scenarios that production sees.

type ProvisionSuite struct {
	suite.Suite
	directory *provMemory.Store
	idp       *identity.MemoryProvider
	service   *Service
	logs      *bytes.Buffer
}

func TestProvisionSuite(t *testing.T) {
	suite.Run(t, new(ProvisionSuite))
}

func (s *ProvisionSuite) SetupTest() {
	s.directory = provMemory.New()
	resetLinks := identity.NewResetLinkBuilder("test-secret", time.Hour, "http://localhost:3000")
	s.idp = identity.NewMemoryProvider(resetLinks)
	s.logs = &bytes.Buffer{}

	var err error
	s.service, err = New(s.directory, s.idp,
		WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))),
		WithMetrics(metrics.NewForTesting()))
	s.Require().NoError(err)
}

func (s *ProvisionSuite) request() Request {
	return Request{
		RegistrationID: domain.NewRegistrationID(),
		OrgID:          domain.NewOrgID(),
		GuardianName:   "Amina Okafor",
		GuardianEmail:  "Amina.Okafor@Example.com",
		GuardianPhone:  "+254700000001",
		ChildFirstName: "Zuri",
		ChildLastName:  "Okafor",
		ChildBirthDate: time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC),
		ChildGender:    "female",
		PaymentPaid:    true,
		PaymentMethod:  "mpesa",
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ProvisionSuite) TestNew() {
	s.Run("nil directory returns error", func() {
		_, err := New(nil, s.idp)
		s.Error(err)
	})

	s.Run("nil identity provider returns error", func() {
		_, err := New(s.directory, nil)
		s.Error(err)
	})
}

// =============================================================================
// Validation
// =============================================================================

func (s *ProvisionSuite) TestInvalidEmail() {
	req := s.request()
	req.GuardianEmail = "not-an-email"

	_, err := s.service.Provision(context.Background(), req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// =============================================================================
// Path 3: Fresh Account
// =============================================================================

func (s *ProvisionSuite) TestFreshAccount() {
	ctx := context.Background()
	req := s.request()

	res, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)

	s.Run("creates identity and profile with the same id", func() {
		s.True(res.Created)
		s.False(res.Repaired)
		s.Require().NotNil(res.Guardian)
		s.Equal(res.Guardian.ID, res.Guardian.IdentityRef)
		s.Equal("amina.okafor@example.com", res.Guardian.Email)

		identities, err := s.idp.ListByEmail(ctx, "amina.okafor@example.com")
		s.Require().NoError(err)
		s.Require().Len(identities, 1)
		s.Equal(identities[0].ID, res.Guardian.ID)
	})

	s.Run("splits the guardian name", func() {
		s.Equal("Amina", res.Guardian.FirstName)
		s.Equal("Okafor", res.Guardian.LastName)
	})

	s.Run("issues a working one-time password", func() {
		s.Require().NotEmpty(res.OneTimePassword)
		s.True(s.idp.CheckPassword(res.Guardian.ID, res.OneTimePassword))
	})

	s.Run("creates the student with the payment snapshot", func() {
		s.Require().NotNil(res.Student)
		s.Equal(res.Guardian.ID, res.Student.GuardianID)
		s.Equal(StudentStatusActive, res.Student.Status)
		s.True(res.Student.PaymentPaid)
		s.Equal("mpesa", res.Student.PaymentMethod)
	})
}

// =============================================================================
// Redelivery (Path 1)
// =============================================================================

func (s *ProvisionSuite) TestRedelivery() {
	ctx := context.Background()
	req := s.request()

	first, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)
	s.Require().True(first.Created)

	second, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)

	s.Run("second run creates nothing new", func() {
		s.False(second.Created)
		s.False(second.Repaired)
		s.Empty(second.OneTimePassword)
		s.Equal(first.Guardian.ID, second.Guardian.ID)
		s.Equal(1, s.directory.CountProfiles())
		s.Equal(1, s.directory.CountStudents())
	})

	s.Run("skip is logged", func() {
		s.Contains(s.logs.String(), "account already exists, skipped")
	})

	s.Run("password from the first run still works", func() {
		s.True(s.idp.CheckPassword(first.Guardian.ID, first.OneTimePassword))
	})
}

// =============================================================================
// Drift Repair (Path 1 With Nil Identity Ref)
// =============================================================================

func (s *ProvisionSuite) TestRepairNilIdentityRef() {
	ctx := context.Background()
	req := s.request()

	guardianID := domain.NewGuardianID()
	s.directory.SeedProfile(GuardianAccount{
		ID:    guardianID,
		Email: "amina.okafor@example.com",
		Role:  RoleParent,
		OrgID: req.OrgID,
	})

	res, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)

	s.True(res.Repaired)
	s.False(res.Created)
	s.Equal(guardianID, res.Guardian.ID)
	s.Equal(guardianID, res.Guardian.IdentityRef)
	s.Empty(res.OneTimePassword)

	stored, err := s.directory.GetProfileByEmail(ctx, "amina.okafor@example.com", RoleParent)
	s.Require().NoError(err)
	s.Equal(guardianID, stored.IdentityRef)
}

// =============================================================================
// Orphaned Identity Adoption (Path 2)
// =============================================================================

func (s *ProvisionSuite) TestAdoptOrphanedIdentity() {
	ctx := context.Background()
	req := s.request()

	orphan := identity.Identity{
		ID:        domain.NewGuardianID(),
		Email:     "amina.okafor@example.com",
		CreatedAt: time.Now().UTC(),
	}
	s.idp.Seed(orphan)

	res, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)

	s.Run("reuses the orphaned identity id for the profile", func() {
		s.True(res.Repaired)
		s.False(res.Created)
		s.Equal(orphan.ID, res.Guardian.ID)
		s.Equal(orphan.ID, res.Guardian.IdentityRef)
	})

	s.Run("does not create a second identity", func() {
		identities, err := s.idp.ListByEmail(ctx, "amina.okafor@example.com")
		s.Require().NoError(err)
		s.Len(identities, 1)
	})

	s.Run("issues a fresh one-time password", func() {
		s.Require().NotEmpty(res.OneTimePassword)
		s.True(s.idp.CheckPassword(orphan.ID, res.OneTimePassword))
	})
}

// =============================================================================
// Student Dedupe
// =============================================================================

func (s *ProvisionSuite) TestStudentDedupe() {
	ctx := context.Background()
	req := s.request()

	_, err := s.service.Provision(ctx, req)
	s.Require().NoError(err)

	// A second approved registration for the same child under the same
	// guardian, delivered with a different registration id.
	req2 := req
	req2.RegistrationID = domain.NewRegistrationID()
	res, err := s.service.Provision(ctx, req2)
	s.Require().NoError(err)

	s.Require().NotNil(res.Student)
	s.Equal(1, s.directory.CountStudents())
}

// =============================================================================
// Class Assignment
// =============================================================================

func (s *ProvisionSuite) TestClassAssignment() {
	ctx := context.Background()
	req := s.request()

	s.Run("no classes leaves the student unassigned", func() {
		res, err := s.service.Provision(ctx, req)
		s.Require().NoError(err)
		s.True(res.ClassID.IsNil())
		s.Equal(0, s.directory.CountAssignments())
	})

	classID := domain.NewClassID()
	s.directory.SeedClass(Class{ID: classID, OrgID: req.OrgID, Name: "Butterflies", Active: true})

	s.Run("assigns the first active class", func() {
		res, err := s.service.Provision(ctx, req)
		s.Require().NoError(err)
		s.Equal(classID, res.ClassID)
		s.Equal(1, s.directory.CountAssignments())
	})

	s.Run("redelivery does not duplicate the assignment", func() {
		res, err := s.service.Provision(ctx, req)
		s.Require().NoError(err)
		s.Equal(classID, res.ClassID)
		s.Equal(1, s.directory.CountAssignments())
	})
}

// =============================================================================
// Identity Create Race
// =============================================================================

// racingProvider loses the identity create to a concurrent invocation: the
// first Create call seeds the winner's identity into the backend and
// reports the conflict, exactly what the real backend does when two chains
// pass ListByEmail together.
type racingProvider struct {
	*identity.MemoryProvider
	winner identity.Identity
	raced  bool
}

func (p *racingProvider) Create(ctx context.Context, email, password string) (*identity.Identity, error) {
	if !p.raced {
		p.raced = true
		p.winner = identity.Identity{
			ID:        domain.NewGuardianID(),
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
		p.MemoryProvider.Seed(p.winner)
		return nil, sentinel.ErrConflict
	}
	return p.MemoryProvider.Create(ctx, email, password)
}

func (s *ProvisionSuite) TestIdentityCreateRaceAdoptsWinner() {
	ctx := context.Background()
	req := s.request()

	idp := &racingProvider{MemoryProvider: s.idp}
	service, err := New(s.directory, idp)
	s.Require().NoError(err)

	res, err := service.Provision(ctx, req)
	s.Require().NoError(err)

	s.Run("adopts the winning identity", func() {
		s.True(res.Repaired)
		s.False(res.Created)
		s.Equal(idp.winner.ID, res.Guardian.ID)
		s.Equal(idp.winner.ID, res.Guardian.IdentityRef)
	})

	s.Run("exactly one identity and one profile exist", func() {
		identities, err := s.idp.ListByEmail(ctx, "amina.okafor@example.com")
		s.Require().NoError(err)
		s.Len(identities, 1)
		s.Equal(1, s.directory.CountProfiles())
	})

	s.Run("a fresh one-time password works against the winner", func() {
		s.Require().NotEmpty(res.OneTimePassword)
		s.True(s.idp.CheckPassword(idp.winner.ID, res.OneTimePassword))
	})
}

// =============================================================================
// Transactional Account Writes
// =============================================================================

type recordingTxRunner struct {
	runs    int
	failErr error
}

func (r *recordingTxRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	r.runs++
	if r.failErr != nil {
		return r.failErr
	}
	return fn(ctx)
}

func (s *ProvisionSuite) TestAccountWritesShareOneTransaction() {
	ctx := context.Background()
	req := s.request()

	runner := &recordingTxRunner{}
	service, err := New(s.directory, s.idp, WithTxRunner(runner))
	s.Require().NoError(err)

	s.Run("fresh account opens exactly one transaction", func() {
		res, err := service.Provision(ctx, req)
		s.Require().NoError(err)
		s.True(res.Created)
		s.Equal(1, runner.runs)
	})

	s.Run("redelivery opens none", func() {
		_, err := service.Provision(ctx, req)
		s.Require().NoError(err)
		s.Equal(1, runner.runs)
	})
}

func (s *ProvisionSuite) TestOrphanAdoptionSharesOneTransaction() {
	ctx := context.Background()
	req := s.request()

	s.idp.Seed(identity.Identity{
		ID:        domain.NewGuardianID(),
		Email:     "amina.okafor@example.com",
		CreatedAt: time.Now().UTC(),
	})

	runner := &recordingTxRunner{}
	service, err := New(s.directory, s.idp, WithTxRunner(runner))
	s.Require().NoError(err)

	res, err := service.Provision(ctx, req)
	s.Require().NoError(err)
	s.True(res.Repaired)
	s.Equal(1, runner.runs)
}

func (s *ProvisionSuite) TestTransactionFailureIsFatal() {
	ctx := context.Background()
	req := s.request()

	runner := &recordingTxRunner{failErr: errors.New("begin: connection reset")}
	service, err := New(s.directory, s.idp, WithTxRunner(runner))
	s.Require().NoError(err)

	_, err = service.Provision(ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(0, s.directory.CountProfiles())
}

// =============================================================================
// Chain Timeout
// =============================================================================

type deadlineRecordingDirectory struct {
	*provMemory.Store
	sawDeadline bool
}

func (d *deadlineRecordingDirectory) GetProfileByEmail(ctx context.Context, email, role string) (*GuardianAccount, error) {
	_, d.sawDeadline = ctx.Deadline()
	return d.Store.GetProfileByEmail(ctx, email, role)
}

func (s *ProvisionSuite) TestTimeoutBoundsTheChain() {
	ctx := context.Background()
	req := s.request()

	directory := &deadlineRecordingDirectory{Store: s.directory}
	service, err := New(directory, s.idp, WithTimeout(time.Minute))
	s.Require().NoError(err)

	_, err = service.Provision(ctx, req)
	s.Require().NoError(err)
	s.True(directory.sawDeadline, "chain context must carry the configured deadline")
}

// =============================================================================
// Email Normalization
// =============================================================================

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Amina@Example.COM ": "amina@example.com",
		"plain@example.com":    "plain@example.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
