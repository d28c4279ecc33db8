package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	. "enrollsync/internal/notify"
	notifyMemory "enrollsync/internal/notify/store/memory"
	"enrollsync/pkg/domain"
)

// =============================================================================
// Notifier Test Suite
// =============================================================================
// The welcome message rides an outbox: an inline delivery attempt first,
// with the worker re-driving failures until the attempt cap. The reset link
// must be minted fresh at every send, never stored.

type sentMessage struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent     []sentMessage
	failNext int
}

func (f *fakeSender) Send(_ context.Context, to, subject, htmlBody string) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMessage{to: to, subject: subject, body: htmlBody})
	return nil
}

type fakeResetLinker struct {
	calls int
}

func (f *fakeResetLinker) PasswordResetLink(_ context.Context, email string) (string, error) {
	f.calls++
	return fmt.Sprintf("http://localhost:3000/reset-password?token=t%d", f.calls), nil
}

type NotifySuite struct {
	suite.Suite
	outbox  *notifyMemory.Store
	sender  *fakeSender
	linker  *fakeResetLinker
	service *Service
}

func TestNotifySuite(t *testing.T) {
	suite.Run(t, new(NotifySuite))
}

func (s *NotifySuite) SetupTest() {
	s.outbox = notifyMemory.New()
	s.sender = &fakeSender{}
	s.linker = &fakeResetLinker{}

	var err error
	s.service, err = New(s.outbox, s.sender, s.linker, 3)
	s.Require().NoError(err)
}

func (s *NotifySuite) enqueue() error {
	return s.service.EnqueueWelcome(context.Background(),
		domain.NewGuardianID(), "amina@example.com", "Amina", "Zuri", "otp-12345")
}

func (s *NotifySuite) TestInlineDelivery() {
	s.Require().NoError(s.enqueue())

	s.Run("delivers immediately when the sender is up", func() {
		s.Require().Len(s.sender.sent, 1)
		msg := s.sender.sent[0]
		s.Equal("amina@example.com", msg.to)
		s.Equal(WelcomeSubject(), msg.subject)
		s.Contains(msg.body, "Amina")
		s.Contains(msg.body, "Zuri")
		s.Contains(msg.body, "otp-12345")
		s.Contains(msg.body, "reset-password?token=")
	})

	s.Run("marks the row sent", func() {
		s.Len(s.outbox.ByStatus(StatusSent), 1)
		s.Empty(s.outbox.ByStatus(StatusPending))
	})
}

func (s *NotifySuite) TestWorkerRetriesFailedDelivery() {
	s.sender.failNext = 1
	s.Require().NoError(s.enqueue())

	s.Run("inline failure leaves the row pending", func() {
		s.Empty(s.sender.sent)
		pending := s.outbox.ByStatus(StatusPending)
		s.Require().Len(pending, 1)
		s.Equal(1, pending[0].Attempts)
		s.NotEmpty(pending[0].LastError)
	})

	worker := NewWorker(s.service, 0)
	worker.Drain(context.Background())

	s.Run("worker drain delivers the pending row", func() {
		s.Require().Len(s.sender.sent, 1)
		s.Len(s.outbox.ByStatus(StatusSent), 1)
		s.Empty(s.outbox.ByStatus(StatusPending))
	})

	s.Run("reset link was minted fresh for each attempt", func() {
		s.Equal(2, s.linker.calls)
		s.Contains(s.sender.sent[0].body, "token=t2")
	})
}

func (s *NotifySuite) TestAttemptCapMovesRowToFailed() {
	s.sender.failNext = 3
	s.Require().NoError(s.enqueue())

	worker := NewWorker(s.service, 0)
	worker.Drain(context.Background())
	worker.Drain(context.Background())

	s.Empty(s.sender.sent)
	s.Empty(s.outbox.ByStatus(StatusPending))
	failed := s.outbox.ByStatus(StatusFailed)
	s.Require().Len(failed, 1)
	s.Equal(3, failed[0].Attempts)
}
