package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"credere/internal/domain"
	"credere/internal/identity"
	"credere/internal/notify"
	"credere/internal/store/memory"
	pkgerrors "credere/pkg/errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	notifier *notify.Recorder
	svc      *Service
	now      time.Time
	seq      int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.notifier = &notify.Recorder{}
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ident, err := identity.New("test-hash-key")
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = NewService(s.store, s.notifier, ident, logger,
		WithClock(func() time.Time { return s.now }),
	)
}

// seed creates a lender, a borrower and an application in the given status.
func (s *ServiceSuite) seed(status domain.ApplicationStatus) *domain.Application {
	lender := &domain.Lender{Name: "Bancoldex", EmailGroup: "credit@bancoldex.example", SLADays: 10}
	s.Require().NoError(s.store.Lenders().Create(s.ctx, lender))

	s.seq++
	borrower := &domain.Borrower{
		Identifier: fmt.Sprintf("borrower-%d", s.seq),
		LegalName:  "Acme SAS",
		Email:      "owner@acme.example",
		Status:     domain.BorrowerActive,
	}
	s.Require().NoError(s.store.Borrowers().Create(s.ctx, borrower))

	app := &domain.Application{
		AccessToken:  fmt.Sprintf("token-%d", s.seq),
		DedupKey:     fmt.Sprintf("dedup-%d", s.seq),
		Status:       status,
		BorrowerID:   borrower.ID,
		AwardID:      1,
		PrimaryEmail: borrower.Email,
		CreatedAt:    s.now.Add(-48 * time.Hour),
	}
	if status != domain.StatusPending {
		app.LenderID = &lender.ID
	}
	s.Require().NoError(s.store.Applications().Create(s.ctx, app))
	return app
}

func (s *ServiceSuite) hasAction(appID int64, t domain.ApplicationActionType) bool {
	ok, err := s.store.Actions().ExistsByType(s.ctx, appID, t)
	s.Require().NoError(err)
	return ok
}

func (s *ServiceSuite) TestAccept() {
	s.Run("pending application is accepted and stops expiring", func() {
		app := s.seed(domain.StatusPending)
		expires := s.now.Add(time.Hour)
		app.ExpiredAt = &expires
		s.Require().NoError(s.store.Applications().Update(s.ctx, app))

		got, err := s.svc.Accept(s.ctx, app.AccessToken)
		s.Require().NoError(err)
		s.Equal(domain.StatusAccepted, got.Status)
		s.Nil(got.ExpiredAt)
		s.True(s.hasAction(app.ID, domain.ActionBorrowerAccepted))
	})

	s.Run("expired token is refused", func() {
		app := s.seed(domain.StatusPending)
		app.AccessToken = "token-expired"
		app.DedupKey = "dedup-expired"
		expired := s.now.Add(-time.Hour)
		app.ExpiredAt = &expired
		s.Require().NoError(s.store.Applications().Update(s.ctx, app))

		_, err := s.svc.Accept(s.ctx, app.AccessToken)
		s.Require().Error(err)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	})

	s.Run("unknown token is not found", func() {
		_, err := s.svc.Accept(s.ctx, "no-such-token")
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeclineAndRollback() {
	app := s.seed(domain.StatusPending)

	got, err := s.svc.Decline(s.ctx, app.AccessToken, DeclineParams{DeclineAll: true})
	s.Require().NoError(err)
	s.Equal(domain.StatusDeclined, got.Status)
	s.Require().NotNil(got.DeclinedAt)

	b, err := s.store.Borrowers().GetByID(s.ctx, app.BorrowerID)
	s.Require().NoError(err)
	s.Equal(domain.BorrowerDeclinedOpportunities, b.Status)
	s.Equal(got.DeclinedAt, b.DeclinedAt)

	got, err = s.svc.RollbackDecline(s.ctx, app.AccessToken)
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, got.Status)
	s.Nil(got.DeclinedAt)

	b, err = s.store.Borrowers().GetByID(s.ctx, app.BorrowerID)
	s.Require().NoError(err)
	s.Equal(domain.BorrowerActive, b.Status)
	s.Nil(b.DeclinedAt)
}

func (s *ServiceSuite) TestRollbackArchivedRefused() {
	app := s.seed(domain.StatusDeclined)
	archived := s.now.Add(-time.Hour)
	app.ArchivedAt = &archived
	s.Require().NoError(s.store.Applications().Update(s.ctx, app))

	_, err := s.svc.RollbackDecline(s.ctx, app.AccessToken)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("notifies borrower and lender atomically", func() {
		app := s.seed(domain.StatusAccepted)

		got, err := s.svc.Submit(s.ctx, app.AccessToken, SubmitParams{
			LenderID:        *app.LenderID,
			AmountRequested: decimal.NewFromInt(50_000_000),
		})
		s.Require().NoError(err)
		s.Equal(domain.StatusSubmitted, got.Status)
		s.Require().NotNil(got.AmountRequested)

		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateSubmissionComplete))
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateNewApplicationLender))

		msgs, err := s.store.Messages().ListByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Len(msgs, 2)
	})

	s.Run("failed dispatch rolls the whole transition back", func() {
		app := s.seed(domain.StatusAccepted)
		app.AccessToken = "token-fail"
		app.DedupKey = "dedup-fail"
		s.Require().NoError(s.store.Applications().Update(s.ctx, app))

		s.notifier.FailWith = errors.New("smtp down")
		defer func() { s.notifier.FailWith = nil }()

		_, err := s.svc.Submit(s.ctx, app.AccessToken, SubmitParams{
			LenderID:        *app.LenderID,
			AmountRequested: decimal.NewFromInt(1000),
		})
		s.Require().Error(err)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeUnavailable))

		// Nothing committed: status, actions and messages are untouched.
		after, err := s.store.Applications().GetByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusAccepted, after.Status)
		s.False(s.hasAction(app.ID, domain.ActionBorrowerSubmitted))
		msgs, err := s.store.Messages().ListByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Empty(msgs)
	})

	s.Run("requires a lender", func() {
		app := s.seed(domain.StatusAccepted)
		_, err := s.svc.Submit(s.ctx, app.AccessToken, SubmitParams{})
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestLenderReview() {
	app := s.seed(domain.StatusSubmitted)
	userID := int64(7)

	got, err := s.svc.Start(s.ctx, app.ID, userID)
	s.Require().NoError(err)
	s.Equal(domain.StatusStarted, got.Status)
	s.Require().NotNil(got.LenderStartedAt)

	got, err = s.svc.RequestInformation(s.ctx, app.ID, userID, "please send bank statements")
	s.Require().NoError(err)
	s.Equal(domain.StatusInformationRequested, got.Status)
	s.Equal(1, s.notifier.CountByTemplate(notify.TemplateInformationRequest))

	got, err = s.svc.CompleteInformationRequest(s.ctx, app.AccessToken)
	s.Require().NoError(err)
	s.Equal(domain.StatusStarted, got.Status)
	s.True(s.hasAction(app.ID, domain.ActionBorrowerDocumentsCompleted))

	got, err = s.svc.Approve(s.ctx, app.ID, userID, nil)
	s.Require().NoError(err)
	s.Equal(domain.StatusApproved, got.Status)
	s.Equal(1, s.notifier.CountByTemplate(notify.TemplateApproved))

	got, err = s.svc.UploadContract(s.ctx, app.AccessToken, decimal.NewFromInt(48_000_000))
	s.Require().NoError(err)
	s.Equal(domain.StatusContractUploaded, got.Status)
	s.Equal(1, s.notifier.CountByTemplate(notify.TemplateContractUploadedBorrower))
	s.Equal(1, s.notifier.CountByTemplate(notify.TemplateContractUploadedLender))

	got, err = s.svc.Complete(s.ctx, app.ID, userID, decimal.NewFromInt(48_000_000))
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, got.Status)
	s.Require().NotNil(got.DisbursedFinalAmount)
	s.Equal(1, s.notifier.CountByTemplate(notify.TemplateCreditDisbursed))
}

func (s *ServiceSuite) TestRejectFromContractUploaded() {
	app := s.seed(domain.StatusContractUploaded)
	got, err := s.svc.Reject(s.ctx, app.ID, 7, nil)
	s.Require().NoError(err)
	s.Equal(domain.StatusRejected, got.Status)
	s.Require().NotNil(got.RejectedAt)
}

func (s *ServiceSuite) TestFindAlternativeCredit() {
	app := s.seed(domain.StatusRejected)

	s.Run("copies a rejected application into a fresh pending one", func() {
		copied, err := s.svc.FindAlternativeCredit(s.ctx, app.AccessToken)
		s.Require().NoError(err)
		s.Equal(domain.StatusPending, copied.Status)
		s.NotEqual(app.ID, copied.ID)
		s.NotEqual(app.AccessToken, copied.AccessToken)
		s.NotEqual(app.DedupKey, copied.DedupKey)
		s.Equal(app.BorrowerID, copied.BorrowerID)
		s.Equal(app.AwardID, copied.AwardID)
		s.Require().NotNil(copied.ExpiredAt)
		s.Nil(copied.LenderID)

		s.True(s.hasAction(app.ID, domain.ActionCopiedApplication))
		s.True(s.hasAction(copied.ID, domain.ActionApplicationCopiedFrom))
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateAlternativeCredit))
	})

	s.Run("copying twice is refused", func() {
		_, err := s.svc.FindAlternativeCredit(s.ctx, app.AccessToken)
		s.Require().Error(err)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	})

	s.Run("only rejected applications qualify", func() {
		other := s.seed(domain.StatusStarted)
		other.AccessToken = "token-started"
		other.DedupKey = "dedup-started"
		s.Require().NoError(s.store.Applications().Update(s.ctx, other))

		_, err := s.svc.FindAlternativeCredit(s.ctx, other.AccessToken)
		s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestLapse() {
	app := s.seed(domain.StatusAccepted)
	got, err := s.svc.Lapse(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusLapsed, got.Status)
	s.Require().NotNil(got.LapsedAt)
	s.True(s.hasAction(app.ID, domain.ActionApplicationLapsed))
}
