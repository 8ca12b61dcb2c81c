package sched

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credere/internal/domain"
	"credere/internal/identity"
	"credere/internal/lifecycle"
	"credere/internal/notify"
	"credere/internal/store/memory"
)

type JobsSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	notifier *notify.Recorder
	jobs     *Jobs
	now      time.Time
	seq      int
}

func TestJobsSuite(t *testing.T) {
	suite.Run(t, new(JobsSuite))
}

func (s *JobsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.notifier = &notify.Recorder{}
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ident, err := identity.New("test-hash-key")
	s.Require().NoError(err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lc := lifecycle.NewService(s.store, s.notifier, ident, logger,
		lifecycle.WithClock(func() time.Time { return s.now }),
	)
	s.jobs = NewJobs(s.store, lc, s.notifier, logger, Config{
		AdminEmail: "ops@credere.example",
	}).WithClock(func() time.Time { return s.now })
}

func (s *JobsSuite) seedBorrower() *domain.Borrower {
	s.seq++
	b := &domain.Borrower{
		Identifier: fmt.Sprintf("borrower-%d", s.seq),
		LegalName:  "Acme SAS",
		Email:      "owner@acme.example",
		Status:     domain.BorrowerActive,
	}
	s.Require().NoError(s.store.Borrowers().Create(s.ctx, b))
	return b
}

func (s *JobsSuite) seedApp(status domain.ApplicationStatus, mutate func(*domain.Application)) *domain.Application {
	borrower := s.seedBorrower()
	s.seq++
	app := &domain.Application{
		AccessToken:  fmt.Sprintf("token-%d", s.seq),
		DedupKey:     fmt.Sprintf("dedup-%d", s.seq),
		Status:       status,
		BorrowerID:   borrower.ID,
		AwardID:      1,
		PrimaryEmail: borrower.Email,
		CreatedAt:    s.now.Add(-48 * time.Hour),
	}
	if mutate != nil {
		mutate(app)
	}
	s.Require().NoError(s.store.Applications().Create(s.ctx, app))
	return app
}

func (s *JobsSuite) seedLender(slaDays int) *domain.Lender {
	lender := &domain.Lender{Name: "Bancoldex", EmailGroup: "credit@bancoldex.example", SLADays: slaDays}
	s.Require().NoError(s.store.Lenders().Create(s.ctx, lender))
	return lender
}

func (s *JobsSuite) TestSendReminders() {
	expiringSoon := s.now.Add(48 * time.Hour)
	farAway := s.now.Add(30 * 24 * time.Hour)

	s.seedApp(domain.StatusPending, func(a *domain.Application) { a.ExpiredAt = &expiringSoon })
	s.seedApp(domain.StatusPending, func(a *domain.Application) { a.ExpiredAt = &farAway })
	s.seedApp(domain.StatusAccepted, func(a *domain.Application) { a.ExpiredAt = &expiringSoon })

	s.Run("reminds only applications expiring within the window", func() {
		sent, err := s.jobs.SendReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, sent)
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateIntroReminder))
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateSubmitReminder))
	})

	s.Run("rerun sends nothing", func() {
		sent, err := s.jobs.SendReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, sent)
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateIntroReminder))
	})
}

func (s *JobsSuite) TestIntroReminderSkipsOptedOutBorrower() {
	expiringSoon := s.now.Add(48 * time.Hour)
	app := s.seedApp(domain.StatusPending, func(a *domain.Application) { a.ExpiredAt = &expiringSoon })

	b, err := s.store.Borrowers().GetByID(s.ctx, app.BorrowerID)
	s.Require().NoError(err)
	b.Status = domain.BorrowerDeclinedOpportunities
	s.Require().NoError(s.store.Borrowers().Update(s.ctx, b))

	sent, err := s.jobs.SendReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, sent)
}

func (s *JobsSuite) TestSetLapsed() {
	old := s.now.Add(-20 * 24 * time.Hour)
	fresh := s.now.Add(-24 * time.Hour)

	stale := s.seedApp(domain.StatusPending, func(a *domain.Application) { a.CreatedAt = old })
	staleAccepted := s.seedApp(domain.StatusAccepted, func(a *domain.Application) {
		a.CreatedAt = old
		a.AcceptedAt = &old
	})
	active := s.seedApp(domain.StatusAccepted, func(a *domain.Application) {
		a.CreatedAt = old
		a.AcceptedAt = &fresh
	})
	inReview := s.seedApp(domain.StatusStarted, func(a *domain.Application) { a.CreatedAt = old })

	lapsed, err := s.jobs.SetLapsed(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, lapsed)

	for id, want := range map[int64]domain.ApplicationStatus{
		stale.ID:         domain.StatusLapsed,
		staleAccepted.ID: domain.StatusLapsed,
		active.ID:        domain.StatusAccepted,
		inReview.ID:      domain.StatusStarted,
	} {
		got, err := s.store.Applications().GetByID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(want, got.Status)
	}

	s.Run("rerun lapses nothing further", func() {
		lapsed, err := s.jobs.SetLapsed(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, lapsed)
	})
}

func (s *JobsSuite) TestSLAOverdue() {
	lender := s.seedLender(10)
	started9 := s.now.Add(-9 * 24 * time.Hour)
	started11 := s.now.Add(-11 * 24 * time.Hour)
	started2 := s.now.Add(-2 * 24 * time.Hour)

	warned := s.seedApp(domain.StatusStarted, func(a *domain.Application) {
		a.LenderID = &lender.ID
		a.LenderStartedAt = &started9
	})
	breached := s.seedApp(domain.StatusStarted, func(a *domain.Application) {
		a.LenderID = &lender.ID
		a.LenderStartedAt = &started11
	})
	onTime := s.seedApp(domain.StatusStarted, func(a *domain.Application) {
		a.LenderID = &lender.ID
		a.LenderStartedAt = &started2
	})

	s.Require().NoError(s.jobs.SLAOverdue(s.ctx))

	s.Run("only the fully breached application is stamped", func() {
		got, err := s.store.Applications().GetByID(s.ctx, breached.ID)
		s.Require().NoError(err)
		s.NotNil(got.OverduedAt)

		got, err = s.store.Applications().GetByID(s.ctx, warned.ID)
		s.Require().NoError(err)
		s.Nil(got.OverduedAt)

		got, err = s.store.Applications().GetByID(s.ctx, onTime.ID)
		s.Require().NoError(err)
		s.Nil(got.OverduedAt)
	})

	s.Run("admin alerted once, lender gets one aggregated notice", func() {
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateOverdueToAdmin))
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateOverdueToLender))

		var lenderNotice notify.Sent
		for _, sent := range s.notifier.Sent {
			if sent.Template == notify.TemplateOverdueToLender {
				lenderNotice = sent
			}
		}
		s.Equal(lender.EmailGroup, lenderNotice.Recipient)
		// Both the warned and the breached application count toward the tally.
		s.Equal("2", lenderNotice.Vars["overdue_count"])
	})

	s.Run("rerun repeats the tally but never the admin alert", func() {
		s.Require().NoError(s.jobs.SLAOverdue(s.ctx))
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateOverdueToAdmin))
		s.Equal(2, s.notifier.CountByTemplate(notify.TemplateOverdueToLender))
	})
}

func (s *JobsSuite) TestRemoveDatedData() {
	awardDone := &domain.Award{SourceContractID: "CO1.done", BuyerName: "Bogota DC"}
	s.Require().NoError(s.store.Awards().Create(s.ctx, awardDone))

	terminal := s.now.Add(-10 * 24 * time.Hour)
	archivable := s.seedApp(domain.StatusDeclined, func(a *domain.Application) {
		a.AwardID = awardDone.ID
		a.DeclinedAt = &terminal
	})
	s.Require().NoError(s.store.Documents().Create(s.ctx, &domain.BorrowerDocument{
		ApplicationID: archivable.ID,
		Type:          domain.DocumentIncorporation,
	}))

	// A second, still-active application for the same borrower.
	secondActive := s.seedApp(domain.StatusStarted, func(a *domain.Application) {
		a.BorrowerID = archivable.BorrowerID
	})

	archived, err := s.jobs.RemoveDatedData(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, archived)

	s.Run("application is scrubbed and archived", func() {
		got, err := s.store.Applications().GetByID(s.ctx, archivable.ID)
		s.Require().NoError(err)
		s.NotNil(got.ArchivedAt)
		s.Empty(got.PrimaryEmail)

		docs, err := s.store.Documents().CountByApplication(s.ctx, archivable.ID)
		s.Require().NoError(err)
		s.Zero(docs)

		award, err := s.store.Awards().GetByID(s.ctx, awardDone.ID)
		s.Require().NoError(err)
		s.True(award.Previous)
	})

	s.Run("borrower keeps PII while another application is active", func() {
		b, err := s.store.Borrowers().GetByID(s.ctx, archivable.BorrowerID)
		s.Require().NoError(err)
		s.NotEmpty(b.LegalName)
		s.NotEmpty(b.Email)
	})

	s.Run("borrower is scrubbed once the last application archives", func() {
		last, err := s.store.Applications().GetByID(s.ctx, secondActive.ID)
		s.Require().NoError(err)
		last.Status = domain.StatusRejected
		last.RejectedAt = &terminal
		s.Require().NoError(s.store.Applications().Update(s.ctx, last))

		archived, err := s.jobs.RemoveDatedData(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, archived)

		b, err := s.store.Borrowers().GetByID(s.ctx, archivable.BorrowerID)
		s.Require().NoError(err)
		s.Empty(b.LegalName)
		s.Empty(b.Email)
		s.Empty(b.LegalIdentifier)
		// The dedup hash survives erasure.
		s.NotEmpty(b.Identifier)
	})
}
