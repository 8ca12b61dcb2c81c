//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"credere/internal/domain"
	"credere/internal/store"
	"credere/pkg/sentinel"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	db        *sql.DB
	store     *Store
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("credere_test"),
		tcpostgres.WithUsername("credere"),
		tcpostgres.WithPassword("credere"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("pgx", dsn)
	s.Require().NoError(err)

	s.store = New(s.db)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `
		TRUNCATE statistics, borrower_documents, application_actions, messages,
			applications, awards, lenders, borrowers RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) seed() (*domain.Borrower, *domain.Award, *domain.Application) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	b := &domain.Borrower{
		Identifier: "hash-900123456",
		LegalName:  "Acme SAS",
		Email:      "owner@acme.example",
		Status:     domain.BorrowerActive,
		Size:       domain.SizeNotInformed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.Require().NoError(s.store.Borrowers().Create(s.ctx, b))

	a := &domain.Award{
		BorrowerID:       &b.ID,
		SourceContractID: "CO1.PCCNTR.1",
		Title:            "Road maintenance",
		BuyerName:        "Bogota DC",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.Require().NoError(s.store.Awards().Create(s.ctx, a))

	expires := now.Add(7 * 24 * time.Hour)
	app := &domain.Application{
		AccessToken:  "token-1",
		DedupKey:     "dedup-1",
		Status:       domain.StatusPending,
		AwardID:      a.ID,
		BorrowerID:   b.ID,
		PrimaryEmail: b.Email,
		ExpiredAt:    &expires,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.store.Applications().Create(s.ctx, app))
	return b, a, app
}

func (s *PostgresSuite) TestApplicationRoundTrip() {
	_, _, app := s.seed()

	got, err := s.store.Applications().GetByToken(s.ctx, "token-1")
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)
	s.Equal(domain.StatusPending, got.Status)
	s.Require().NotNil(got.ExpiredAt)

	now := time.Now().UTC().Truncate(time.Microsecond)
	got.Status = domain.StatusAccepted
	got.AcceptedAt = &now
	got.ExpiredAt = nil
	got.UpdatedAt = now
	s.Require().NoError(s.store.Applications().Update(s.ctx, got))

	again, err := s.store.Applications().GetByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAccepted, again.Status)
	s.Nil(again.ExpiredAt)
	s.NotNil(again.AcceptedAt)
}

func (s *PostgresSuite) TestUniqueConstraints() {
	b, a, _ := s.seed()

	s.Run("duplicate dedup key", func() {
		err := s.store.Applications().Create(s.ctx, &domain.Application{
			AccessToken: "token-other",
			DedupKey:    "dedup-1",
			Status:      domain.StatusPending,
			AwardID:     a.ID,
			BorrowerID:  b.ID,
		})
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrDuplicate))
	})

	s.Run("duplicate borrower identifier", func() {
		err := s.store.Borrowers().Create(s.ctx, &domain.Borrower{Identifier: b.Identifier})
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrDuplicate))
	})

	s.Run("duplicate source contract id", func() {
		err := s.store.Awards().Create(s.ctx, &domain.Award{SourceContractID: a.SourceContractID})
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrDuplicate))
	})
}

func (s *PostgresSuite) TestNotFound() {
	_, err := s.store.Applications().GetByToken(s.ctx, "no-such-token")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresSuite) TestRunInTxRollsBackOnError() {
	_, _, app := s.seed()

	sentErr := errors.New("send failed")
	err := s.store.RunInTx(s.ctx, func(tx store.Tx) error {
		current, err := tx.Applications().GetByID(s.ctx, app.ID)
		if err != nil {
			return err
		}
		current.Status = domain.StatusAccepted
		if err := tx.Applications().Update(s.ctx, current); err != nil {
			return err
		}
		if err := tx.Messages().Create(s.ctx, &domain.Message{
			Type:          domain.MessageBorrowerInvitation,
			ApplicationID: app.ID,
		}); err != nil {
			return err
		}
		return sentErr
	})
	s.Require().ErrorIs(err, sentErr)

	got, err := s.store.Applications().GetByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, got.Status)

	exists, err := s.store.Messages().ExistsByType(s.ctx, app.ID, domain.MessageBorrowerInvitation)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostgresSuite) TestAwardWatermarkIgnoresPreviousAwards() {
	last, err := s.store.Awards().LastUpdatedAt(s.ctx)
	s.Require().NoError(err)
	s.Nil(last)

	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	history := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Awards().Create(s.ctx, &domain.Award{
		SourceContractID: "CO1.a", SourceLastUpdatedAt: &older,
	}))
	s.Require().NoError(s.store.Awards().Create(s.ctx, &domain.Award{
		SourceContractID: "CO1.b", SourceLastUpdatedAt: &newer,
	}))
	s.Require().NoError(s.store.Awards().Create(s.ctx, &domain.Award{
		SourceContractID: "CO1.c", SourceLastUpdatedAt: &history, Previous: true,
	}))

	last, err = s.store.Awards().LastUpdatedAt(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.True(last.Equal(newer))
}

func (s *PostgresSuite) TestReminderPredicates() {
	b, _, app := s.seed()
	now := time.Now().UTC()

	s.Run("pending application inside the window is returned once", func() {
		due, err := s.store.Applications().PendingIntroReminder(s.ctx, now, 14*24*time.Hour)
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(app.ID, due[0].ID)

		s.Require().NoError(s.store.Messages().Create(s.ctx, &domain.Message{
			Type:          domain.MessageIntroReminder,
			ApplicationID: app.ID,
			CreatedAt:     now,
		}))

		due, err = s.store.Applications().PendingIntroReminder(s.ctx, now, 14*24*time.Hour)
		s.Require().NoError(err)
		s.Empty(due)
	})

	s.Run("opted-out borrower excluded", func() {
		b.Status = domain.BorrowerDeclinedOpportunities
		b.UpdatedAt = now
		s.Require().NoError(s.store.Borrowers().Update(s.ctx, b))

		_, err := s.db.ExecContext(s.ctx, `DELETE FROM messages WHERE application_id = $1`, app.ID)
		s.Require().NoError(err)

		due, err := s.store.Applications().PendingIntroReminder(s.ctx, now, 14*24*time.Hour)
		s.Require().NoError(err)
		s.Empty(due)
	})
}

func (s *PostgresSuite) TestStatisticUpsert() {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stat := &domain.Statistic{
		Type:      domain.StatisticApplicationKPIs,
		Day:       day,
		Data:      map[string]int{"applications_created": 3},
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.store.Statistics().Upsert(s.ctx, stat))

	stat.Data["applications_created"] = 5
	s.Require().NoError(s.store.Statistics().Upsert(s.ctx, stat))

	got, err := s.store.Statistics().Get(s.ctx, day, domain.StatisticApplicationKPIs, nil)
	s.Require().NoError(err)
	s.Equal(5, got.Data["applications_created"])
	s.Nil(got.LenderID)
}
