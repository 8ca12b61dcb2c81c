package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"credere/internal/domain"
	"credere/internal/store"
	"credere/pkg/sentinel"
)

type MemorySuite struct {
	suite.Suite
	store *Store
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.store = New()
}

func (s *MemorySuite) seedApplication(dedup string) *domain.Application {
	app := &domain.Application{
		AccessToken: "token-" + dedup,
		DedupKey:    dedup,
		Status:      domain.StatusPending,
	}
	s.Require().NoError(s.store.Applications().Create(context.Background(), app))
	return app
}

// Base-store calls and units of work share one mutex; readers must see either
// the state before or after a unit of work, never a torn intermediate. Run
// with the race detector to verify.
func (s *MemorySuite) TestConcurrentReadsDuringUnitOfWork() {
	ctx := context.Background()
	app := s.seedApplication("race")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			err := s.store.RunInTx(ctx, func(tx store.Tx) error {
				current, err := tx.Applications().GetByID(ctx, app.ID)
				if err != nil {
					return err
				}
				current.Status = domain.StatusAccepted
				return tx.Applications().Update(ctx, current)
			})
			if err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := s.store.Applications().GetByID(ctx, app.ID); err != nil {
				return
			}
		}
	}()
	wg.Wait()

	got, err := s.store.Applications().GetByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAccepted, got.Status)
}

func (s *MemorySuite) TestRunInTxRollsBackOnError() {
	ctx := context.Background()
	app := s.seedApplication("rollback")

	boom := errors.New("dispatch failed")
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		current, err := tx.Applications().GetByID(ctx, app.ID)
		if err != nil {
			return err
		}
		current.Status = domain.StatusAccepted
		if err := tx.Applications().Update(ctx, current); err != nil {
			return err
		}
		if err := tx.Messages().Create(ctx, &domain.Message{
			Type:          domain.MessageSubmissionComplete,
			ApplicationID: current.ID,
		}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	got, err := s.store.Applications().GetByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, got.Status)

	msgs, err := s.store.Messages().ListByApplication(ctx, app.ID)
	s.Require().NoError(err)
	s.Empty(msgs)
}

func (s *MemorySuite) TestDuplicateDedupKey() {
	ctx := context.Background()
	s.seedApplication("dup")

	err := s.store.Applications().Create(ctx, &domain.Application{
		AccessToken: "other-token",
		DedupKey:    "dup",
		Status:      domain.StatusPending,
	})
	s.Require().ErrorIs(err, sentinel.ErrDuplicate)
}
