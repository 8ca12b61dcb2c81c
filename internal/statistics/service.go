// Package statistics maintains daily KPI snapshots over the application
// pipeline, globally and per lender. Snapshots are upserted by (day, type,
// lender), so rerunning a refresh within the same day overwrites rather than
// duplicates.
package statistics

import (
	"context"
	"log/slog"
	"time"

	"credere/internal/domain"
	"credere/internal/store"
)

var allStatuses = []domain.ApplicationStatus{
	domain.StatusPending, domain.StatusAccepted, domain.StatusDeclined,
	domain.StatusSubmitted, domain.StatusStarted, domain.StatusInformationRequested,
	domain.StatusApproved, domain.StatusContractUploaded, domain.StatusCompleted,
	domain.StatusRejected, domain.StatusLapsed,
}

type Service struct {
	uow    store.UnitOfWork
	logger *slog.Logger
	now    func() time.Time
}

func NewService(uow store.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{uow: uow, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Refresh recomputes today's snapshots: one global KPI row, one opt-in row,
// and one KPI row per lender that has applications assigned.
func (s *Service) Refresh(ctx context.Context) error {
	apps, err := s.uow.Applications().WithStatuses(ctx, allStatuses...)
	if err != nil {
		return err
	}
	day := s.now().Truncate(24 * time.Hour)

	return s.uow.RunInTx(ctx, func(tx store.Tx) error {
		global := statusCounts(apps, nil)
		if err := tx.Statistics().Upsert(ctx, &domain.Statistic{
			Type: domain.StatisticApplicationKPIs, Day: day, Data: global, CreatedAt: s.now(),
		}); err != nil {
			return err
		}

		if err := tx.Statistics().Upsert(ctx, &domain.Statistic{
			Type: domain.StatisticOptIn, Day: day, Data: optInCounts(apps), CreatedAt: s.now(),
		}); err != nil {
			return err
		}

		lenders, err := tx.Lenders().List(ctx)
		if err != nil {
			return err
		}
		for _, lender := range lenders {
			lid := lender.ID
			if err := tx.Statistics().Upsert(ctx, &domain.Statistic{
				Type: domain.StatisticApplicationKPIs, LenderID: &lid, Day: day,
				Data: statusCounts(apps, &lid), CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshAsync runs Refresh in the background with its own deadline. Failures
// are logged; a stale snapshot is acceptable, a failed transition is not.
func (s *Service) RefreshAsync(ctx context.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.logger.ErrorContext(ctx, "statistics refresh failed", "error", err)
		}
	}()
}

func statusCounts(apps []domain.Application, lenderID *int64) map[string]int {
	counts := make(map[string]int, len(allStatuses)+1)
	for _, st := range allStatuses {
		counts["applications_"+string(st)] = 0
	}
	total := 0
	for _, app := range apps {
		if lenderID != nil && (app.LenderID == nil || *app.LenderID != *lenderID) {
			continue
		}
		counts["applications_"+string(app.Status)]++
		total++
	}
	counts["applications_total"] = total
	return counts
}

// optInCounts summarizes borrower engagement with the invitations.
func optInCounts(apps []domain.Application) map[string]int {
	counts := map[string]int{
		"invitations_total":  len(apps),
		"opted_in":           0,
		"declined":           0,
		"reached_submission": 0,
		"credit_disbursed":   0,
	}
	for _, app := range apps {
		if app.AcceptedAt != nil {
			counts["opted_in"]++
		}
		if app.Status == domain.StatusDeclined {
			counts["declined"]++
		}
		if app.SubmittedAt != nil {
			counts["reached_submission"]++
		}
		if app.Status == domain.StatusCompleted {
			counts["credit_disbursed"]++
		}
	}
	return counts
}
