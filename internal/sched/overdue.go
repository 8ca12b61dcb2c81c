package sched

import (
	"context"
	"strconv"

	"credere/internal/domain"
	"credere/internal/lifecycle"
	"credere/internal/notify"
	"credere/internal/store"
)

// SLAOverdue scans in-review applications against each lender's SLA. An
// application past warn_fraction of the SLA counts toward its lender's
// overdue tally; one fully past the SLA is additionally stamped overdued_at,
// exactly once, and escalated to the administrator immediately. After the
// sweep each lender with a non-zero tally gets one aggregated notice.
//
// The per-sweep tally is recomputed from persisted state every run, so it
// needs no storage of its own; only the overdued_at stamp and its message are
// durable, and they are the at-most-once guard for the admin escalation.
func (j *Jobs) SLAOverdue(ctx context.Context) error {
	apps, err := j.uow.Applications().WithStatuses(ctx,
		domain.StatusStarted, domain.StatusContractUploaded)
	if err != nil {
		return err
	}

	now := j.now()
	counts := map[int64]int{}

	for _, app := range apps {
		if app.LenderID == nil {
			continue
		}
		lender, err := j.uow.Lenders().GetByID(ctx, *app.LenderID)
		if err != nil {
			j.logger.ErrorContext(ctx, "overdue check failed", "application_id", app.ID, "error", err)
			continue
		}
		if lender.SLADays <= 0 {
			continue
		}

		requests, err := j.uow.Actions().ListByType(ctx, app.ID, domain.ActionLenderRequestInformation)
		if err != nil {
			return err
		}
		completions, err := j.uow.Actions().ListByType(ctx, app.ID, domain.ActionBorrowerDocumentsCompleted)
		if err != nil {
			return err
		}

		days := lifecycle.DaysWaitingForLender(&app, requests, completions, now)
		if float64(days) <= float64(lender.SLADays)*j.cfg.SLAWarnFraction {
			continue
		}
		counts[lender.ID]++

		if days > lender.SLADays && app.OverduedAt == nil {
			if err := j.escalate(ctx, app, lender, days); err != nil {
				j.logger.ErrorContext(ctx, "overdue escalation failed", "application_id", app.ID, "error", err)
			}
		}
	}

	for lenderID, count := range counts {
		lender, err := j.uow.Lenders().GetByID(ctx, lenderID)
		if err != nil {
			continue
		}
		if _, err := j.notifier.Send(ctx, notify.TemplateOverdueToLender, lender.EmailGroup, map[string]string{
			"overdue_count": strconv.Itoa(count),
		}); err != nil {
			j.logger.ErrorContext(ctx, "lender overdue notice failed", "lender_id", lenderID, "error", err)
		}
	}

	j.logger.InfoContext(ctx, "sla sweep finished", "in_review", len(apps), "lenders_notified", len(counts))
	return nil
}

// escalate stamps overdued_at and alerts the administrator, atomically.
func (j *Jobs) escalate(ctx context.Context, app domain.Application, lender *domain.Lender, days int) error {
	return j.uow.RunInTx(ctx, func(tx store.Tx) error {
		current, err := tx.Applications().GetByID(ctx, app.ID)
		if err != nil {
			return err
		}
		if current.OverduedAt != nil {
			return nil
		}

		now := j.now()
		current.OverduedAt = &now
		current.UpdatedAt = now
		if err := tx.Applications().Update(ctx, current); err != nil {
			return err
		}

		externalID, err := j.notifier.Send(ctx, notify.TemplateOverdueToAdmin, j.cfg.AdminEmail, map[string]string{
			"application_id": strconv.FormatInt(app.ID, 10),
			"lender_name":    lender.Name,
			"days_waiting":   strconv.Itoa(days),
		})
		if err != nil {
			return err
		}
		return tx.Messages().Create(ctx, &domain.Message{
			Type:              domain.MessageOverdueApplication,
			ApplicationID:     app.ID,
			LenderID:          &lender.ID,
			ExternalMessageID: externalID,
			CreatedAt:         now,
		})
	})
}
