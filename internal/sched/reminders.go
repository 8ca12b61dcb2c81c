package sched

import (
	"context"
	"time"

	"credere/internal/domain"
	"credere/internal/notify"
	"credere/internal/store"
)

// SendReminders nudges borrowers whose applications expire soon: PENDING
// applications get an introduction reminder, ACCEPTED ones a submission
// reminder. The recorded Message of each type is the once-only guard, checked
// again inside the per-item transaction so a concurrent sweep cannot
// double-send.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	window := time.Duration(j.cfg.ReminderWindowDays) * 24 * time.Hour
	now := j.now()
	sent := 0

	intro, err := j.uow.Applications().PendingIntroReminder(ctx, now, window)
	if err != nil {
		return sent, err
	}
	for _, app := range intro {
		if j.remind(ctx, app, domain.MessageIntroReminder, notify.TemplateIntroReminder) {
			sent++
		}
	}

	submit, err := j.uow.Applications().PendingSubmitReminder(ctx, now, window)
	if err != nil {
		return sent, err
	}
	for _, app := range submit {
		if j.remind(ctx, app, domain.MessageSubmitReminder, notify.TemplateSubmitReminder) {
			sent++
		}
	}

	j.logger.InfoContext(ctx, "reminder sweep finished",
		"candidates", len(intro)+len(submit), "sent", sent)
	return sent, nil
}

func (j *Jobs) remind(ctx context.Context, app domain.Application, msgType domain.MessageType, template notify.Template) bool {
	delivered := false
	err := j.uow.RunInTx(ctx, func(tx store.Tx) error {
		already, err := tx.Messages().ExistsByType(ctx, app.ID, msgType)
		if err != nil {
			return err
		}
		if already {
			return nil
		}

		externalID, err := j.notifier.Send(ctx, template, app.PrimaryEmail, map[string]string{
			"application_token": app.AccessToken,
		})
		if err != nil {
			return err
		}
		delivered = true
		return tx.Messages().Create(ctx, &domain.Message{
			Type:              msgType,
			ApplicationID:     app.ID,
			ExternalMessageID: externalID,
			CreatedAt:         j.now(),
		})
	})
	if err != nil {
		j.logger.ErrorContext(ctx, "reminder failed", "application_id", app.ID, "type", string(msgType), "error", err)
		return false
	}
	return delivered
}
