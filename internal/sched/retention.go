package sched

import (
	"context"
	"time"

	"credere/internal/domain"
	"credere/internal/store"
)

// RemoveDatedData archives terminal applications past the retention period:
// the primary email is blanked, associated documents are deleted, the award
// is flagged as previous, and archived_at is set. The borrower's personal
// fields are scrubbed only when no other non-archived application still
// references them. Rows are never physically deleted; the identifier hashes
// survive so future ingestion still deduplicates against them.
func (j *Jobs) RemoveDatedData(ctx context.Context) (int, error) {
	retention := time.Duration(j.cfg.RetentionDays) * 24 * time.Hour
	apps, err := j.uow.Applications().Archivable(ctx, j.now(), retention)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, app := range apps {
		if err := j.archive(ctx, app.ID); err != nil {
			j.logger.ErrorContext(ctx, "archive failed", "application_id", app.ID, "error", err)
			continue
		}
		archived++
	}

	j.logger.InfoContext(ctx, "retention sweep finished", "candidates", len(apps), "archived", archived)
	return archived, nil
}

func (j *Jobs) archive(ctx context.Context, appID int64) error {
	return j.uow.RunInTx(ctx, func(tx store.Tx) error {
		app, err := tx.Applications().GetByID(ctx, appID)
		if err != nil {
			return err
		}
		if app.Archived() {
			return nil
		}

		now := j.now()
		app.PrimaryEmail = ""
		app.ArchivedAt = &now
		app.UpdatedAt = now
		if err := tx.Applications().Update(ctx, app); err != nil {
			return err
		}

		if err := tx.Documents().DeleteByApplication(ctx, app.ID); err != nil {
			return err
		}

		award, err := tx.Awards().GetByID(ctx, app.AwardID)
		if err == nil {
			award.Previous = true
			award.UpdatedAt = now
			if err := tx.Awards().Update(ctx, award); err != nil {
				return err
			}
		}

		if err := tx.Actions().Create(ctx, &domain.ApplicationAction{
			Type:          domain.ActionApplicationArchived,
			ApplicationID: app.ID,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		active, err := tx.Applications().CountActiveByBorrower(ctx, app.BorrowerID, app.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return nil
		}
		borrower, err := tx.Borrowers().GetByID(ctx, app.BorrowerID)
		if err != nil {
			return err
		}
		borrower.Scrub()
		borrower.UpdatedAt = now
		return tx.Borrowers().Update(ctx, borrower)
	})
}
