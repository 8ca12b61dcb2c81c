package sched

import (
	"context"
	"time"

	pkgerrors "credere/pkg/errors"
)

// SetLapsed transitions applications that sat inactive past the threshold to
// LAPSED. The state machine's strict precondition makes a rerun, or a race
// with a borrower acting at the same moment, a benign conflict skip.
func (j *Jobs) SetLapsed(ctx context.Context) (int, error) {
	threshold := time.Duration(j.cfg.LapseDays) * 24 * time.Hour
	apps, err := j.uow.Applications().Lapsable(ctx, j.now(), threshold)
	if err != nil {
		return 0, err
	}

	lapsed := 0
	for _, app := range apps {
		if _, err := j.lifecycle.Lapse(ctx, app.ID); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				continue
			}
			j.logger.ErrorContext(ctx, "lapse failed", "application_id", app.ID, "error", err)
			continue
		}
		lapsed++
	}

	j.logger.InfoContext(ctx, "lapse sweep finished", "candidates", len(apps), "lapsed", lapsed)
	return lapsed, nil
}
