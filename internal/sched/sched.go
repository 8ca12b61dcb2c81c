// Package sched runs the time-driven policies: reminders, lapsing, SLA
// overdue escalation and retention. Every sweep is idempotent and processes
// items in per-item transactions, so one failure never rolls back another
// item's progress and reruns cause no double effects.
package sched

import (
	"log/slog"
	"time"

	"credere/internal/lifecycle"
	"credere/internal/notify"
	"credere/internal/store"
)

// Config carries the policy knobs.
type Config struct {
	// ReminderWindowDays is how close to expiration a reminder fires.
	ReminderWindowDays int
	// LapseDays is how long an application may sit inactive before lapsing.
	LapseDays int
	// RetentionDays is how long terminal applications keep their PII.
	RetentionDays int
	// SLAWarnFraction of a lender's SLA days at which the overdue counter
	// starts accumulating.
	SLAWarnFraction float64
	// AdminEmail receives immediate alerts for fully breached SLAs.
	AdminEmail string
}

func (c *Config) defaults() {
	if c.ReminderWindowDays <= 0 {
		c.ReminderWindowDays = 3
	}
	if c.LapseDays <= 0 {
		c.LapseDays = 14
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
	if c.SLAWarnFraction <= 0 {
		c.SLAWarnFraction = 0.7
	}
}

// Jobs bundles the policy sweeps. Each sweep is also exposed as a CLI command
// so an operator can run it out of cadence; the uniqueness and once-only
// guards make that safe.
type Jobs struct {
	uow       store.UnitOfWork
	lifecycle *lifecycle.Service
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewJobs(uow store.UnitOfWork, lc *lifecycle.Service, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Jobs {
	cfg.defaults()
	return &Jobs{
		uow:       uow,
		lifecycle: lc,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the wall clock, for tests.
func (j *Jobs) WithClock(now func() time.Time) *Jobs {
	j.now = now
	return j
}
