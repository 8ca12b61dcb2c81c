package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	platredis "credere/internal/platform/redis"
)

// Locker serializes sweeps across instances with a redis SETNX lease. With no
// redis configured the lock always succeeds; single-instance deployments rely
// on the database-level guards alone, which the sweeps are designed for
// anyway.
type Locker struct {
	client *platredis.Client
	ttl    time.Duration
}

func NewLocker(client *platredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// TryLock acquires the named lease. The returned release function is safe to
// call even when acquisition failed.
func (l *Locker) TryLock(ctx context.Context, name string) (release func(), acquired bool) {
	if l == nil || l.client == nil {
		return func() {}, true
	}
	key := "credere:sweep:" + name
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil || !ok {
		return func() {}, false
	}
	return func() { l.client.Del(context.WithoutCancel(ctx), key) }, true
}

// Scheduler runs registered sweeps on cron cadences.
type Scheduler struct {
	cron   *cron.Cron
	locker *Locker
	logger *slog.Logger
}

func NewScheduler(locker *Locker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		locker: locker,
		logger: logger,
	}
}

// Register schedules a named sweep. Overlapping invocations across instances
// are prevented by the lease; a sweep still running locally when its next
// tick arrives simply runs again, which is safe by idempotence.
func (s *Scheduler) Register(spec, name string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		release, ok := s.locker.TryLock(ctx, name)
		if !ok {
			s.logger.Info("sweep already running elsewhere, skipping", "sweep", name)
			return
		}
		defer release()

		started := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("sweep failed", "sweep", name, "error", err)
			return
		}
		s.logger.Info("sweep completed", "sweep", name, "duration", time.Since(started).String())
	})
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
