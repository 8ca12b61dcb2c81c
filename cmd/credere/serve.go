package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"credere/internal/platform/httpserver"
	"credere/internal/platform/metrics"
	"credere/internal/sched"
	httptransport "credere/internal/transport/http"
)

// Sweep cadence. All times are the server's clock; the Redis lock keeps
// multiple replicas from running the same sweep concurrently.
const (
	scheduleFetchAwards = "0 1 * * *"
	scheduleReminders   = "0 7 * * *"
	scheduleLapsed      = "30 1 * * *"
	scheduleOverdue     = "0 8 * * *"
	scheduleRetention   = "0 2 * * *"
	scheduleStatistics  = "0 */6 * * *"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled policy sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			m := metrics.New()

			checkers := map[string]httptransport.HealthChecker{
				"postgres": dbChecker{a.db},
			}
			if a.redis != nil {
				checkers["redis"] = a.redis
			}
			router := httptransport.NewRouter(httptransport.RouterConfig{
				Handler:  httptransport.NewHandler(a.lifecycle, a.jwt, a.logger),
				Logger:   a.logger,
				Metrics:  m,
				Checkers: checkers,
			})
			srv := httpserver.New(a.cfg.Server.Addr, router)

			scheduler := sched.NewScheduler(sched.NewLocker(a.redis, 0), a.logger)
			if err := a.registerSweeps(scheduler, m); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("starting http server", "addr", a.cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				scheduler.Start()
				<-ctx.Done()
				scheduler.Stop()
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func (a *app) registerSweeps(scheduler *sched.Scheduler, m *metrics.Metrics) error {
	sweeps := []struct {
		spec string
		name string
		run  func(ctx context.Context) error
	}{
		{scheduleFetchAwards, "fetch_awards", func(ctx context.Context) error {
			summary, err := a.ingestor.FetchNewAwards(ctx)
			m.ApplicationsCreated.Add(float64(summary.Created))
			return err
		}},
		{scheduleReminders, "send_reminders", func(ctx context.Context) error {
			_, err := a.jobs.SendReminders(ctx)
			return err
		}},
		{scheduleLapsed, "set_lapsed", func(ctx context.Context) error {
			_, err := a.jobs.SetLapsed(ctx)
			return err
		}},
		{scheduleOverdue, "sla_overdue", a.jobs.SLAOverdue},
		{scheduleRetention, "remove_dated_data", func(ctx context.Context) error {
			_, err := a.jobs.RemoveDatedData(ctx)
			return err
		}},
		{scheduleStatistics, "update_statistics", a.stats.Refresh},
	}

	for _, sweep := range sweeps {
		sweep := sweep
		job := func(ctx context.Context) error {
			m.SweepRuns.WithLabelValues(sweep.name).Inc()
			if err := sweep.run(ctx); err != nil {
				m.SweepFailures.WithLabelValues(sweep.name).Inc()
				return err
			}
			return nil
		}
		if err := scheduler.Register(sweep.spec, sweep.name, job); err != nil {
			return err
		}
	}
	return nil
}

// dbChecker adapts *sql.DB to the router's health interface.
type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
