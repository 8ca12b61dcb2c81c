package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"credere/internal/auth"
	"credere/internal/events"
	"credere/internal/identity"
	"credere/internal/ingest"
	"credere/internal/lifecycle"
	"credere/internal/notify"
	"credere/internal/platform/config"
	"credere/internal/platform/logger"
	"credere/internal/platform/postgres"
	platredis "credere/internal/platform/redis"
	"credere/internal/sched"
	"credere/internal/statistics"
	storepg "credere/internal/store/postgres"
)

// app bundles the wired dependencies every command starts from. Commands that
// only run one sweep still go through the same wiring so behavior cannot
// drift between the server and the CLI.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db     *sql.DB
	store  *storepg.Store
	redis  *platredis.Client
	events *events.Publisher

	jwt       *auth.Service
	lifecycle *lifecycle.Service
	ingestor  *ingest.Ingestor
	stats     *statistics.Service
	jobs      *sched.Jobs
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if cfg.HashKey == "" {
		return nil, fmt.Errorf("CREDERE_HASH_KEY is required")
	}
	ident, err := identity.New(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	store := storepg.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	redisClient, err := platredis.New(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kafka: %w", err)
	}

	notifier := &notify.LogNotifier{Logger: log}
	stats := statistics.NewService(store, log)

	ingestor := ingest.NewIngestor(store,
		ingest.NewHTTPSource(ingest.HTTPSourceConfig{
			BaseURL:     cfg.Source.BaseURL,
			AppToken:    cfg.Source.AppToken,
			PageLimit:   cfg.Source.PageLimit,
			Timeout:     cfg.Source.Timeout,
			MaxAttempts: uint64(cfg.Source.MaxAttempts),
		}),
		ident, notifier, log,
		ingest.Config{
			ExpirationDays:    cfg.Policies.ExpirationDays,
			DefaultWindowDays: cfg.Policies.DefaultWindowDays,
		},
	)

	lc := lifecycle.NewService(store, notifier, ident, log,
		lifecycle.WithEventSink(publisher),
		lifecycle.WithRefresher(stats),
		lifecycle.WithHistoryFetcher(ingestor),
		lifecycle.WithExpirationDays(cfg.Policies.ExpirationDays),
	)

	jobs := sched.NewJobs(store, lc, notifier, log, sched.Config{
		ReminderWindowDays: cfg.Policies.ReminderWindowDays,
		LapseDays:          cfg.Policies.LapseDays,
		RetentionDays:      cfg.Policies.RetentionDays,
		SLAWarnFraction:    cfg.Policies.SLAWarnFraction,
		AdminEmail:         cfg.AdminEmail,
	})

	return &app{
		cfg:       cfg,
		logger:    log,
		db:        db,
		store:     store,
		redis:     redisClient,
		events:    publisher,
		jwt:       auth.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer),
		lifecycle: lc,
		ingestor:  ingestor,
		stats:     stats,
		jobs:      jobs,
	}, nil
}

func (a *app) close() {
	if a.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.events.Close(ctx); err != nil {
			a.logger.Warn("closing event publisher", "error", err)
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
