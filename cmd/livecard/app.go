package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"livecard/internal/config"
	"livecard/internal/database"
	"livecard/internal/lease"
	"livecard/internal/observability"
	"livecard/internal/simulation"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   database.Store
	metrics *observability.Metrics
	redis   *redis.Client
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: observability.NewMetrics("livecard", nil),
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

// controllerOptions wires metrics, configured pacing and the lease, if any.
func (a *app) controllerOptions() []simulation.Option {
	opts := []simulation.Option{
		simulation.WithMetrics(a.metrics),
		simulation.WithDefaultTimeScale(timeScaleFromConfig(a.cfg.Simulation)),
	}
	if a.redis != nil {
		opts = append(opts, simulation.WithGuard(lease.NewRedisGuard(a.redis, a.cfg.Redis.LeaseKey, a.cfg.Redis.LeaseTTL)))
	}
	return opts
}

func timeScaleFromConfig(c config.SimulationConfig) simulation.TimeScale {
	return simulation.TimeScale{
		EventStartDelay:    c.EventStartDelay,
		FightStartDelay:    c.FightStartDelay,
		RoundDuration:      c.RoundDuration,
		BetweenRoundsDelay: c.BetweenRoundsDelay,
		PostFightDelay:     c.PostFightDelay,
		SpeedMultiplier:    c.SpeedMultiplier,
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (database.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		logger.Info("Using in-memory store")
		return database.NewMemoryRepository(), nil
	case "postgres":
		repo, err := database.NewPostgresRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		logger.Info("Connected to postgres")
		return repo, nil
	case "sqlite":
		repo, err := database.NewSQLiteRepository(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened sqlite store", "path", cfg.Path)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
