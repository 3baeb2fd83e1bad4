package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/keylock"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	store    database.Store
	sessions database.SessionStore
	service  *attendance.Service
	redis    *redis.Client
}

// openApp loads configuration, connects the configured store and builds the service.
// Overrides run after the environment is read and before validation.
func openApp(ctx context.Context, overrides ...func(*config.Config)) (*app, error) {
	cfg := config.Load()
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Database.HasDatabase() {
		return nil, errors.New("DATABASE_URL or MARIADB_DSN environment variable is required")
	}

	a := &app{cfg: cfg}
	logger := slog.Default()

	if cfg.Database.URL != "" {
		logger.Debug("connecting to PostgreSQL")
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		a.store, a.sessions = store, store.Sessions()
	} else {
		logger.Debug("connecting to MariaDB")
		store, err := mariadb.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		a.store, a.sessions = store, store.Sessions()
	}

	var locks keylock.Locker = keylock.NewLocal()
	if cfg.Redis.URL != "" {
		client, err := keylock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			a.store.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redis = client
		locks = keylock.NewRedis(client, cfg.Redis.LockTTL, logger)
		logger.Debug("using Redis merge locks", "ttl", cfg.Redis.LockTTL)
	}

	comparator := facematch.NewComparator(facematch.NewClient(cfg.Embedding.URL), cfg.Matcher.MaxImageSize)
	m := matcher.New(a.store, comparator, matcher.Options{
		Threshold:     cfg.Matcher.SimilarityThreshold,
		MemberTimeout: cfg.Matcher.MemberTimeout,
		Concurrency:   cfg.Matcher.Concurrency,
		Logger:        logger,
	})
	a.service = attendance.NewService(a.store, m, attendance.NewMerger(a.store, locks, logger), attendance.Options{
		MaxImageBytes: cfg.Upload.MaxBytes,
		Embedder:      comparator,
		Logger:        logger,
	})
	return a, nil
}

// resolveOwner logs the --owner name in and returns the owner key.
func (a *app) resolveOwner(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("--owner is required")
	}
	owner, err := a.service.Login(ctx, name)
	if err != nil {
		return "", err
	}
	return owner.Key, nil
}

// Close releases the store and the Redis client.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close Redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}
