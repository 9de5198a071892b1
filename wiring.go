package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fitremind/internal/actions"
	"fitremind/internal/auth"
	"fitremind/internal/channel"
	"fitremind/internal/config"
	"fitremind/internal/database"
	"fitremind/internal/engine"
	"fitremind/internal/models"
	"fitremind/internal/notify"
	"fitremind/internal/settings"

	"github.com/jmoiron/sqlx"
)

// host holds everything a command needs. close releases connections in
// reverse order of acquisition.
type host struct {
	cfg         *config.Config
	logger      *slog.Logger
	engine      *engine.Engine
	store       *settings.Resilient
	subs        *database.Subscriptions
	completions *database.Completions
	closers     []func() error
}

func (h *host) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			h.logger.Debug("close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*host, error) {
	h := &host{cfg: cfg, logger: logger}

	store, ch, err := h.openStore(ctx)
	if err != nil {
		h.close()
		return nil, err
	}

	var primary notify.Notifier
	switch {
	case cfg.VAPIDConfigured() && h.subs != nil:
		primary = notify.NewWebPush(h.subs, notify.VAPID{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, logger.With("component", "webpush"))
	case cfg.VAPIDConfigured():
		logger.Warn("VAPID keys set but push subscriptions need a SQL store, using desktop notifications")
		primary = notify.NewDesktop()
	default:
		primary = notify.NewDesktop()
	}
	badge := notify.NewBadge()
	fallback := notify.NewFallback(primary, badge, logger.With("component", "notify"))

	signer, err := h.signer()
	if err != nil {
		h.close()
		return nil, err
	}

	h.store = settings.NewResilient(store, logger.With("component", "settings"))
	h.engine = engine.New(engine.Deps{
		Store:               h.store,
		Notifier:            fallback,
		Badge:               badge,
		Fallback:            fallback,
		Tokens:              signer,
		ExerciseLog:         h.exerciseLog(),
		Channel:             ch,
		Logger:              logger,
		Defaults:            cfg.Defaults,
		SnoozeMinutes:       cfg.SnoozeMinutes,
		EntryRoute:          cfg.EntryRoute,
		WakeBudget:          cfg.WakeBudget,
		PeriodicSync:        cfg.PeriodicSync,
		PeriodicInterval:    cfg.PeriodicInterval,
		MinPeriodicInterval: cfg.MinPeriodicInterval,
	})
	return h, nil
}

// openStore returns the settings store for the configured driver and, for
// redis, a message channel shared with the other processes.
func (h *host) openStore(ctx context.Context) (settings.Store, channel.MessageChannel, error) {
	cfg := h.cfg
	switch cfg.StoreDriver {
	case config.DriverSQLite, config.DriverPostgres:
		db, err := database.Initialize(cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		h.closers = append(h.closers, db.Close)
		h.attachDatabase(db)
		return settings.NewSQLStore(db, cfg.SettingsKey), nil, nil

	case config.DriverFile:
		fs, err := settings.NewFileStore(cfg.SettingsFile)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil

	case config.DriverRedis:
		rs, err := settings.NewRedisStore(cfg.RedisURL, cfg.SettingsKey)
		if err != nil {
			return nil, nil, err
		}
		h.closers = append(h.closers, rs.Close)
		ch, err := channel.NewRedis(ctx, rs.Client(), cfg.SettingsKey, h.logger.With("component", "channel"))
		if err != nil {
			h.logger.Warn("redis message channel unavailable, using in-process channel", "error", err)
			return rs, nil, nil
		}
		return rs, ch, nil

	case config.DriverMemory:
		h.logger.Warn("memory store selected, settings are lost on exit")
		return settings.NewMemoryStore(models.NewSettings(cfg.Defaults, nil)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (h *host) attachDatabase(db *sqlx.DB) {
	h.subs = database.NewSubscriptions(db, h.cfg.SettingsKey)
	h.completions = database.NewCompletions(db, h.cfg.SettingsKey)
}

func (h *host) signer() (*auth.Signer, error) {
	if h.cfg.ActionTokenSecret != "" {
		s, err := auth.NewSigner(h.cfg.ActionTokenSecret, 0)
		if errors.Is(err, auth.ErrWeakSecret) {
			return nil, fmt.Errorf("ACTION_TOKEN_SECRET: %w", err)
		}
		return s, err
	}
	h.logger.Warn("ACTION_TOKEN_SECRET not set, action tokens are only valid in this process")
	return auth.NewEphemeralSigner(0)
}

func (h *host) exerciseLog() actions.ExerciseLog {
	return actions.ExerciseLogFunc(func(exerciseType string, count int) {
		h.logger.Info("exercise completed", "exercise", exerciseType, "count", count)
		if h.completions == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.completions.Record(ctx, exerciseType, count, time.Now()); err != nil {
			h.logger.Warn("exercise not recorded", "error", err)
		}
	})
}
