package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/example/examprep/internal/ai"
	"github.com/example/examprep/internal/cadence"
	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/config"
	"github.com/example/examprep/internal/database"
	"github.com/example/examprep/internal/logger"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/internal/remote"
	"github.com/example/examprep/internal/remotesync"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// app holds the wired core shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	db      *sqlx.DB
	sync    *remotesync.Coordinator
	manager *progress.Manager
	// chatGPT is nil when no API key is configured.
	chatGPT *ai.ChatGPT

	closers []func(ctx context.Context) error
	logFile io.Closer
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, logFile := logger.New(cfg.Log)
	slog.SetDefault(log)

	a := &app{cfg: cfg, logger: log, clock: clock.New(), logFile: logFile}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	db, err := database.Connect(database.Config{
		Type: a.cfg.Database.Type,
		Path: a.cfg.Database.Path,
		DSN:  a.cfg.Database.DSN,
	})
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	store, err := a.openRemote(ctx)
	if err != nil {
		return err
	}

	a.sync = remotesync.NewCoordinator(store, a.clock, a.logger, remotesync.Config{
		Debounce:     a.cfg.Sync.Debounce,
		MinInterval:  a.cfg.Sync.MinInterval,
		WriteTimeout: a.cfg.Sync.WriteTimeout,
	})

	var feedback progress.FeedbackGenerator
	if a.cfg.AI.Enabled() {
		a.chatGPT, err = ai.New(ai.Config{
			APIKey:            a.cfg.AI.APIKey,
			BaseURL:           a.cfg.AI.BaseURL,
			Model:             a.cfg.AI.Model,
			MaxTokens:         a.cfg.AI.MaxTokens,
			Temperature:       a.cfg.AI.Temperature,
			MaxRetries:        a.cfg.AI.MaxRetries,
			RetryBase:         a.cfg.AI.RetryBase,
			RequestsPerMinute: a.cfg.AI.RequestsPerMinute,
		}, a.logger)
		if err != nil {
			return err
		}
		feedback = a.chatGPT
	} else {
		a.logger.Info("no AI key configured, feedback and plans are disabled")
	}

	a.manager = progress.NewManager(progress.Deps{
		Repo:     database.NewKVRepository(db),
		Loader:   remotesync.NewLoader(store, a.logger),
		Sync:     a.sync,
		Clock:    a.clock,
		Feedback: feedback,
		Logger:   a.logger,
		Config: progress.Config{
			FreeLimits: &cadence.FreeLimits{
				AIAnswers:    a.cfg.Cadence.FreeAIAnswers,
				ChatMessages: a.cfg.Cadence.FreeChatMessages,
			},
			PulseDelay: a.cfg.Cadence.PulseDelay,
		},
	})
	return nil
}

func (a *app) openRemote(ctx context.Context) (remote.DocumentStore, error) {
	switch a.cfg.Remote.Backend {
	case "mongo":
		mongoCfg := a.cfg.Remote.Mongo
		connectCtx, cancel := context.WithTimeout(ctx, mongoCfg.Timeout+5*time.Second)
		defer cancel()
		store, err := remote.NewMongoStore(connectCtx, remote.MongoConfig{
			URI:         mongoCfg.URI,
			Database:    mongoCfg.Database,
			Collection:  mongoCfg.Collection,
			MaxPoolSize: mongoCfg.MaxPoolSize,
			Timeout:     mongoCfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("remote store: mongo", "database", mongoCfg.Database, "collection", mongoCfg.Collection)
		return store, nil
	case "redis":
		store, err := remote.NewRedisStore(ctx, a.cfg.Remote.Redis.URL, a.cfg.Remote.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		a.logger.Info("remote store: redis", "prefix", a.cfg.Remote.Redis.Prefix)
		return store, nil
	case "memory":
		a.logger.Warn("remote store: in-memory, progress is not shared between devices")
		return remote.NewMemoryStore(), nil
	}
	return nil, errors.Errorf("unknown remote backend %q", a.cfg.Remote.Backend)
}

// close flushes pending remote writes and releases every resource in
// reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Flush(ctx); err != nil {
			a.logger.Warn("failed to flush pending progress", "error", err)
		}
	}
	if a.sync != nil {
		a.sync.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
