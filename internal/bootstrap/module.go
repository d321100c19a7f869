package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/database"
	"hookfeed/internal/bootstrap/logging"
	natspub "hookfeed/internal/infrastructure/messaging/nats"
	redisstore "hookfeed/internal/infrastructure/persistence/redis"
	sqliterepo "hookfeed/internal/infrastructure/persistence/sqlite/repository"
	"hookfeed/internal/ports"
	"hookfeed/internal/usecase/ingest"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideEventStore),
	fx.Provide(provideEventPublisher),
	fx.Provide(provideIngestService),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

// provideEventStore opens the one store handle shared by every request.
func provideEventStore(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventStore, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	if database.IsSQL(cfg.Database.Driver) {
		db, err := database.Open(logCtx, cfg.Database)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return database.Close(db)
			},
		})
		return sqliterepo.NewEventRepository(db), nil
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Database.Driver), "redis") {
		openCtx, cancel := context.WithTimeout(logCtx, cfg.Database.Timeout)
		defer cancel()

		client, err := redisstore.Open(openCtx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		store := redisstore.NewEventStore(client, cfg.App.Name)
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return store.Close()
			},
		})
		logging.Info(logCtx, "redis event store opened", slog.String("key_prefix", cfg.App.Name))
		return store, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// provideEventPublisher returns a nil publisher when NATS is not configured.
func provideEventPublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	if strings.TrimSpace(cfg.NATS.URL) == "" {
		logging.Debug(logCtx, "nats publisher disabled")
		return nil, nil
	}

	publisher, err := natspub.Connect(logCtx, natspub.Config{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Name:          cfg.App.Name,
		Timeout:       cfg.Database.Timeout,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return publisher.Close()
		},
	})
	logging.Info(logCtx, "nats publisher connected", slog.String("subject_prefix", cfg.NATS.SubjectPrefix))
	return publisher, nil
}

func provideIngestService(store ports.EventStore, publisher ports.EventPublisher, cfg config.Config) *ingest.Service {
	return ingest.NewService(store, publisher, ingest.Options{
		Dedupe:       cfg.Ingest.Dedupe,
		StoreTimeout: cfg.Database.Timeout,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
	})
}

func provideApp(cfg config.Config, store ports.EventStore) *App {
	return &App{
		Config: cfg,
		Store:  store,
	}
}
