package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/errs"
	"hookfeed/internal/ports"
)

type App struct {
	Config config.Config
	Store  ports.EventStore
}

// InitSchema creates or upgrades the store schema. Stores without one
// (Redis) are left untouched.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))

	migrator, ok := a.Store.(ports.SchemaMigrator)
	if !ok {
		logging.Info(logCtx, "event store has no schema to migrate", slog.String("database_driver", a.Config.Database.Driver))
		return nil
	}

	logging.Info(logCtx, "start schema migration")
	if err := migrator.Migrate(ctx); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}
	logging.Info(logCtx, "schema migration completed")
	return nil
}
