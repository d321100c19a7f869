package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hookfeed/internal/bootstrap"
	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/errs"
	"hookfeed/internal/usecase/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook ingestion and events API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *ingest.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("component", "http.server"))

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.Server.Addr = addr
		}
		migrate, _ := cmd.Flags().GetBool("migrate")
		if migrate {
			if err := app.InitSchema(ctx); err != nil {
				return errs.Wrap(err, "initialize schema")
			}
		}

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := newHTTPServer(ctx, app.Config.Server, newRouter(svc, app.Config))

		errCh := make(chan error, 1)
		go func() {
			logging.Info(ctx, "listening", slog.String("addr", srv.Addr), slog.String("webhook_url", app.Config.App.WebhookURL()))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errs.Wrap(err, "listen")
		case <-ctx.Done():
		}

		logging.Info(ctx, "shutting down", slog.Duration("timeout", app.Config.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "server stopped"); err != nil {
			return errs.Wrap(err, "write serve output")
		}
		return nil
	}),
}

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// newHTTPServer bounds every phase of a connection so a slow client cannot
// hold a handler open.
func newHTTPServer(ctx context.Context, cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: min(defaultReadHeaderTimeout, durationOr(cfg.ReadTimeout, defaultReadTimeout)),
		ReadTimeout:       durationOr(cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      durationOr(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       durationOr(cfg.IdleTimeout, defaultIdleTimeout),
		// Requests keep the logger but outlive the signal so Shutdown can drain them.
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().Bool("migrate", true, "Run schema migration before serving")
}
