package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/errs"
	"hookfeed/internal/usecase/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Watch recent repository activity in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logFile, _ := cmd.Flags().GetString("log-file")
		ctx, closeLog, err := dashboardLogContext(cmd.Context(), logFile)
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		baseURL, _ := cmd.Flags().GetString("url")
		if baseURL == "" {
			cfg, err := config.Load(ctx, cfgFile)
			if err != nil {
				return errs.Wrap(err, "load config")
			}
			baseURL = cfg.App.BaseURL
		}
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = dashboard.DefaultRefreshInterval
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := dashboard.NewClient(baseURL, 10*time.Second)
		if err != nil {
			return err
		}

		model := dashboard.NewModel(ctx, client, dashboard.Options{
			Source:          client.EventsURL(),
			RefreshInterval: refreshInterval,
			Limit:           limit,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run dashboard")
		}
		return nil
	},
}

// dashboardLogContext keeps log output off the alt screen: logs go to path,
// or nowhere when path is empty.
func dashboardLogContext(ctx context.Context, path string) (context.Context, func() error, error) {
	if path == "" {
		return logging.WithLogger(ctx, logging.New(io.Discard, logFormat, logLevel)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ctx, nil, errs.Wrapf(err, "open dashboard log file %q", path)
	}
	return logging.WithLogger(ctx, logging.New(f, logFormat, logLevel)), f.Close, nil
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().String("url", "", "Server base URL (default app.base_url)")
	dashboardCmd.Flags().Duration("refresh-interval", dashboard.DefaultRefreshInterval, "Auto refresh interval")
	dashboardCmd.Flags().Int("limit", dashboard.DefaultLimit, "Number of events to show")
	dashboardCmd.Flags().String("log-file", "", "Append logs to this file while the dashboard runs (default: discard)")
}
