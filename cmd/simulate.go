package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/errs"
	"hookfeed/internal/usecase/simulate"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post sample GitHub webhook deliveries to a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		target, _ := cmd.Flags().GetString("target")
		if target == "" {
			cfg, err := config.Load(ctx, cfgFile)
			if err != nil {
				return errs.Wrap(err, "load config")
			}
			target = cfg.App.WebhookURL()
		}
		count, _ := cmd.Flags().GetInt("count")
		if count <= 0 {
			return fmt.Errorf("--count must be positive, got %d", count)
		}
		seed, _ := cmd.Flags().GetInt64("seed")
		interval, _ := cmd.Flags().GetDuration("interval")

		deliveries, err := simulate.NewGenerator(seed).Sequence(count)
		if err != nil {
			return errs.Wrap(err, "generate deliveries")
		}

		logging.Info(ctx, "sending sample deliveries", slog.String("target", target), slog.Int("count", count))

		out := cmd.OutOrStdout()
		failed := 0
		err = simulate.NewSender(target, 10*time.Second).SendAll(ctx, deliveries, interval, func(r simulate.Result) {
			if !r.OK() {
				failed++
			}
			_, _ = fmt.Fprintf(out, "%-20s %s status=%d %s\n", r.Delivery.Kind, r.Delivery.ID, r.Status, r.Message)
		})
		if err != nil {
			return errs.Wrap(err, "send deliveries")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deliveries were rejected", failed, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Int("count", 3, "Number of deliveries (cycles push, pull request opened, merge)")
	simulateCmd.Flags().String("target", "", "Webhook URL (default app.base_url + /api/webhook)")
	simulateCmd.Flags().Int64("seed", 0, "Random seed; 0 picks a random one")
	simulateCmd.Flags().Duration("interval", 500*time.Millisecond, "Pause between deliveries")
}
