package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newSweepEmailsCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep-emails",
		Short: "Retry queued emails once",
		Long: `Runs one retry sweep over the pending email queue, the same sweep
the server runs on its schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			mailer, err := loadMailer(db, cfg)
			if err != nil {
				return err
			}
			return runSweepEmails(ctx, cmd.OutOrStdout(), services.NewDispatcher(db, mailer, cfg.EmailMaxAttempts))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall time limit for the sweep")
	return cmd
}

func loadMailer(db *gorm.DB, cfg *config.Config) (*services.Mailer, error) {
	settings, err := services.LoadEmailSettings(db, services.EmailSettingsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("sweep-emails: load settings: %w", err)
	}
	return services.NewMailer(settings), nil
}

func runSweepEmails(ctx context.Context, out io.Writer, d *services.Dispatcher) error {
	result, err := d.RetryPending(ctx)
	if err != nil {
		return fmt.Errorf("sweep-emails: %w", err)
	}
	fmt.Fprintf(out, "sent=%d failed=%d still-queued=%d\n", result.Sent, result.Failed, result.Queued)
	return nil
}
