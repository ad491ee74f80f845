package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/observability"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func beatCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "beat",
		Short: "Start the periodic dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rdb, err := lock.Connect(cmd.Context(), cfg.RedisURI)
			if err != nil {
				return err
			}
			defer rdb.Close()

			observability.StartMetricsServer(cfg.MetricsAddr)

			beat := job.NewBeat(a.dispatch, lock.NewLeaser(rdb), cfg.Beat)

			c := cron.New()
			if err := beat.Schedule(c); err != nil {
				return err
			}
			c.Start()
			defer c.Stop()

			slog.Info("beat started",
				"check", cfg.Beat.CheckSchedule,
				"retry", cfg.Beat.RetrySchedule,
				"metrics", cfg.Beat.MetricsSchedule)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			slog.Info("beat stopping")
			return nil
		},
	}

	return command
}
