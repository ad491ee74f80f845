package main

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/observability"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var concurrency int

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start the publish worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if concurrency > 0 {
				cfg.Queue.Concurrency = concurrency
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			observability.StartMetricsServer(cfg.MetricsAddr)

			worker := queue.NewWorker(a.dispatch)
			server := queue.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, cfg.Queue)

			slog.Info("starting publish worker", "concurrency", cfg.Queue.Concurrency)
			// Run blocks until SIGTERM or SIGINT.
			return server.Run(worker.Mux())
		},
	}

	command.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent publish tasks, overrides WORKER_CONCURRENCY")

	return command
}
