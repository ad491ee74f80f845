package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maheshrc27/postflow/internal/api"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	var (
		addr   string
		memory bool
	)

	var command = &cobra.Command{
		Use:   "api",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			var a *app
			if memory {
				var inline *queue.InlineEnqueuer
				a, inline = newMemoryApp(cfg)
				defer inline.Wait()

				c := cron.New()
				if err := job.NewBeat(a.dispatch, nil, cfg.Beat).Schedule(c); err != nil {
					return err
				}
				c.Start()
				defer c.Stop()
				slog.Warn("running with in-memory storage, queue contents are lost on exit")
			} else {
				var err error
				if a, err = newApp(cmd.Context(), cfg); err != nil {
					return err
				}
			}
			defer a.Close()

			server := api.NewApp(cfg.SecretKey, api.Services{
				Queue:      a.queue,
				Dispatch:   a.dispatch,
				Scheduling: a.schedule,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("http server listening", "addr", cfg.HTTPAddr)
				errCh <- server.Listen(cfg.HTTPAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down http server")
			return server.Shutdown()
		},
	}

	command.Flags().StringVar(&addr, "addr", "", "Listen address, overrides HTTP_ADDR")
	command.Flags().BoolVar(&memory, "memory", false, "Keep the queue in memory and publish in-process, without Postgres or Redis")

	return command
}
