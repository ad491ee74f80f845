package main

import (
	"context"
	"log"
	"log/slog"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/observability"
	"github.com/spf13/cobra"
)

func Run() {
	var command = &cobra.Command{
		Use:   "postflow",
		Short: "Publishing queue and scheduler for short-form video",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(apiCmd())
	command.AddCommand(workerCmd())
	command.AddCommand(beatCmd())
	command.AddCommand(migrateCmd())
	command.AddCommand(tokenCmd())

	if err := command.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("failed to execute command: %v", err)
	}
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	slog.SetDefault(observability.NewLogger(cfg.LogFormat))
	return cfg
}
