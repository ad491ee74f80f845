package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	var command = &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return issueToken(cmd.OutOrStdout(), cfg.SecretKey, subject, ttl)
		},
	}

	command.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	command.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return command
}

func issueToken(w io.Writer, secret, subject string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("SECRET_KEY is not set, the API accepts requests without a token")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	token, err := utils.GenerateToken(secret, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
