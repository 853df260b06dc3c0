package main

import (
	"fmt"
	"os"

	"modchat/backend/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "admin",
		Short:        "Operate the matchmaking server",
		SilenceUsage: true,
	}
	cmd.AddCommand(banCmd())
	cmd.AddCommand(unbanCmd())
	cmd.AddCommand(statsCmd())
	cmd.AddCommand(closeStaleCmd())
	cmd.AddCommand(tokenCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
