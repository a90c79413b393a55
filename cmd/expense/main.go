package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"expense/internal/cli"
	"expense/internal/config"
	"expense/internal/log"
)

// Version information set at build time.
var version = "dev"

type env struct {
	cfg    *config.Config
	logger *log.Logger
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	e := &env{}

	root := &cobra.Command{
		Use:   "expense",
		Short: "Expense tracker server",
		Long: `Serves the expense tracker pages, JSON API and operational
endpoints under the configured base path (default /expense-backend/).

Configuration is read from the environment; a .env file is loaded first
when present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.LoadEnvFile(envFile); err != nil {
				return err
			}
			e.logger = cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				e.logger.Error("Configuration validation failed", log.FieldError, err)
				return err
			}
			e.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serve := serveCmd(e)
	root.RunE = serve.RunE
	root.AddCommand(serve, migrateCmd(e), routesCmd(e))
	return root
}
