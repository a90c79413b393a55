package main

import (
	"context"

	"github.com/spf13/cobra"

	"expense/internal/backend"
	"expense/internal/cli"
	apphttp "expense/internal/http"
	"expense/internal/log"
	"expense/internal/metrics"
)

func serveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx, e)
		},
	}
}

func serve(ctx context.Context, e *env) error {
	cfg, logger := e.cfg, e.logger
	m := metrics.New()

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger, m, nil).Create(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv, err := apphttp.NewServer(apphttp.Deps{
		Addr:               cfg.Addr(),
		BasePath:           cfg.BasePath,
		Categories:         res.Categories,
		Expenses:           res.Expenses,
		Pinger:             res.Pinger,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Diagnostics:        cfg.Diagnostics,
	})
	if err != nil {
		logger.Error("Failed to build server", log.FieldError, err)
		return err
	}

	logger.Info("Starting expense server",
		"addr", cfg.Addr(),
		"base_path", srv.Routes().Base(),
		"backend", cfg.DataBackend,
		"events", res.Publishing,
		"version", version)
	return cli.Serve(ctx, srv, cfg.ShutdownTimeout, logger)
}
