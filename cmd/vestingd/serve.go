package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/vesting-mcp/internal/config"
	"github.com/rxtech-lab/vesting-mcp/internal/server"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			logger, err := commonRun(cfg)
			if err != nil {
				return err
			}

			app, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Run(ctx); err != nil {
				return err
			}
			logger.Info("server shut down successfully")
			return nil
		},
	}
}

func mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			logger, err := commonRun(cfg)
			if err != nil {
				return err
			}

			app, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.RunStdio()
		},
	}
}
