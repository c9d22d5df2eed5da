package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "fern",
		Short:         "Match dealer listings to the manufacturer catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")

	load := func() (*app.App, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		logger, err := app.NewLogger(cfg)
		if err != nil {
			return nil, err
		}
		return app.New(cfg, logger), nil
	}

	rootCmd.AddCommand(newServeCommand(load))
	rootCmd.AddCommand(newTrainCommand(load))
	rootCmd.AddCommand(newMatchCommand(load))
	rootCmd.AddCommand(newMigrateCommand(load))

	return rootCmd
}

type loader func() (*app.App, error)

// runOnce starts the services without the HTTP server, runs fn and shuts everything down.
func runOnce(ctx context.Context, load loader, fn func(ctx context.Context, a *app.App) error) error {
	a, err := load()
	if err != nil {
		return err
	}
	defer stop(a)

	if err := a.Start(ctx, false); err != nil {
		return err
	}
	return fn(ctx, a)
}

func stop(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		a.Logger.WithError(err).Error("Shutdown finished with errors")
	}
}
