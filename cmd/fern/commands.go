package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the review API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := load()
			if err != nil {
				return err
			}
			defer stop(a)

			if err := a.Start(ctx, true); err != nil {
				return err
			}
			<-ctx.Done()
			a.Logger.Info("Shutting down")
			return nil
		},
	}
}

func newTrainCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Rebuild the catalog matrix and reranker and replace the cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), load, func(ctx context.Context, a *app.App) error {
				art, err := a.Pipeline.Train(ctx)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(art.Metadata(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func newMatchCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Create review records for every unmatched listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), load, func(ctx context.Context, a *app.App) error {
				created, err := a.Pipeline.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d review records\n", created)
				return nil
			})
		},
	}
}

func newMigrateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer stop(a)
			return a.Migrate(cmd.Context())
		},
	}
}
