package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var metadataLimit int

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Sweep stale article metadata",
	Long:  "Finds persons whose Wikipedia article statistics are stale or were never scraped and enqueues refresh tasks for the worker pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dispatched, err := env.Pipeline.SweepMetadata(ctx, metadataLimit)
		if err != nil {
			return err
		}
		zap.L().Info("metadata sweep enqueued", zap.Int("tasks", dispatched))
		return nil
	},
}

func init() {
	metadataCmd.Flags().IntVar(&metadataLimit, "limit", 1000, "max persons to sweep")
	rootCmd.AddCommand(metadataCmd)
}
