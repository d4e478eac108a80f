package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/queue"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the worker pool",
	Long:  "Claims tasks from the shared queue and runs them until interrupted. Safe to run on several machines at once; leases and locks keep workers from colliding.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		w := queue.NewWorker(env.Queue, cfg.Worker)
		env.Pipeline.Register(w)

		zap.L().Info("worker pool starting",
			zap.Int("concurrency", cfg.Worker.Concurrency))
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}
