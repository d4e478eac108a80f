package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/notablehumans/ingest/internal/model"
)

var (
	discoverMonth string
	discoverDay   int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run discovery for one day-of-year page",
	Long:  "Collects candidate titles from the given day page and enqueues enrichment batches for the worker pool. A day already claimed by another process is skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		payload, err := json.Marshal(model.DiscoverDayPayload{
			Month: discoverMonth,
			Day:   discoverDay,
		})
		if err != nil {
			return eris.Wrap(err, "marshal discover payload")
		}
		task := &model.Task{Kind: model.TaskDiscoverDay, Payload: payload}
		return env.Pipeline.HandleDiscoverDay(ctx, task)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverMonth, "month", "", "month name, e.g. March")
	discoverCmd.Flags().IntVar(&discoverDay, "day", 0, "day of month")
	_ = discoverCmd.MarkFlagRequired("month")
	_ = discoverCmd.MarkFlagRequired("day")
	rootCmd.AddCommand(discoverCmd)
}
