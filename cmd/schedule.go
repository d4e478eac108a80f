package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/schedule"
)

var scheduleCalendarPath string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Enqueue discovery tasks for the configured calendar",
	Long:  "Walks the configured (month, day) pairs and enqueues one discovery task per day. Days whose lock is already held are skipped, so the command is safe to rerun.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var cal *schedule.Calendar
		if scheduleCalendarPath != "" {
			cal, err = schedule.LoadCalendar(scheduleCalendarPath)
		} else {
			cal, err = schedule.CalendarFromConfig(cfg.Schedule)
		}
		if err != nil {
			return err
		}

		enqueued, skipped := 0, 0
		for _, day := range cal.Days {
			held, err := env.Locks.Held(ctx, lock.DayKey(day.Month, day.Day))
			if err != nil {
				return err
			}
			if held {
				skipped++
				continue
			}
			payload := model.DiscoverDayPayload{Month: day.Month, Day: day.Day}
			if _, err := env.Queue.Enqueue(ctx, model.TaskDiscoverDay, payload); err != nil {
				return err
			}
			enqueued++
		}

		zap.L().Info("calendar scheduled",
			zap.Int("days", len(cal.Days)),
			zap.Int("enqueued", enqueued),
			zap.Int("skipped", skipped))
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCalendarPath, "calendar", "", "YAML calendar file (default: expand config months/days)")
	rootCmd.AddCommand(scheduleCmd)
}
