package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Notable humans ingestion pipeline",
	Long:  "Discovers people from Wikipedia day-of-year pages, enriches them over the Wikidata SPARQL endpoint, and reconciles the results into a shared database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
