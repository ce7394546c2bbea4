package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fidc-cli",
	Short: "FIDC monthly report extraction and ingestion",
	Long:  "Reads FIDC monthly reports, extracts structured data with LLM providers against per-fund schemas and upserts indicator values into the database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
