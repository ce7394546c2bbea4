package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the indicator and prompt catalogs",
}

var seedIndicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Upsert the indicator catalog from a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		sheet, _ := cmd.Flags().GetString("sheet")
		if file == "" {
			return eris.New("seed indicators: --file is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := catalog.SeedIndicators(ctx, st, file, catalog.XLSXOptions{SheetName: sheet}); err != nil {
			return err
		}
		st.ClearCache()
		return nil
	},
}

var seedPromptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Upsert assets and prompts from a YAML seed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return eris.New("seed prompts: --file is required")
		}

		s, err := catalog.LoadSeed(file)
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			zap.L().Info("seed file is valid",
				zap.Int("assets", len(s.Assets)),
				zap.Int("prompts", len(s.Prompts)),
			)
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := catalog.Apply(ctx, st, s); err != nil {
			return err
		}
		st.ClearCache()
		return nil
	},
}

func init() {
	seedIndicatorsCmd.Flags().String("file", "", "indicator spreadsheet (.xlsx)")
	seedIndicatorsCmd.Flags().String("sheet", "", "sheet name (default first sheet)")
	seedPromptsCmd.Flags().String("file", "", "prompt catalog seed (.yaml)")
	seedPromptsCmd.Flags().Bool("dry-run", false, "validate the seed file without writing")

	seedCmd.AddCommand(seedIndicatorsCmd, seedPromptsCmd)
	rootCmd.AddCommand(seedCmd)
}
