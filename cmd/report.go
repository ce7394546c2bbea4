package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mesacredito/fidc-cli/internal/model"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print consolidated indicator data",
}

var reportValuesCmd = &cobra.Command{
	Use:   "values",
	Short: "Print periodic indicator values",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.ConsolidatedValues(ctx)
		if err != nil {
			return eris.Wrap(err, "report values")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No values found.")
			return nil
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, rows)
		}
		formatValues(os.Stdout, rows)
		return nil
	},
}

var reportRegistrationsCmd = &cobra.Command{
	Use:   "registrations",
	Short: "Print registration facts per asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.ConsolidatedRegistrations(ctx)
		if err != nil {
			return eris.Wrap(err, "report registrations")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No registrations found.")
			return nil
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, rows)
		}
		formatRegistrations(os.Stdout, rows)
		return nil
	},
}

func init() {
	reportValuesCmd.Flags().Bool("json", false, "print JSON instead of a table")
	reportRegistrationsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	reportCmd.AddCommand(reportValuesCmd, reportRegistrationsCmd)
	rootCmd.AddCommand(reportCmd)
}

// formatValues writes one line per periodic value.
func formatValues(out io.Writer, rows []model.ConsolidatedValue) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ASSET\tINDICATOR\tPERIOD\tVALUE\tLIMIT\tCAPTURED")
	_, _ = fmt.Fprintln(w, "-----\t---------\t------\t-----\t-----\t--------")
	for _, r := range rows {
		value := "-"
		if r.Value != nil {
			value = strconv.FormatFloat(*r.Value, 'f', -1, 64)
		}
		limit := "-"
		if r.Limit != nil {
			limit = *r.Limit
			if r.IsUpperLimit != nil {
				if *r.IsUpperLimit {
					limit = "<= " + limit
				} else {
					limit = ">= " + limit
				}
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s/%d\t%s\t%s\t%s\n",
			r.AssetNickname, r.IndicatorName, r.Month, r.Year, value, limit,
			r.CapturedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// formatRegistrations writes one line per registration fact.
func formatRegistrations(out io.Writer, rows []model.ConsolidatedRegistration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ASSET\tINDICATOR\tVALUE")
	_, _ = fmt.Fprintln(w, "-----\t---------\t-----")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.AssetNickname, r.IndicatorName, truncate(r.TextValue, 80))
	}
	_ = w.Flush()
}
