package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/catalog"
	"github.com/mesacredito/fidc-cli/internal/fidc"
	"github.com/mesacredito/fidc-cli/internal/schema"
)

var fidcCmd = &cobra.Command{
	Use:   "fidc",
	Short: "List and ingest FIDC report files",
}

// sourceDir returns the --dir flag, falling back to fidc.source_dir.
func sourceDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.FIDC.SourceDir
	}
	return dir
}

// -- fidc files --

var fidcFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List source files and their matching prompts",
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

		items, err := fidc.NewService(st, nil).ListFilesWithPrompts(ctx, sourceDir(cmd))
		if err != nil {
			return eris.Wrap(err, "fidc files")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, items)
		}
		formatItems(os.Stdout, items)
		return nil
	},
}

// -- fidc process --

var fidcProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract and ingest every file in the source directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			return fidcFilesCmd.RunE(cmd, args)
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Service.ListFilesWithPrompts(ctx, sourceDir(cmd))
		if err != nil {
			return eris.Wrap(err, "fidc process")
		}
		if len(items) == 0 {
			zap.L().Info("no FIDC files found", zap.String("dir", sourceDir(cmd)))
			return nil
		}

		result := env.Service.ProcessBatch(ctx, items)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, result)
		}
		formatBatch(os.Stdout, result)
		if result.Failed > 0 {
			return eris.Errorf("fidc process: %d of %d files failed", result.Failed, result.Total)
		}
		return nil
	},
}

// -- fidc schemas --

var fidcSchemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "Inspect and persist the registered extraction schemas",
}

var fidcSchemasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schema names and the processor that handles each",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatSchemas(os.Stdout, schema.Default().Names())
		return nil
	},
}

var fidcSchemasSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Persist the schema definitions for audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := catalog.SyncSchemas(ctx, st)
		if err != nil {
			return err
		}
		zap.L().Info("schemas synced", zap.Int64("count", n))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{fidcFilesCmd, fidcProcessCmd} {
		c.Flags().String("dir", "", "source directory (default from config fidc.source_dir)")
		c.Flags().Bool("json", false, "print JSON instead of a table")
	}
	fidcProcessCmd.Flags().Bool("dry-run", false, "list the files that would be processed and exit")

	fidcSchemasCmd.AddCommand(fidcSchemasListCmd, fidcSchemasSyncCmd)
	fidcCmd.AddCommand(fidcFilesCmd, fidcProcessCmd, fidcSchemasCmd)
	rootCmd.AddCommand(fidcCmd)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatItems writes a table of listed files to out.
func formatItems(out io.Writer, items []fidc.RequestItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tFUND\tPERIOD\tSCHEMA\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t------\t------")
	for _, it := range items {
		period := "-"
		if it.Year > 0 {
			period = fmt.Sprintf("%02d/%d", it.Month, it.Year)
		}
		schemaName := "-"
		if it.Prompt != nil {
			schemaName = it.Prompt.SchemaName
		}
		status := "ready"
		switch {
		case it.Error != "":
			status = it.Error
		case !it.Found:
			status = "no prompt"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.Filename, orDash(it.FundName), period, schemaName, status)
	}
	_ = w.Flush()
}

// formatBatch writes a per-file outcome table followed by a summary line.
func formatBatch(out io.Writer, r fidc.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tOK\tROWS\tMODEL\tELAPSED\tCOST\tERROR")
	_, _ = fmt.Fprintln(w, "----\t--\t----\t-----\t-------\t----\t-----")
	for _, o := range r.Outcomes {
		ok := "yes"
		if !o.Success {
			ok = "no"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t$%.4f\t%s\n",
			o.Filename, ok, o.RecordsWritten, orDash(o.ModelUsed), orDash(o.ElapsedTime), o.EstimatedCostUSD, truncate(o.Error, 60))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nbatch %s: %d total, %d succeeded, %d failed\n", r.BatchID, r.Total, r.Succeeded, r.Failed)
}

// formatSchemas writes each schema name with its processor status.
func formatSchemas(out io.Writer, names []string) {
	supported := make(map[string]bool)
	for _, n := range fidc.SupportedSchemas() {
		supported[n] = true
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCHEMA\tPROCESSOR")
	for _, n := range names {
		p := "missing"
		if supported[n] {
			p = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", n, p)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
