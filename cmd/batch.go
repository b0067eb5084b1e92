package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

var (
	batchLimit  int
	batchFrom   string
	batchOutput string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one ingestion batch",
	Long:  "Fetches leads, skips those already processed, then enriches, analyzes and schedules the rest.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mode := config.ModeIngest
		if batchFrom != "" {
			mode = config.ModeTest
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := newSource(batchFrom)
		if err != nil {
			return err
		}

		limit := batchLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.Pipeline.MaxLeads
		}

		res, err := env.buildPipeline(ctx, src).RunBatch(ctx, limit)
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, batchOutput, res, func(w io.Writer) { formatBatchResult(w, res) })
	},
}

func formatBatchResult(out io.Writer, res *pipeline.BatchResult) {
	_, _ = fmt.Fprintf(out, "Fetched %d, capped %d, skipped %d, succeeded %d, failed %d (%dms)\n",
		res.Fetched, res.Capped, res.Skipped, len(res.Succeeded), len(res.Failed), res.DurationMs)
	if len(res.Succeeded)+len(res.Failed) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EMAIL\tCOMPANY\tRESULT\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t-------\t------\t------")
	for _, s := range res.Succeeded {
		detail := s.Analysis.Style
		if s.Analysis.Fallback {
			detail += " (fallback)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Email, truncate(s.Company, 30), "ok", detail)
	}
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Email, "", "failed:"+f.Stage, truncate(f.Error, 60))
	}
	_ = w.Flush()
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 10, "maximum leads per batch (0 = no cap; default from config)")
	batchCmd.Flags().StringVar(&batchFrom, "from", "", "read leads from a .json or .xlsx file instead of the dataset provider")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(batchCmd)
}
