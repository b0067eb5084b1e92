package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/ingest"
)

var testOutput string

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Enrich and analyze one synthetic lead",
	Long:  "Runs enrichment and analysis for a built-in test lead and appends it to the lead sheet. The ledger and schedule are not touched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeTest)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.buildPipeline(ctx, ingest.StaticSource{}).RunLead(ctx, testLead())
		if err != nil {
			return err
		}
		format := testOutput
		if format == "table" {
			format = "yaml"
		}
		return writeOutput(os.Stdout, format, out, nil)
	},
}

func init() {
	testCmd.Flags().StringVarP(&testOutput, "output", "o", "yaml", "output format: json or yaml")
	rootCmd.AddCommand(testCmd)
}
