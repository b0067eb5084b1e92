package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/schedule"
)

var dispatchOutput string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send the follow-up emails due today",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeDispatch)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := runDispatch(ctx, env)
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, dispatchOutput, res, func(w io.Writer) { formatTickResult(w, res) })
	},
}

func formatTickResult(out io.Writer, res schedule.TickResult) {
	_, _ = fmt.Fprintf(out, "%s: sent %d, failed %d, processed %d\n",
		res.Date, len(res.Sent), len(res.Failed), len(res.Processed))
	for _, d := range res.Failed {
		_, _ = fmt.Fprintf(out, "  %s (%s): %s\n", d.Email, d.Kind, d.Error)
	}
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(dispatchCmd)
}
