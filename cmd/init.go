package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store schema and report the current state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), config.ModeAdmin)
		if err != nil {
			return err
		}
		defer env.Close()

		snap := env.Collector.Collect()
		_, _ = fmt.Fprintf(os.Stdout, "Store %s ready: %d processed leads, %d schedules (%d active)\n",
			cfg.Store.Driver, env.Ledger.Len(), snap.Total, snap.Active)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
