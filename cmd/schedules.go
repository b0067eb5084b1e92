package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/schedule"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect and cancel follow-up schedules",
}

// -- schedules list --

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List follow-up schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), config.ModeAdmin)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		format, _ := cmd.Flags().GetString("output")

		entries := listSchedules(env.Scheduler, status)
		if len(entries) == 0 && format == "table" {
			fmt.Fprintln(os.Stderr, "No schedules found.")
			return nil
		}
		return writeOutput(os.Stdout, format, entries, func(w io.Writer) { formatSchedules(w, entries) })
	},
}

// -- schedules cancel --

var schedulesCancelCmd = &cobra.Command{
	Use:   "cancel <email>",
	Short: "Cancel the schedule of a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), config.ModeAdmin)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Scheduler.Cancel(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, schedule.ErrNotFound) {
				return eris.Errorf("no schedule for %s", args[0])
			}
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Cancelled schedule for %s\n", args[0])
		return nil
	},
}

// scheduleLister is the read side of the scheduler used by list views.
type scheduleLister interface {
	All() []model.ScheduleEntry
	Active() []model.ScheduleEntry
}

// listSchedules returns the entries with status, or all of them when status
// is empty.
func listSchedules(s scheduleLister, status string) []model.ScheduleEntry {
	if status == string(model.ScheduleActive) {
		return s.Active()
	}
	return filterSchedules(s.All(), status)
}

func filterSchedules(entries []model.ScheduleEntry, status string) []model.ScheduleEntry {
	if status == "" {
		return entries
	}
	out := make([]model.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if string(e.Status) == status {
			out = append(out, e)
		}
	}
	return out
}

func formatSchedules(out io.Writer, entries []model.ScheduleEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EMAIL\tCOMPANY\tSTATUS\tSENT\tDATES\tCREATED")
	_, _ = fmt.Fprintln(w, "-----\t-------\t------\t----\t-----\t-------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.Email,
			truncate(e.Lead.Company, 30),
			e.Status,
			len(e.Sent), len(e.Emails),
			strings.Join(e.Dates(), ","),
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	schedulesListCmd.Flags().String("status", "", "filter by status (active, processed, cancelled)")
	schedulesListCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")

	schedulesCmd.AddCommand(schedulesListCmd)
	schedulesCmd.AddCommand(schedulesCancelCmd)
	rootCmd.AddCommand(schedulesCmd)
}
