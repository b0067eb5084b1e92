package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect the lead sheet",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), config.ModeAdmin)
		if err != nil {
			return err
		}
		defer env.Close()

		format, _ := cmd.Flags().GetString("output")
		records, err := env.Leads.List(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if len(records) == 0 && format == "table" {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		return writeOutput(os.Stdout, format, records, func(w io.Writer) { formatLeads(w, records) })
	},
}

// -- leads export --

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded leads to a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), config.ModeAdmin)
		if err != nil {
			return err
		}
		defer env.Close()

		out, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		records, err := env.Leads.List(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "leads export")
		}
		switch format {
		case "xlsx":
			err = exportLeadsXLSX(out, records)
		case "json", "yaml":
			err = exportLeadsFile(out, format, records)
		default:
			err = eris.Errorf("unknown export format %q", format)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Wrote %d leads to %s\n", len(records), out)
		return nil
	},
}

var leadColumns = []string{
	"ID", "Name", "Email", "Company", "Position", "Website", "Profile",
	"Style", "Message", "Lead Status", "Status", "Created", "Updated",
}

// exportLeadsXLSX writes records to a single-sheet workbook at path.
func exportLeadsXLSX(path string, records []model.LeadRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range leadColumns {
		header.AddCell().SetString(c)
	}
	for _, r := range records {
		row := sheet.AddRow()
		for _, v := range []string{
			r.ID, r.Name, r.Email, r.Company, r.Position, r.WebsiteURL, r.ProfileURL,
			r.CommunicationStyle, r.Message, string(r.LeadStatus), r.Status,
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.UpdatedAt.Format("2006-01-02 15:04:05"),
		} {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func exportLeadsFile(path, format string, records []model.LeadRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := writeOutput(f, format, records, nil); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func formatLeads(out io.Writer, records []model.LeadRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EMAIL\tNAME\tCOMPANY\tSTYLE\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "-----\t----\t-------\t-----\t------\t-------")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Email,
			truncate(r.Name, 24),
			truncate(r.Company, 30),
			r.CommunicationStyle,
			truncate(r.Status, 30),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	leadsListCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	leadsExportCmd.Flags().String("out", "leads.xlsx", "output path")
	leadsExportCmd.Flags().String("format", "xlsx", "export format: xlsx, json or yaml")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsExportCmd)
	rootCmd.AddCommand(leadsCmd)
}
