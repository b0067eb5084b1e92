package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/apify"
)

// XLSXSource reads leads from a spreadsheet whose first row holds column
// names. Column names use the same aliases as dataset records.
type XLSXSource struct {
	Path string
	// SheetName selects a sheet; empty means the first one.
	SheetName string
	Now       func() time.Time
}

// Fetch implements Source.
func (s XLSXSource) Fetch(ctx context.Context) ([]model.Lead, error) {
	f, err := xlsx.OpenFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", s.Path)
	}
	sheet, err := s.sheet(f)
	if err != nil {
		return nil, err
	}

	var header []string
	items := make([]apify.Item, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: xlsx read cancelled")
		}
		cells := rowToStrings(row)
		if i == 0 {
			header = normalizeHeader(cells)
			continue
		}
		it := make(apify.Item, len(header))
		for j, v := range cells {
			if j < len(header) && header[j] != "" && v != "" {
				it[header[j]] = v
			}
		}
		if len(it) > 0 {
			items = append(items, it)
		}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return MapItems(items, now()), nil
}

func (s XLSXSource) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if s.SheetName != "" {
		sheet, ok := f.Sheet[s.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", s.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", s.Path)
	}
	return f.Sheets[0], nil
}

// normalizeHeader lowercases column names and turns spaces into
// underscores, so "First Name" matches first_name.
func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
	}
	return out
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
