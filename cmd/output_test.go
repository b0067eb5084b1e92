package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/schedule"
)

func TestWriteOutput_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	entry := model.ScheduleEntry{Email: "ann@acme.com", Status: model.ScheduleActive}

	require.NoError(t, writeOutput(&buf, "yaml", []model.ScheduleEntry{entry}, nil))
	assert.Contains(t, buf.String(), "email: ann@acme.com")
	assert.Contains(t, buf.String(), "status: active")
	assert.Contains(t, buf.String(), "scheduled_emails:")
}

func TestWriteOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", map[string]int{"n": 1}, nil))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestWriteOutput_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeOutput(&buf, "csv", nil, nil))
	assert.Error(t, writeOutput(&buf, "table", nil, nil))
}

func TestFormatSchedules(t *testing.T) {
	entries := []model.ScheduleEntry{{
		Email:  "ann@acme.com",
		Lead:   model.Lead{Company: "Acme"},
		Status: model.ScheduleActive,
		Emails: map[string]model.ScheduledEmail{
			"2026-03-09": {Kind: model.EmailFollowUp},
			"2026-03-05": {Kind: model.EmailFollowUp},
		},
		Sent: map[string]time.Time{"2026-03-05": {}},
	}}

	var buf bytes.Buffer
	formatSchedules(&buf, entries)
	out := buf.String()
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "ann@acme.com")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "2026-03-05,2026-03-09")
}

func TestFilterSchedules(t *testing.T) {
	entries := []model.ScheduleEntry{
		{Email: "a", Status: model.ScheduleActive},
		{Email: "b", Status: model.ScheduleCancelled},
	}
	assert.Len(t, filterSchedules(entries, ""), 2)
	got := filterSchedules(entries, "cancelled")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Email)
}

func TestFormatBatchResult(t *testing.T) {
	res := &pipeline.BatchResult{
		Fetched: 3, Capped: 3, Skipped: 1,
		Succeeded: []pipeline.LeadOutcome{{Email: "ann@acme.com", Company: "Acme", Analysis: model.AnalysisResult{Style: "formal", Fallback: true}}},
		Failed:    []pipeline.LeadFailure{{Email: "ben@bolt.io", Stage: pipeline.StageAnalyze, Error: "model unavailable"}},
	}
	var buf bytes.Buffer
	formatBatchResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Fetched 3, capped 3, skipped 1, succeeded 1, failed 1")
	assert.Contains(t, out, "formal (fallback)")
	assert.Contains(t, out, "failed:analyze")
}

func TestFormatTickResult(t *testing.T) {
	var buf bytes.Buffer
	formatTickResult(&buf, schedule.TickResult{
		Date:   "2026-03-05",
		Sent:   []schedule.Dispatch{{Email: "a@x.com"}},
		Failed: []schedule.Dispatch{{Email: "b@x.com", Kind: model.EmailFollowUp, Error: "smtp: 550"}},
	})
	assert.Contains(t, buf.String(), "2026-03-05: sent 1, failed 1, processed 0")
	assert.Contains(t, buf.String(), "b@x.com (follow_up): smtp: 550")
}

func TestExportLeadsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	records := []model.LeadRecord{{
		ID: "id-1", Name: "Ann", Email: "ann@acme.com", Company: "Acme",
		CommunicationStyle: "formal", Status: "new", CreatedAt: created, UpdatedAt: created,
	}}

	require.NoError(t, exportLeadsXLSX(path, records))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Leads", sheet.Name)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Email", sheet.Rows[0].Cells[2].String())
	assert.Equal(t, "ann@acme.com", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "2026-03-02 10:00:00", sheet.Rows[1].Cells[11].String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
