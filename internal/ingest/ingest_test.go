package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/apify"
)

type fakeApify struct {
	startErrs []error
	statuses  []string
	items     []apify.Item

	starts  int
	gets    int
	listed  string
	inputIn json.RawMessage
}

func (f *fakeApify) StartRun(_ context.Context, _ string, input json.RawMessage) (*apify.Run, error) {
	i := f.starts
	f.starts++
	f.inputIn = input
	if i < len(f.startErrs) && f.startErrs[i] != nil {
		return nil, f.startErrs[i]
	}
	return &apify.Run{ID: "run-1", Status: apify.StatusRunning, DefaultDatasetID: "ds-1"}, nil
}

func (f *fakeApify) GetRun(_ context.Context, runID string) (*apify.Run, error) {
	i := f.gets
	f.gets++
	status := f.statuses[len(f.statuses)-1]
	if i < len(f.statuses) {
		status = f.statuses[i]
	}
	return &apify.Run{ID: runID, Status: status, DefaultDatasetID: "ds-1"}, nil
}

func (f *fakeApify) ListDatasetItems(_ context.Context, datasetID string) ([]apify.Item, error) {
	f.listed = datasetID
	return f.items, nil
}

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

func TestApifySource_Fetch(t *testing.T) {
	fc := &fakeApify{
		statuses: []string{apify.StatusRunning, apify.StatusRunning, apify.StatusSucceeded},
		items: []apify.Item{
			{"name": "Alice", "email": "alice@x.com", "company": "X", "website": "x.com"},
			{"first_name": "Bob", "last_name": "Builder", "email": "bob@y.com", "organization_name": "Y"},
			{"name": "No Mail"},
		},
	}
	sl := &sleeps{}
	src, err := NewApifySource(fc, ApifyOptions{
		ActorID: "acme/people", Input: `{"limit":10}`,
		PollInterval: 5 * time.Second, Sleep: sl.sleep, Now: fixedNow,
	})
	require.NoError(t, err)

	leads, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "Alice", leads[0].Name)
	assert.Equal(t, "x.com", leads[0].WebsiteURL)
	assert.Equal(t, "Bob Builder", leads[1].Name)
	assert.Equal(t, "Y", leads[1].Company)
	assert.Equal(t, fixedNow(), leads[0].IngestedAt)
	assert.Equal(t, "No Mail", leads[2].Name)
	assert.Empty(t, leads[2].Email)

	assert.Equal(t, "ds-1", fc.listed)
	assert.JSONEq(t, `{"limit":10}`, string(fc.inputIn))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sl.got)
}

func TestApifySource_FailedRunIsTerminal(t *testing.T) {
	fc := &fakeApify{statuses: []string{apify.StatusFailed}}
	src, err := NewApifySource(fc, ApifyOptions{ActorID: "a", Sleep: (&sleeps{}).sleep})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, resilience.IsTerminal(err))
	assert.Equal(t, 1, fc.starts)
}

func TestApifySource_RetriesStartErrors(t *testing.T) {
	fc := &fakeApify{
		startErrs: []error{errors.New("502 bad gateway"), nil},
		statuses:  []string{apify.StatusSucceeded},
		items:     []apify.Item{{"name": "Alice", "email": "alice@x.com"}},
	}
	sl := &sleeps{}
	src, err := NewApifySource(fc, ApifyOptions{
		ActorID: "a",
		Retry:   resilience.FetchOptions{MaxRetries: 3, BaseDelay: 5 * time.Second},
		Sleep:   sl.sleep,
	})
	require.NoError(t, err)

	leads, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, 2, fc.starts)
	assert.Equal(t, []time.Duration{5 * time.Second}, sl.got)
}

func TestApifySource_Exhausted(t *testing.T) {
	boom := errors.New("connection reset by peer")
	fc := &fakeApify{startErrs: []error{boom, boom, boom}}
	src, err := NewApifySource(fc, ApifyOptions{
		ActorID: "a",
		Retry:   resilience.FetchOptions{MaxRetries: 3, BaseDelay: time.Second},
		Sleep:   (&sleeps{}).sleep,
	})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	var exhausted *resilience.FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, 3, fc.starts)
}

func TestNewApifySource_InvalidInput(t *testing.T) {
	_, err := NewApifySource(&fakeApify{}, ApifyOptions{Input: "{not json"})
	require.Error(t, err)
}

func TestMapItem_Aliases(t *testing.T) {
	lead, ok := MapItem(apify.Item{
		"full_name":    " Carol ",
		"email":        "carol@z.com",
		"title":        "CTO",
		"linkedin_url": "https://linkedin.com/in/carol",
		"organization": map[string]any{"name": "Z AG", "website_url": "https://z.com"},
	})
	require.True(t, ok)
	assert.Equal(t, model.Lead{
		Name:       "Carol",
		Email:      "carol@z.com",
		Company:    "Z AG",
		Position:   "CTO",
		WebsiteURL: "https://z.com",
		ProfileURL: "https://linkedin.com/in/carol",
	}, lead)
}

func TestMapItem_NoEmail(t *testing.T) {
	_, ok := MapItem(apify.Item{"name": "x", "email": nil})
	assert.False(t, ok)
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{Leads: []model.Lead{{Email: "a@x.com"}}}
	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	got[0].Email = "changed"
	assert.Equal(t, "a@x.com", src.Leads[0].Email)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Alice","email":"alice@x.com"},{"name":"x"}]`), 0o600))

	leads, err := FileSource{Path: path, Now: fixedNow}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "alice@x.com", leads[0].Email)
	assert.Equal(t, "x", leads[1].Name)
	assert.Empty(t, leads[1].Email)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope.json")}.Fetch(context.Background())
	require.Error(t, err)
}
