package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/scrape"
)

type fakeLedger struct {
	keys    map[string]bool
	markErr error
}

func newFakeLedger(processed ...model.Lead) *fakeLedger {
	l := &fakeLedger{keys: map[string]bool{}}
	for _, p := range processed {
		l.keys[p.IdentityKey()] = true
	}
	return l
}

func (l *fakeLedger) IsProcessed(lead model.Lead) bool { return l.keys[lead.IdentityKey()] }

func (l *fakeLedger) MarkProcessed(_ context.Context, lead model.Lead) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.keys[lead.IdentityKey()] = true
	return nil
}

type fakeEnricher struct {
	fail map[string]error
}

func (f fakeEnricher) Enrich(_ context.Context, lead model.Lead) (model.EnrichedLead, error) {
	if err := f.fail[lead.Email]; err != nil {
		return model.EnrichedLead{Lead: lead}, err
	}
	return model.EnrichedLead{Lead: lead, WebsiteSummary: "site", ProfileSummary: "profile"}, nil
}

func (f fakeEnricher) EnrichAll(ctx context.Context, leads []model.Lead) ([]model.EnrichedLead, []error) {
	out := make([]model.EnrichedLead, len(leads))
	errs := make([]error, len(leads))
	for i, l := range leads {
		out[i], errs[i] = f.Enrich(ctx, l)
	}
	return out, errs
}

type fakeAnalyzer struct {
	fail  map[string]error
	panic map[string]bool
	calls int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, el model.EnrichedLead) (model.AnalysisResult, error) {
	a.calls++
	if a.panic[el.Lead.Email] {
		panic("boom")
	}
	if err := a.fail[el.Lead.Email]; err != nil {
		return model.AnalysisResult{}, err
	}
	return model.AnalysisResult{Style: "formal", Approach: "direct", Personalization: model.DefaultPersonalization()}, nil
}

type fakeRegistrar struct {
	added []string
	err   error
}

func (r *fakeRegistrar) Add(_ context.Context, lead model.Lead, _ model.AnalysisResult) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.added = append(r.added, lead.Email)
	return true, nil
}

type fakeLeads struct {
	records   []model.LeadRecord
	appendErr error
}

func (f *fakeLeads) Append(_ context.Context, rec model.LeadRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLeads) UpdateStatus(context.Context, string, string) error { return nil }

func (f *fakeLeads) List(context.Context) ([]model.LeadRecord, error) { return f.records, nil }

type failingSource struct{}

func (failingSource) Fetch(context.Context) ([]model.Lead, error) {
	return nil, errors.New("actor run failed")
}

func testLeads() []model.Lead {
	return []model.Lead{
		{Name: "Alice", Company: "Acme", Email: "alice@acme.com", WebsiteURL: "https://acme.com"},
		{Name: "Bob", Company: "Bolt", Email: "bob@bolt.io"},
		{Name: "Cara", Company: "Cove", Email: "cara@cove.dev"},
	}
}

type fixture struct {
	enricher  fakeEnricher
	ledger    *fakeLedger
	analyzer  *fakeAnalyzer
	scheduler *fakeRegistrar
	leads     *fakeLeads
	batches   []*BatchResult
}

func newFixture(t *testing.T, src ingest.Source, processed ...model.Lead) (*Pipeline, *fixture) {
	t.Helper()
	f := &fixture{
		enricher:  fakeEnricher{fail: map[string]error{}},
		ledger:    newFakeLedger(processed...),
		analyzer:  &fakeAnalyzer{fail: map[string]error{}, panic: map[string]bool{}},
		scheduler: &fakeRegistrar{},
		leads:     &fakeLeads{},
	}
	p := New(Deps{
		Source:    src,
		Ledger:    f.ledger,
		Enricher:  f.enricher,
		Analyzer:  f.analyzer,
		Leads:     f.leads,
		Scheduler: f.scheduler,
		OnBatch:   func(r *BatchResult) { f.batches = append(f.batches, r) },
	})
	return p, f
}

func TestRunBatch_AllSucceed(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()})

	res, err := p.RunBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Capped)
	assert.Equal(t, 0, res.Skipped)
	assert.Len(t, res.Succeeded, 3)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 3, res.Processed())
	assert.Equal(t, []string{"alice@acme.com", "bob@bolt.io", "cara@cove.dev"}, f.scheduler.added)
	assert.Len(t, f.leads.records, 3)
	assert.True(t, res.Succeeded[0].Recorded)
	assert.True(t, res.Succeeded[0].Scheduled)
	for _, l := range testLeads() {
		assert.True(t, f.ledger.IsProcessed(l))
	}
	require.Len(t, f.batches, 1)
	assert.Same(t, res, f.batches[0])
}

func TestRunBatch_CapAppliesBeforeDedup(t *testing.T) {
	leads := testLeads()
	p, f := newFixture(t, ingest.StaticSource{Leads: leads}, leads[0])

	res, err := p.RunBatch(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Capped)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "bob@bolt.io", res.Succeeded[0].Email)
	assert.False(t, f.ledger.IsProcessed(leads[2]))
}

func TestRunBatch_ZeroLimitMeansNoCap(t *testing.T) {
	p, _ := newFixture(t, ingest.StaticSource{Leads: testLeads()})

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Capped)
	assert.Len(t, res.Succeeded, 3)
}

func TestRunBatch_DuplicateWithinBatchHandledOnce(t *testing.T) {
	leads := testLeads()
	leads = append(leads, leads[0])
	p, f := newFixture(t, ingest.StaticSource{Leads: leads})

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 3)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, f.analyzer.calls)
}

func TestRunBatch_FetchErrorFailsBatch(t *testing.T) {
	p, f := newFixture(t, failingSource{})

	res, err := p.RunBatch(context.Background(), 5)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "actor run failed")
	assert.Empty(t, f.batches)
}

func TestRunBatch_AnalysisErrorIsolated(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()})
	f.analyzer.fail["bob@bolt.io"] = errors.New("model unavailable")

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bob@bolt.io", res.Failed[0].Email)
	assert.Equal(t, StageAnalyze, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error, "model unavailable")
	assert.Len(t, res.Succeeded, 2)
	assert.False(t, f.ledger.IsProcessed(testLeads()[1]), "failed lead is retried next batch")
	assert.NotContains(t, f.scheduler.added, "bob@bolt.io")
}

func TestRunBatch_PanicRecovered(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()})
	f.analyzer.panic["alice@acme.com"] = true

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageAnalyze, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error, "panic: boom")
	assert.Len(t, res.Succeeded, 2)
}

func TestRunBatch_ScheduleErrorFailsLead(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()[:1]})
	f.scheduler.err = errors.New("disk full")

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageSchedule, res.Failed[0].Stage)
	assert.False(t, f.ledger.IsProcessed(testLeads()[0]))
}

func TestRunBatch_LedgerErrorFailsLead(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()[:1]})
	f.ledger.markErr = errors.New("read-only")

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageLedger, res.Failed[0].Stage)
	assert.Equal(t, []string{"alice@acme.com"}, f.scheduler.added)
}

func TestRunBatch_LeadStoreErrorOnlyLogged(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()[:1]})
	f.leads.appendErr = errors.New("sheet quota")

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 1)
	assert.False(t, res.Succeeded[0].Recorded)
	assert.True(t, res.Succeeded[0].Scheduled)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.RunBatch(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Succeeded)
	assert.Zero(t, f.analyzer.calls)
}

func TestRunLead(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{})
	lead := model.Lead{Name: "Test Person", Company: "Test Company", Email: "test@example.com"}

	out, err := p.RunLead(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, "formal", out.Analysis.Style)
	assert.True(t, out.Recorded)
	assert.False(t, out.Scheduled)
	assert.Empty(t, f.scheduler.added)
	assert.False(t, f.ledger.IsProcessed(lead))
	require.Len(t, f.leads.records, 1)
	assert.Equal(t, "test@example.com", f.leads.records[0].Email)
}

func TestRunLead_AnalysisError(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{})
	f.analyzer.fail["test@example.com"] = errors.New("rate limited")

	_, err := p.RunLead(context.Background(), model.Lead{Email: "test@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, f.leads.records)
}

func TestRunLead_EnrichError(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{})
	f.enricher.fail["test@example.com"] = errors.New("enrich: panic: bad page")

	_, err := p.RunLead(context.Background(), model.Lead{Email: "test@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad page")
	assert.Zero(t, f.analyzer.calls)
}

func TestRunBatch_EnrichErrorIsolated(t *testing.T) {
	p, f := newFixture(t, ingest.StaticSource{Leads: testLeads()})
	f.enricher.fail["bob@bolt.io"] = errors.New("enrich: panic: nil map")

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bob@bolt.io", res.Failed[0].Email)
	assert.Equal(t, StageEnrich, res.Failed[0].Stage)
	assert.Equal(t, 2, f.analyzer.calls)
	assert.False(t, f.ledger.IsProcessed(testLeads()[1]))
}

type panickingPages struct{ url string }

func (panickingPages) Name() string { return "panicking" }

func (p panickingPages) Fetch(_ context.Context, url string) (*scrape.RawPage, error) {
	if url == p.url {
		panic("parser blew up on acme")
	}
	return &scrape.RawPage{URL: url, HTML: "<html><title>ok</title></html>"}, nil
}

func TestRunBatch_EnrichPanicIsolated(t *testing.T) {
	noSleep := func(context.Context, time.Duration) error { return nil }
	ledger := newFakeLedger()
	p := New(Deps{
		Source:    ingest.StaticSource{Leads: testLeads()},
		Ledger:    ledger,
		Enricher:  enrich.New(panickingPages{url: "https://acme.com"}, nil, enrich.Options{Sleep: noSleep, Concurrency: 2}),
		Analyzer:  &fakeAnalyzer{},
		Scheduler: &fakeRegistrar{},
	})

	res, err := p.RunBatch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "alice@acme.com", res.Failed[0].Email)
	assert.Equal(t, StageEnrich, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error, "parser blew up on acme")
	assert.Len(t, res.Succeeded, 2)
	assert.False(t, ledger.IsProcessed(testLeads()[0]))
}

func TestRunBatch_RecordWithoutEmailFails(t *testing.T) {
	leads := append([]model.Lead{{Name: "Ghost", Company: "Nowhere"}}, testLeads()...)
	p, f := newFixture(t, ingest.StaticSource{Leads: leads})

	res, err := p.RunBatch(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Capped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "Ghost", res.Failed[0].Name)
	assert.Equal(t, StageIngest, res.Failed[0].Stage)
	assert.Equal(t, "record has no email", res.Failed[0].Error)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, 3, res.Processed())
	assert.Equal(t, []string{"alice@acme.com", "bob@bolt.io"}, f.scheduler.added)
}

func TestNew_DefaultsNow(t *testing.T) {
	p := New(Deps{})
	require.NotNil(t, p.deps.Now)
	assert.WithinDuration(t, time.Now(), p.deps.Now(), time.Second)
}
