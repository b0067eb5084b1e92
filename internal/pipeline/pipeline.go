// Package pipeline sequences ingestion, dedup, enrichment, analysis and
// schedule registration for one batch of leads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Stage names recorded on failures.
const (
	StageIngest   = "ingest"
	StageEnrich   = "enrich"
	StageAnalyze  = "analyze"
	StageSchedule = "schedule"
	StageLedger   = "ledger"
)

// Enricher attaches website and profile summaries. Fetch failures become
// error strings in the summaries; an error fails the lead. EnrichAll returns
// one error slot per lead.
type Enricher interface {
	Enrich(ctx context.Context, lead model.Lead) (model.EnrichedLead, error)
	EnrichAll(ctx context.Context, leads []model.Lead) ([]model.EnrichedLead, []error)
}

// Analyzer produces the communication-style assessment.
type Analyzer interface {
	Analyze(ctx context.Context, el model.EnrichedLead) (model.AnalysisResult, error)
}

// Ledger is the dedup registry.
type Ledger interface {
	IsProcessed(lead model.Lead) bool
	MarkProcessed(ctx context.Context, lead model.Lead) error
}

// Registrar registers a lead with the follow-up scheduler.
type Registrar interface {
	Add(ctx context.Context, lead model.Lead, analysis model.AnalysisResult) (bool, error)
}

// Deps are the collaborators of a Pipeline. Leads may be nil.
type Deps struct {
	Source    ingest.Source
	Ledger    Ledger
	Enricher  Enricher
	Analyzer  Analyzer
	Leads     leadstore.Store
	Scheduler Registrar
	// OnBatch is called with every completed batch result.
	OnBatch func(*BatchResult)
	Now     func() time.Time
}

// LeadOutcome is a lead that went through every stage.
type LeadOutcome struct {
	Email      string               `json:"email"`
	Name       string               `json:"name"`
	Company    string               `json:"company"`
	Enriched   model.EnrichedLead   `json:"enriched"`
	Analysis   model.AnalysisResult `json:"analysis"`
	Scheduled  bool                 `json:"scheduled"`
	Recorded   bool                 `json:"recorded"`
	DurationMs int64                `json:"duration_ms"`
}

// LeadFailure is a lead that stopped at Stage.
type LeadFailure struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// errNoEmail fails records the provider returned without an email.
var errNoEmail = errors.New("record has no email")

// BatchResult aggregates per-lead outcomes of one RunBatch. Fetched counts
// every record the source returned, including those failed at StageIngest.
type BatchResult struct {
	Fetched    int           `json:"fetched"`
	Capped     int           `json:"capped"`
	Skipped    int           `json:"skipped"`
	Succeeded  []LeadOutcome `json:"succeeded"`
	Failed     []LeadFailure `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
}

// Processed is the number of leads that reached a terminal outcome.
func (r *BatchResult) Processed() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Pipeline runs batches. It holds no lock across leads; leads of a batch
// are handled in source order.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}
}

// RunBatch fetches leads, fails those without an email, caps the rest at
// maxLeads (0 means no cap), drops those already in the ledger and runs the
// remainder. Only a fetch failure is
// returned as an error; per-lead problems are recorded in the result.
func (p *Pipeline) RunBatch(ctx context.Context, maxLeads int) (*BatchResult, error) {
	start := p.deps.Now()
	log := zap.L().With(zap.Int("max_leads", maxLeads))
	log.Info("pipeline: batch starting")

	leads, err := p.deps.Source.Fetch(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch leads")
	}
	res := &BatchResult{Fetched: len(leads), StartedAt: start.UTC()}

	valid := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if strings.TrimSpace(l.Email) == "" {
			res.Failed = append(res.Failed, *failure(l, StageIngest, errNoEmail))
			continue
		}
		valid = append(valid, l)
	}
	if len(res.Failed) > 0 {
		log.Warn("pipeline: records without email", zap.Int("count", len(res.Failed)))
	}
	leads = valid

	if maxLeads > 0 && len(leads) > maxLeads {
		leads = leads[:maxLeads]
	}
	res.Capped = len(leads)

	fresh := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if p.deps.Ledger.IsProcessed(l) {
			res.Skipped++
			continue
		}
		fresh = append(fresh, l)
	}
	log.Info("pipeline: leads selected",
		zap.Int("fetched", res.Fetched),
		zap.Int("capped", res.Capped),
		zap.Int("skipped", res.Skipped),
	)

	enriched, errs := p.deps.Enricher.EnrichAll(ctx, fresh)

	for i, el := range enriched {
		if ctx.Err() != nil {
			break
		}
		// A lead listed twice in one batch is handled once.
		if p.deps.Ledger.IsProcessed(el.Lead) {
			res.Skipped++
			continue
		}
		if err := errs[i]; err != nil {
			log.Error("pipeline: enrichment failed", zap.String("lead", el.Lead.Email), zap.Error(err))
			res.Failed = append(res.Failed, *failure(el.Lead, StageEnrich, err))
			continue
		}
		out, fail := p.processEnriched(ctx, el)
		if fail != nil {
			res.Failed = append(res.Failed, *fail)
			continue
		}
		res.Succeeded = append(res.Succeeded, *out)
	}

	res.DurationMs = p.deps.Now().Sub(start).Milliseconds()
	log.Info("pipeline: batch complete",
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("skipped", res.Skipped),
		zap.Int64("duration_ms", res.DurationMs),
	)
	if p.deps.OnBatch != nil {
		p.deps.OnBatch(res)
	}
	return res, ctx.Err()
}

// processEnriched runs analysis, lead store append, schedule registration
// and ledger mark for one lead. Panics are recovered into a failure.
func (p *Pipeline) processEnriched(ctx context.Context, el model.EnrichedLead) (out *LeadOutcome, fail *LeadFailure) {
	start := p.deps.Now()
	lead := el.Lead
	log := zap.L().With(zap.String("lead", lead.Email))
	stage := StageAnalyze

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: lead panicked", zap.String("stage", stage), zap.Any("panic", r))
			out, fail = nil, failure(lead, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	analysis, err := p.deps.Analyzer.Analyze(ctx, el)
	if err != nil {
		log.Error("pipeline: analysis failed", zap.Error(err))
		return nil, failure(lead, StageAnalyze, err)
	}

	out = &LeadOutcome{
		Email:    lead.Email,
		Name:     lead.Name,
		Company:  lead.Company,
		Enriched: el,
		Analysis: analysis,
	}
	out.Recorded = p.record(ctx, el, analysis)

	stage = StageSchedule
	added, err := p.deps.Scheduler.Add(ctx, lead, analysis)
	if err != nil {
		log.Error("pipeline: schedule registration failed", zap.Error(err))
		return nil, failure(lead, StageSchedule, err)
	}
	out.Scheduled = added

	stage = StageLedger
	if err := p.deps.Ledger.MarkProcessed(ctx, lead); err != nil {
		log.Error("pipeline: ledger mark failed", zap.Error(err))
		return nil, failure(lead, StageLedger, err)
	}

	out.DurationMs = p.deps.Now().Sub(start).Milliseconds()
	log.Info("pipeline: lead complete",
		zap.String("style", analysis.Style),
		zap.Bool("fallback", analysis.Fallback),
		zap.Bool("scheduled", added),
	)
	return out, nil
}

// record appends the lead to the lead store. Failures are logged only.
func (p *Pipeline) record(ctx context.Context, el model.EnrichedLead, analysis model.AnalysisResult) bool {
	if p.deps.Leads == nil {
		return false
	}
	rec := leadstore.NewRecord(el, analysis, p.deps.Now())
	if err := p.deps.Leads.Append(ctx, rec); err != nil {
		zap.L().Warn("pipeline: lead store append failed",
			zap.String("lead", el.Lead.Email),
			zap.Error(err),
		)
		return false
	}
	return true
}

// RunLead enriches and analyzes one lead and appends it to the lead store,
// without touching the ledger or the schedule.
func (p *Pipeline) RunLead(ctx context.Context, lead model.Lead) (*LeadOutcome, error) {
	start := p.deps.Now()
	el, err := p.deps.Enricher.Enrich(ctx, lead)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: enrich %s", lead.Email)
	}
	analysis, err := p.deps.Analyzer.Analyze(ctx, el)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: analyze %s", lead.Email)
	}
	out := &LeadOutcome{
		Email:    lead.Email,
		Name:     lead.Name,
		Company:  lead.Company,
		Enriched: el,
		Analysis: analysis,
	}
	out.Recorded = p.record(ctx, el, analysis)
	out.DurationMs = p.deps.Now().Sub(start).Milliseconds()
	return out, nil
}

func failure(lead model.Lead, stage string, err error) *LeadFailure {
	return &LeadFailure{
		Email: lead.Email,
		Name:  lead.Name,
		Stage: stage,
		Error: err.Error(),
	}
}
