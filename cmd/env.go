package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/analysis"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/ledger"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/schedule"
	"github.com/sells-group/outreach-cli/internal/scrape"
	"github.com/sells-group/outreach-cli/internal/store"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/apify"
	"github.com/sells-group/outreach-cli/pkg/firecrawl"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// appEnv holds the store and the stateful components every command shares.
type appEnv struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Scheduler *schedule.Scheduler
	Leads     leadstore.Store
	Alerter   *monitoring.Alerter
	Collector *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode, opens and migrates the store, and loads
// the ledger and schedule. Callers should defer env.Close().
func initEnv(ctx context.Context, mode config.Mode) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var leads leadstore.Store = leadstore.NewDBStore(st)
	if cfg.Notion.LeadDB != "" {
		leads = leadstore.NewNotionStore(notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB)
		zap.L().Info("lead sheet: notion", zap.String("database", cfg.Notion.LeadDB))
	}

	var ledgerOpts []ledger.Option
	if cfg.Pipeline.StructuredDedupKey {
		ledgerOpts = append(ledgerOpts, ledger.WithKeyFunc(ledger.KeyStructured))
	}
	led, err := ledger.Load(ctx, st, ledgerOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sched, err := schedule.Load(ctx, st,
		outreach.NewRenderer(cfg.Sender),
		outreach.NewSender(cfg.Mail),
		leads,
		schedule.Options{Location: time.Local, SendInitial: cfg.Schedule.SendInitial},
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{
		Store:     st,
		Ledger:    led,
		Scheduler: sched,
		Leads:     leads,
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
		Collector: monitoring.NewCollector(sched, time.Local),
	}, nil
}

// buildPipeline wires the remote clients into a Pipeline reading from src.
func (e *appEnv) buildPipeline(ctx context.Context, src ingest.Source) *pipeline.Pipeline {
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.Scrape.BreakerThreshold, cfg.Scrape.BreakerResetSecs))
	light := scrape.NewHTTPFetcher(scrape.HTTPOptions{
		UserAgent:      cfg.Scrape.UserAgent,
		Timeout:        time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.Scrape.RequestsPerSec,
	})
	var rendered scrape.PageFetcher
	if cfg.Firecrawl.Key != "" {
		rendered = scrape.NewRenderedFetcher(firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL)), breaker)
	} else {
		zap.L().Debug("OUTREACH_FIRECRAWL_KEY not set, rendered fallback disabled")
	}
	pages := scrape.NewStrategy(light, rendered, cfg.Scrape.RenderedHosts)
	profiles := enrich.NewJinaProfileReader(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL)))

	enricher := enrich.New(pages, profiles, enrich.Options{
		MaxRetries:  cfg.Retry.MaxRetries,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelaySecs) * time.Second,
		Concurrency: cfg.Pipeline.Concurrency,
	})

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Retry.MaxRetries
	analyzer := analysis.New(anthropicpkg.NewClient(cfg.Anthropic.Key), analysis.Options{
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
		Sender:    cfg.Sender,
		Retry:     retry,
		Key:       e.Ledger.Key,
	})

	return pipeline.New(pipeline.Deps{
		Source:    src,
		Ledger:    e.Ledger,
		Enricher:  enricher,
		Analyzer:  analyzer,
		Leads:     e.Leads,
		Scheduler: e.Scheduler,
		OnBatch:   e.Alerter.BatchHook(ctx),
	})
}

// newSource picks the lead source: a local file when from is set,
// otherwise the dataset provider.
func newSource(from string) (ingest.Source, error) {
	if from != "" {
		switch strings.ToLower(filepath.Ext(from)) {
		case ".xlsx":
			return ingest.XLSXSource{Path: from}, nil
		case ".json":
			return ingest.FileSource{Path: from}, nil
		default:
			return nil, eris.Errorf("unsupported lead file %q (want .json or .xlsx)", from)
		}
	}

	client := apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL))
	src, err := ingest.NewApifySource(client, ingest.ApifyOptions{
		ActorID: cfg.Apify.ActorID,
		Input:   cfg.Apify.RunInput,
		Retry: resilience.FetchOptions{
			Operation:  "apify",
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Retry.BaseDelaySecs) * time.Second,
		},
		PollInterval: time.Duration(cfg.Apify.PollIntervalSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// runDispatch runs one dispatch tick and alerts when every send failed.
func runDispatch(ctx context.Context, env *appEnv) (schedule.TickResult, error) {
	res, err := env.Scheduler.ProcessDue(ctx)
	if alerts := env.Alerter.EvaluateTick(res); len(alerts) > 0 {
		env.Alerter.SendAlerts(context.WithoutCancel(ctx), alerts)
	}
	return res, err
}

// testLead is the synthetic lead processed by the test command.
func testLead() model.Lead {
	return model.Lead{
		Name:       "Test Person",
		Email:      "test@example.com",
		Company:    "Test Company",
		Position:   "CEO",
		WebsiteURL: "https://example.com",
		ProfileURL: "https://www.linkedin.com/in/test-person",
		IngestedAt: time.Now().UTC(),
	}
}
