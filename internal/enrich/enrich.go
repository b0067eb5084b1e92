// Package enrich adds website and profile summaries to ingested leads.
// Fetch problems never fail a lead: a missing URL becomes a placeholder and
// an unrecoverable fetch becomes an "error: ..." summary. Only a panic while
// fetching or parsing is reported as an error for that lead.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/scrape"
)

const (
	NoWebsitePlaceholder = "no website available"
	NoProfilePlaceholder = "no profile available"
	maxProfileChars      = 4000
)

// ProfileReader returns the readable text of a professional profile page.
type ProfileReader interface {
	ReadProfile(ctx context.Context, url string) (string, error)
}

// Options configures an Enricher.
type Options struct {
	// MaxRetries is the attempt ceiling for each fetch. Default: 3.
	MaxRetries int
	// BaseDelay is the first backoff delay between attempts.
	BaseDelay time.Duration
	// Sleep replaces the backoff timer in tests.
	Sleep resilience.SleepFunc
	// Concurrency bounds EnrichAll. Default: 1.
	Concurrency int
	// Now stamps EnrichedAt. Default: time.Now.
	Now func() time.Time
}

// Enricher fetches website and profile data for leads.
type Enricher struct {
	pages    scrape.PageFetcher
	profiles ProfileReader
	opts     Options
}

// New creates an Enricher. Either collaborator may be nil, in which case the
// matching summary reports that the source is not configured.
func New(pages scrape.PageFetcher, profiles ProfileReader, opts Options) *Enricher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = resilience.DefaultMaxRetries
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Enricher{pages: pages, profiles: profiles, opts: opts}
}

// Enrich returns lead with both summaries filled in. The error is non-nil
// only when a fetcher or the parser panicked.
func (e *Enricher) Enrich(ctx context.Context, lead model.Lead) (out model.EnrichedLead, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("enrich: panic",
				zap.String("lead", lead.Email),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out, err = model.EnrichedLead{Lead: lead}, eris.Errorf("enrich: panic: %v", r)
		}
	}()
	return e.enrich(ctx, lead), nil
}

func (e *Enricher) enrich(ctx context.Context, lead model.Lead) model.EnrichedLead {
	out := model.EnrichedLead{Lead: lead}

	if strings.TrimSpace(lead.WebsiteURL) == "" {
		out.WebsiteSummary = NoWebsitePlaceholder
	} else {
		ws, err := e.website(ctx, lead.WebsiteURL)
		if err != nil {
			zap.L().Warn("enrich: website fetch failed",
				zap.String("lead", lead.Email),
				zap.String("url", lead.WebsiteURL),
				zap.Error(err),
			)
			out.WebsiteSummary = errorSummary(err)
		} else {
			out.Website = ws
			out.WebsiteSummary = scrape.FormatSummary(ws)
		}
	}

	if strings.TrimSpace(lead.ProfileURL) == "" {
		out.ProfileSummary = NoProfilePlaceholder
	} else {
		text, err := e.profile(ctx, lead.ProfileURL)
		if err != nil {
			zap.L().Warn("enrich: profile fetch failed",
				zap.String("lead", lead.Email),
				zap.String("url", lead.ProfileURL),
				zap.Error(err),
			)
			out.ProfileSummary = errorSummary(err)
		} else {
			out.ProfileSummary = text
		}
	}

	out.EnrichedAt = e.opts.Now().UTC()
	return out
}

// EnrichAll enriches leads with bounded concurrency, preserving input order.
// errs[i] is the Enrich error of leads[i].
func (e *Enricher) EnrichAll(ctx context.Context, leads []model.Lead) (out []model.EnrichedLead, errs []error) {
	out = make([]model.EnrichedLead, len(leads))
	errs = make([]error, len(leads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, lead := range leads {
		g.Go(func() error {
			out[i], errs[i] = e.Enrich(gctx, lead)
			return nil
		})
	}
	_ = g.Wait()

	return out, errs
}

func (e *Enricher) fetchOptions(op string) resilience.FetchOptions {
	return resilience.FetchOptions{
		Operation:  op,
		MaxRetries: e.opts.MaxRetries,
		BaseDelay:  e.opts.BaseDelay,
		Sleep:      e.opts.Sleep,
	}
}

func (e *Enricher) website(ctx context.Context, url string) (*model.WebsiteSummary, error) {
	if e.pages == nil {
		return nil, errNotConfigured("website fetcher")
	}
	page, err := resilience.FetchWithRetry(ctx, e.fetchOptions("website"), func(ctx context.Context) (*scrape.RawPage, error) {
		return e.pages.Fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	ws, err := scrape.ParseWebsite(page.URL, page.HTML)
	if err != nil {
		return nil, err
	}
	ws.Source = page.Source
	return ws, nil
}

func (e *Enricher) profile(ctx context.Context, url string) (string, error) {
	if e.profiles == nil {
		return "", errNotConfigured("profile reader")
	}
	text, err := resilience.FetchWithRetry(ctx, e.fetchOptions("profile"), func(ctx context.Context) (string, error) {
		return e.profiles.ReadProfile(ctx, scrape.NormalizeURL(url))
	})
	if err != nil {
		return "", err
	}
	return truncate(strings.TrimSpace(text), maxProfileChars), nil
}

func errorSummary(err error) string {
	return "error: " + err.Error()
}

type errNotConfigured string

func (e errNotConfigured) Error() string { return string(e) + " not configured" }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
