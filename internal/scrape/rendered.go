package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/firecrawl"
)

// RenderedFetcher fetches pages through Firecrawl, which runs the page in a
// headless browser. A circuit breaker stops calls after repeated failures.
type RenderedFetcher struct {
	client  firecrawl.Client
	breaker *resilience.CircuitBreaker
	waitMs  int
}

// NewRenderedFetcher creates a RenderedFetcher. breaker may be nil.
func NewRenderedFetcher(client firecrawl.Client, breaker *resilience.CircuitBreaker) *RenderedFetcher {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &RenderedFetcher{client: client, breaker: breaker, waitMs: 1500}
}

// Name implements PageFetcher.
func (f *RenderedFetcher) Name() string { return "rendered" }

// Fetch implements PageFetcher.
func (f *RenderedFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	target := NormalizeURL(rawURL)
	resp, err := resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:     target,
			Formats: []string{"rawHtml"},
			WaitFor: f.waitMs,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "rendered: fetch %s", target)
	}

	html := resp.Data.RawHTML
	if html == "" {
		html = resp.Data.HTML
	}
	if html == "" {
		return nil, eris.Errorf("rendered: %s returned no html", target)
	}

	pageURL := resp.Data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = target
	}
	return &RawPage{
		URL:        pageURL,
		StatusCode: resp.Data.Metadata.StatusCode,
		HTML:       html,
		Source:     f.Name(),
	}, nil
}
