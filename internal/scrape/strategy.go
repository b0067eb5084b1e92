package scrape

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Mode is the fetch order chosen for a URL.
type Mode int

const (
	// HTTPFirst tries the lightweight fetcher and escalates to the rendered
	// one when it fails or returns a blocked page.
	HTTPFirst Mode = iota
	// RenderedOnly goes straight to the rendered fetcher.
	RenderedOnly
)

func (m Mode) String() string {
	if m == RenderedOnly {
		return "rendered_only"
	}
	return "http_first"
}

// Strategy is a PageFetcher that picks between a lightweight and a rendered
// fetcher per URL. Either fetcher may be nil.
type Strategy struct {
	light         PageFetcher
	rendered      PageFetcher
	renderedHosts *HostMatcher
}

// NewStrategy creates a Strategy. URLs whose host matches renderedHosts skip
// the lightweight fetcher.
func NewStrategy(light, rendered PageFetcher, renderedHosts []string) *Strategy {
	return &Strategy{
		light:         light,
		rendered:      rendered,
		renderedHosts: NewHostMatcher(renderedHosts),
	}
}

// Name implements PageFetcher.
func (s *Strategy) Name() string { return "strategy" }

// ModeFor returns the fetch order used for rawURL.
func (s *Strategy) ModeFor(rawURL string) Mode {
	if s.rendered != nil && (s.light == nil || s.renderedHosts.Matches(rawURL)) {
		return RenderedOnly
	}
	return HTTPFirst
}

// Fetch implements PageFetcher.
func (s *Strategy) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	if s.light == nil && s.rendered == nil {
		return nil, eris.New("scrape: no page fetcher configured")
	}

	if s.ModeFor(rawURL) == RenderedOnly {
		return s.rendered.Fetch(ctx, rawURL)
	}

	page, err := s.light.Fetch(ctx, rawURL)
	if err == nil {
		return page, nil
	}
	if s.rendered == nil || ctx.Err() != nil {
		return nil, err
	}

	var blocked *BlockedError
	reason := "error"
	if errors.As(err, &blocked) {
		reason = string(blocked.Type)
	}
	zap.L().Info("scrape: escalating to rendered fetcher",
		zap.String("url", rawURL),
		zap.String("reason", reason),
		zap.Error(err),
	)

	page, rerr := s.rendered.Fetch(ctx, rawURL)
	if rerr != nil {
		return nil, eris.Wrapf(rerr, "scrape: rendered fallback after %v", err)
	}
	return page, nil
}
