package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

const maxBodyBytes = 2 << 20

// HTTPOptions configures the lightweight fetcher.
type HTTPOptions struct {
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
}

// AdaptiveLimiter wraps a rate.Limiter that speeds up on success and halves
// its rate on 429, never leaving [initial/4, initial*2].
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher fetches pages with a plain GET. It is cheap but sees only the
// server-rendered HTML, so blocked and script-only pages are reported as
// *BlockedError for the caller to escalate.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	rps       float64

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; outreach-cli/1.0)"
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: opts.UserAgent,
		rps:       opts.RequestsPerSec,
		limiters:  make(map[string]*AdaptiveLimiter),
	}
}

// Name implements PageFetcher.
func (f *HTTPFetcher) Name() string { return "http" }

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.rps), 1)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch implements PageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	target := NormalizeURL(rawURL)
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("http: invalid url %q", rawURL)
	}

	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: fetch %s", target)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "http: read body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
		zap.L().Warn("http: rate limited, slowing down",
			zap.String("host", u.Host),
			zap.Float64("new_rate", float64(lim.Limit())),
		)
		return nil, resilience.NewTransientError(eris.Errorf("http: %s returned 429", target), resp.StatusCode)
	}

	if blocked, bt := DetectBlock(resp.StatusCode, resp.Header, body); blocked {
		return nil, &BlockedError{URL: target, Type: bt}
	}

	if resp.StatusCode >= 400 {
		err := eris.Errorf("http: %s returned status %d", target, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	lim.OnSuccess()
	return &RawPage{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       string(body),
		Source:     f.Name(),
	}, nil
}
