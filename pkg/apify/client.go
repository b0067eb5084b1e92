// Package apify is a minimal client for the Apify actor API: start an actor
// run, read its status, and list the items of its default dataset.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.apify.com/v2"

// Run statuses reported by the API.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborting  = "ABORTING"
	StatusAborted   = "ABORTED"
	StatusTimingOut = "TIMING-OUT"
	StatusTimedOut  = "TIMED-OUT"
)

// Client defines the actor run operations.
type Client interface {
	StartRun(ctx context.Context, actorID string, input json.RawMessage) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListDatasetItems(ctx context.Context, datasetID string) ([]Item, error)
}

// Run is an actor run.
type Run struct {
	ID               string    `json:"id"`
	ActID            string    `json:"actId"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
}

// Item is one raw dataset record.
type Item map[string]any

type runEnvelope struct {
	Data Run `json:"data"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartRun(ctx context.Context, actorID string, input json.RawMessage) (*Run, error) {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	// Actor IDs of the form user/name are addressed as user~name.
	path := "/acts/" + url.PathEscape(normalizeActorID(actorID)) + "/runs"

	var env runEnvelope
	if err := c.do(ctx, http.MethodPost, path, input, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: start run of %s", actorID)
	}
	return &env.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var env runEnvelope
	if err := c.do(ctx, http.MethodGet, "/actor-runs/"+url.PathEscape(runID), nil, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: get run %s", runID)
	}
	return &env.Data, nil
}

func (c *httpClient) ListDatasetItems(ctx context.Context, datasetID string) ([]Item, error) {
	var items []Item
	path := "/datasets/" + url.PathEscape(datasetID) + "/items?format=json&clean=true"
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, eris.Wrapf(err, "apify: list dataset %s", datasetID)
	}
	return items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func normalizeActorID(id string) string {
	return strings.ReplaceAll(id, "/", "~")
}
