// Package analysis turns an enriched lead into a communication-style
// assessment and personalization strings using Claude.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// FallbackResult is returned when the model response cannot be parsed.
func FallbackResult() model.AnalysisResult {
	return model.AnalysisResult{
		Style:           "unknown",
		Tone:            "neutral",
		Interests:       []string{},
		PainPoints:      []string{},
		Approach:        "standard",
		Status:          model.LeadStatusActive,
		Personalization: model.DefaultPersonalization(),
		Fallback:        true,
	}
}

// Options configures an Analyzer.
type Options struct {
	Model     string
	MaxTokens int64
	Sender    config.SenderConfig
	Retry     resilience.RetryConfig
	// Key derives the cache key; defaults to the raw identity key.
	Key func(model.Lead) string
}

// Analyzer calls the model once per distinct lead identity and caches the
// result for the life of the process.
type Analyzer struct {
	client anthropic.Client
	opts   Options

	mu    sync.Mutex
	cache map[string]model.AnalysisResult
}

// New creates an Analyzer.
func New(client anthropic.Client, opts Options) *Analyzer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Key == nil {
		opts.Key = model.Lead.IdentityKey
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("anthropic", "analyze")
	}
	return &Analyzer{
		client: client,
		opts:   opts,
		cache:  make(map[string]model.AnalysisResult),
	}
}

// Analyze returns the assessment for el. Model transport errors are
// returned; a response that does not parse yields FallbackResult.
func (a *Analyzer) Analyze(ctx context.Context, el model.EnrichedLead) (model.AnalysisResult, error) {
	key := a.opts.Key(el.Lead)
	if res, ok := a.cached(key); ok {
		zap.L().Debug("analysis: cache hit", zap.String("lead", el.Lead.Email))
		return res, nil
	}

	userMsg, err := buildUserMessage(el, a.opts.Sender)
	if err != nil {
		return model.AnalysisResult{}, eris.Wrap(err, "analysis: build request")
	}
	req := anthropic.MessageRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: userMsg}},
	}

	resp, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.AnalysisResult{}, eris.Wrapf(err, "analysis: %s", el.Lead.Email)
	}
	resp.Usage.LogCost(a.opts.Model, "analysis")

	res, perr := Parse(resp.Text())
	if perr != nil {
		zap.L().Warn("analysis: unparseable response, using fallback",
			zap.String("lead", el.Lead.Email),
			zap.Error(perr),
		)
		res = FallbackResult()
	}

	a.mu.Lock()
	a.cache[key] = res
	a.mu.Unlock()
	return res, nil
}

// CacheLen returns the number of cached results.
func (a *Analyzer) CacheLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cache)
}

func (a *Analyzer) cached(key string) (model.AnalysisResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.cache[key]
	return res, ok
}

// Parse decodes a model response into an AnalysisResult. A response that
// is not a JSON object, or that lacks style or approach, is an error.
// Missing lists become empty and missing personalization strings fall back
// to the defaults.
func Parse(text string) (model.AnalysisResult, error) {
	var res model.AnalysisResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return res, eris.Wrap(err, "analysis: decode response")
	}
	if strings.TrimSpace(res.Style) == "" || strings.TrimSpace(res.Approach) == "" {
		return res, eris.New("analysis: response missing style or approach")
	}

	if res.Tone == "" {
		res.Tone = "neutral"
	}
	if res.Interests == nil {
		res.Interests = []string{}
	}
	if res.PainPoints == nil {
		res.PainPoints = []string{}
	}
	switch res.Status {
	case model.LeadStatusActive, model.LeadStatusInactive, model.LeadStatusCompleted:
	default:
		res.Status = model.LeadStatusActive
	}

	def := model.DefaultPersonalization()
	p := &res.Personalization
	if p.PositiveObservation == "" {
		p.PositiveObservation = def.PositiveObservation
	}
	if p.ValueProposition == "" {
		p.ValueProposition = def.ValueProposition
	}
	if p.FollowUp == "" {
		p.FollowUp = def.FollowUp
	}
	if p.FinalOffer == "" {
		p.FinalOffer = def.FinalOffer
	}
	res.Fallback = false
	return res, nil
}
