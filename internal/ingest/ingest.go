// Package ingest pulls raw lead records from the dataset provider and maps
// them to model.Lead.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/apify"
)

// Source delivers one batch of leads in provider order.
type Source interface {
	Fetch(ctx context.Context) ([]model.Lead, error)
}

// ApifySource runs an actor, waits for it, and reads its dataset. The whole
// sequence is one retried operation; a failed run is terminal.
type ApifySource struct {
	client  apify.Client
	actorID string
	input   json.RawMessage
	retry   resilience.FetchOptions
	poll    []apify.PollOption
	now     func() time.Time
}

// ApifyOptions configures an ApifySource.
type ApifyOptions struct {
	ActorID string
	// Input is the raw JSON run input. Empty means "{}".
	Input        string
	Retry        resilience.FetchOptions
	PollInterval time.Duration
	Sleep        resilience.SleepFunc
	Now          func() time.Time
}

// NewApifySource builds a source over client.
func NewApifySource(client apify.Client, opts ApifyOptions) (*ApifySource, error) {
	input := json.RawMessage("{}")
	if strings.TrimSpace(opts.Input) != "" {
		if !json.Valid([]byte(opts.Input)) {
			return nil, eris.New("ingest: apify run input is not valid JSON")
		}
		input = json.RawMessage(opts.Input)
	}
	if opts.Retry.Operation == "" {
		opts.Retry.Operation = "ingest"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var poll []apify.PollOption
	if opts.PollInterval > 0 {
		poll = append(poll, apify.WithPollInterval(opts.PollInterval))
	}
	if opts.Sleep != nil {
		poll = append(poll, apify.WithSleep(opts.Sleep))
		if opts.Retry.Sleep == nil {
			opts.Retry.Sleep = opts.Sleep
		}
	}
	return &ApifySource{
		client:  client,
		actorID: opts.ActorID,
		input:   input,
		retry:   opts.Retry,
		poll:    poll,
		now:     opts.Now,
	}, nil
}

// Fetch implements Source.
func (s *ApifySource) Fetch(ctx context.Context) ([]model.Lead, error) {
	items, err := resilience.FetchWithRetry(ctx, s.retry, func(ctx context.Context) ([]apify.Item, error) {
		run, err := s.client.StartRun(ctx, s.actorID, s.input)
		if err != nil {
			return nil, err
		}
		zap.L().Info("ingest: run started", zap.String("run_id", run.ID), zap.String("actor", s.actorID))

		done, err := apify.PollRun(ctx, s.client, run.ID, s.poll...)
		if err != nil {
			return nil, err
		}
		datasetID := done.DefaultDatasetID
		if datasetID == "" {
			datasetID = run.DefaultDatasetID
		}
		return s.client.ListDatasetItems(ctx, datasetID)
	})
	if err != nil {
		return nil, err
	}
	return MapItems(items, s.now()), nil
}

// StaticSource returns a fixed lead list. Used by the test command.
type StaticSource struct {
	Leads []model.Lead
}

// Fetch implements Source.
func (s StaticSource) Fetch(context.Context) ([]model.Lead, error) {
	out := make([]model.Lead, len(s.Leads))
	copy(out, s.Leads)
	return out, nil
}

// FileSource reads a JSON array of raw records, the same shape the dataset
// provider exports.
type FileSource struct {
	Path string
	Now  func() time.Time
}

// Fetch implements Source.
func (s FileSource) Fetch(context.Context) ([]model.Lead, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", s.Path)
	}
	var items []apify.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s", s.Path)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return MapItems(items, now()), nil
}

// MapItems maps raw records in order. Records without an email are kept
// with an empty Email so the batch can report them as failed.
func MapItems(items []apify.Item, at time.Time) []model.Lead {
	leads := make([]model.Lead, 0, len(items))
	for i, it := range items {
		lead, ok := MapItem(it)
		if !ok {
			zap.L().Warn("ingest: record without email", zap.Int("index", i), zap.String("name", lead.Name))
		}
		lead.IngestedAt = at.UTC()
		leads = append(leads, lead)
	}
	return leads
}

// MapItem maps one raw record, accepting the field names used by the
// common people-search actors.
func MapItem(it apify.Item) (model.Lead, bool) {
	lead := model.Lead{
		Name:       first(it, "name", "full_name", "fullName"),
		Email:      first(it, "email", "work_email", "emailAddress"),
		Company:    first(it, "company", "organization_name", "companyName"),
		Position:   first(it, "position", "title", "headline", "jobTitle"),
		WebsiteURL: first(it, "website", "organization_website_url", "domain", "companyWebsite"),
		ProfileURL: first(it, "profile", "linkedin_url", "linkedinUrl", "profileUrl"),
	}
	if lead.Name == "" {
		lead.Name = strings.TrimSpace(first(it, "first_name", "firstName") + " " + first(it, "last_name", "lastName"))
	}
	if lead.Company == "" {
		if org, ok := it["organization"].(map[string]any); ok {
			lead.Company = first(apify.Item(org), "name")
			if lead.WebsiteURL == "" {
				lead.WebsiteURL = first(apify.Item(org), "website_url", "primary_domain")
			}
		}
	}
	return lead, lead.Email != ""
}

// first returns the first non-empty string value among keys.
func first(it apify.Item, keys ...string) string {
	for _, k := range keys {
		v, ok := it[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64, bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
