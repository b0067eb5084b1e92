// Package store persists the dedup ledger, the follow-up schedule and the
// lead records. The ledger and the schedule are small collections that are
// read fully at startup and rewritten fully on every mutation.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("store: not found")

// LeadFilter narrows ListLeads.
type LeadFilter struct {
	Email string `json:"email,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Dedup ledger
	LoadProcessed(ctx context.Context) ([]string, error)
	SaveProcessed(ctx context.Context, keys []string) error

	// Follow-up schedule
	LoadSchedules(ctx context.Context) ([]model.ScheduleEntry, error)
	SaveSchedules(ctx context.Context, entries []model.ScheduleEntry) error

	// Lead records
	AppendLead(ctx context.Context, rec model.LeadRecord) error
	UpdateLeadStatus(ctx context.Context, email, status string) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// sortEntries orders entries by creation time, then email.
func sortEntries(entries []model.ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Email < entries[j].Email
	})
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
