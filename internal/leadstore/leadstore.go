// Package leadstore records analyzed leads in the lead sheet and keeps
// their outreach status current.
package leadstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// InitialStatus is the status of a freshly appended lead.
const InitialStatus = "new"

// Store is the lead sheet collaborator.
type Store interface {
	Append(ctx context.Context, rec model.LeadRecord) error
	UpdateStatus(ctx context.Context, email, status string) error
	List(ctx context.Context) ([]model.LeadRecord, error)
}

// NewRecord builds the row appended once a lead completes analysis.
func NewRecord(el model.EnrichedLead, res model.AnalysisResult, now time.Time) model.LeadRecord {
	return model.LeadRecord{
		ID:                 uuid.NewString(),
		Name:               el.Lead.Name,
		Email:              el.Lead.Email,
		Company:            el.Lead.Company,
		Position:           el.Lead.Position,
		WebsiteURL:         el.Lead.WebsiteURL,
		ProfileURL:         el.Lead.ProfileURL,
		WebsiteSummary:     el.WebsiteSummary,
		ProfileSummary:     el.ProfileSummary,
		CommunicationStyle: res.Style,
		Message:            res.PersonalizedMessage,
		LeadStatus:         res.Status,
		Status:             InitialStatus,
		CreatedAt:          now.UTC(),
		UpdatedAt:          now.UTC(),
	}
}

// DBStore keeps lead records in the local store.
type DBStore struct {
	st store.Store
}

// NewDBStore wraps st.
func NewDBStore(st store.Store) *DBStore {
	return &DBStore{st: st}
}

func (d *DBStore) Append(ctx context.Context, rec model.LeadRecord) error {
	return d.st.AppendLead(ctx, rec)
}

func (d *DBStore) UpdateStatus(ctx context.Context, email, status string) error {
	return d.st.UpdateLeadStatus(ctx, email, status)
}

func (d *DBStore) List(ctx context.Context) ([]model.LeadRecord, error) {
	return d.st.ListLeads(ctx, store.LeadFilter{})
}
