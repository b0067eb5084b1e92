package leadstore

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// Property names of the lead database. The database is created by hand
// with these columns; Name is the title column.
const (
	PropName    = "Name"
	PropEmail   = "Email"
	PropCompany = "Company"
	PropWebsite = "Website"
	PropProfile = "Profile"
	PropStyle   = "Style"
	PropMessage = "Message"
	PropStatus  = "Status"
)

// NotionStore keeps lead records as pages of a Notion database.
type NotionStore struct {
	client notion.Client
	dbID   string
}

// NewNotionStore returns a store writing into database dbID.
func NewNotionStore(client notion.Client, dbID string) *NotionStore {
	return &NotionStore{client: client, dbID: dbID}
}

func (n *NotionStore) Append(ctx context.Context, rec model.LeadRecord) error {
	props := notionapi.Properties{
		PropName:    notion.Title(rec.Name),
		PropEmail:   notion.Text(rec.Email),
		PropCompany: notion.Text(rec.Company),
		PropStyle:   notion.Text(rec.CommunicationStyle),
		PropMessage: notion.Text(rec.Message),
		PropStatus:  notion.Text(rec.Status),
	}
	if rec.WebsiteURL != "" {
		props[PropWebsite] = notion.URL(rec.WebsiteURL)
	}
	if rec.ProfileURL != "" {
		props[PropProfile] = notion.URL(rec.ProfileURL)
	}

	_, err := n.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.dbID),
		},
		Properties: props,
	})
	return eris.Wrapf(err, "leadstore: append %s", rec.Email)
}

// UpdateStatus sets Status on every page whose Email matches.
func (n *NotionStore) UpdateStatus(ctx context.Context, email, status string) error {
	pages, err := notion.QueryByText(ctx, n.client, n.dbID, PropEmail, email)
	if err != nil {
		return eris.Wrapf(err, "leadstore: find %s", email)
	}
	if len(pages) == 0 {
		return eris.Errorf("leadstore: lead %s not found", email)
	}
	for _, p := range pages {
		_, err := n.client.UpdatePage(ctx, string(p.ID), &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{PropStatus: notion.Text(status)},
		})
		if err != nil {
			return eris.Wrapf(err, "leadstore: update %s", email)
		}
	}
	zap.L().Debug("leadstore: status updated", zap.String("lead", email), zap.String("status", status))
	return nil
}

func (n *NotionStore) List(ctx context.Context) ([]model.LeadRecord, error) {
	pages, err := notion.QueryAll(ctx, n.client, n.dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "leadstore: list")
	}
	out := make([]model.LeadRecord, 0, len(pages))
	for _, p := range pages {
		out = append(out, recordFromPage(p))
	}
	return out, nil
}

func recordFromPage(p notionapi.Page) model.LeadRecord {
	text := func(name string) string {
		if prop, ok := p.Properties[name]; ok {
			return notion.PlainText(prop)
		}
		return ""
	}
	return model.LeadRecord{
		ID:                 string(p.ID),
		Name:               text(PropName),
		Email:              text(PropEmail),
		Company:            text(PropCompany),
		WebsiteURL:         text(PropWebsite),
		ProfileURL:         text(PropProfile),
		CommunicationStyle: text(PropStyle),
		Message:            text(PropMessage),
		Status:             text(PropStatus),
		CreatedAt:          p.CreatedTime.UTC(),
		UpdatedAt:          p.LastEditedTime.UTC(),
	}
}
