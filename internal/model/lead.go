// Package model holds the domain types shared by the outreach pipeline.
package model

import "time"

// LeadStatus is the outreach status of a lead as reported by analysis.
type LeadStatus string

const (
	LeadStatusActive    LeadStatus = "active"
	LeadStatusInactive  LeadStatus = "inactive"
	LeadStatusCompleted LeadStatus = "completed"
)

// Lead is a prospect record created from a raw ingestion record.
// Identity is the tuple (Name, Company, Email).
type Lead struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Company    string    `json:"company"`
	Position   string    `json:"position,omitempty"`
	WebsiteURL string    `json:"website_url,omitempty"`
	ProfileURL string    `json:"profile_url,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Contact holds best-effort contact details scraped from a company website.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// WebsiteSummary is the parsed shape of a company website, whichever
// fetcher produced the HTML.
type WebsiteSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	About       string   `json:"about,omitempty"`
	Services    []string `json:"services,omitempty"`
	Contact     Contact  `json:"contact"`
	Source      string   `json:"source,omitempty"`
}

// EnrichedLead is a lead plus the website and profile summaries. The summary
// strings are always set: either a rendering of the fetched data, a
// placeholder when the URL was absent, or an error string.
type EnrichedLead struct {
	Lead           Lead            `json:"lead"`
	Website        *WebsiteSummary `json:"website,omitempty"`
	WebsiteSummary string          `json:"website_summary"`
	ProfileSummary string          `json:"profile_summary"`
	EnrichedAt     time.Time       `json:"enriched_at"`
}

// LeadRecord is the row appended to the lead store once a lead completes
// analysis. Records are append-only; only Status is updated afterwards.
type LeadRecord struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Company            string     `json:"company"`
	Position           string     `json:"position,omitempty"`
	WebsiteURL         string     `json:"website_url,omitempty"`
	ProfileURL         string     `json:"profile_url,omitempty"`
	WebsiteSummary     string     `json:"website_summary"`
	ProfileSummary     string     `json:"profile_summary"`
	CommunicationStyle string     `json:"communication_style"`
	Message            string     `json:"personalized_message"`
	LeadStatus         LeadStatus `json:"lead_status"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
