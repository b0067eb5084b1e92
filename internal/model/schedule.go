package model

import (
	"sort"
	"time"
)

// EmailKind identifies an outreach template.
type EmailKind string

const (
	EmailInitial  EmailKind = "initial"
	EmailFollowUp EmailKind = "follow_up"
	EmailFinal    EmailKind = "final"
)

// ScheduleStatus is the lifecycle state of a ScheduleEntry.
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "active"
	ScheduleProcessed ScheduleStatus = "processed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleProcessed || s == ScheduleCancelled
}

// DateLayout is the calendar-date key format of a schedule.
const DateLayout = "2006-01-02"

// ScheduledEmail is one planned send within a ScheduleEntry.
type ScheduledEmail struct {
	Kind            EmailKind       `json:"type"`
	Days            int             `json:"days,omitempty"`
	Personalization Personalization `json:"personalization"`
}

// ScheduleEntry is the outreach plan for one lead email.
type ScheduleEntry struct {
	Email     string                    `json:"email"`
	Lead      Lead                      `json:"lead_data"`
	Analysis  AnalysisResult            `json:"analysis"`
	Emails    map[string]ScheduledEmail `json:"scheduled_emails"`
	Sent      map[string]time.Time      `json:"sent,omitempty"`
	Status    ScheduleStatus            `json:"status"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Dates returns the entry's schedule dates in ascending order.
func (e ScheduleEntry) Dates() []string {
	dates := make([]string, 0, len(e.Emails))
	for d := range e.Emails {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
