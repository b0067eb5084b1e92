package monitoring

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Snapshot is a point-in-time view of the follow-up schedule.
type Snapshot struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Processed int `json:"processed"`
	Cancelled int `json:"cancelled"`
	// Overdue counts active entries with an unsent email dated before Date.
	Overdue     int       `json:"overdue"`
	Date        string    `json:"date"`
	CollectedAt time.Time `json:"collected_at"`
}

// ScheduleLister is the read side of the scheduler.
type ScheduleLister interface {
	All() []model.ScheduleEntry
}

// Collector builds snapshots from the scheduler.
type Collector struct {
	schedules ScheduleLister
	loc       *time.Location
	now       func() time.Time
}

// NewCollector creates a collector. loc decides calendar dates and should
// match the scheduler's location.
func NewCollector(schedules ScheduleLister, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.Local
	}
	return &Collector{schedules: schedules, loc: loc, now: time.Now}
}

// Collect counts entries by status.
func (c *Collector) Collect() *Snapshot {
	now := c.now()
	snap := &Snapshot{
		Date:        now.In(c.loc).Format(model.DateLayout),
		CollectedAt: now.UTC(),
	}
	for _, e := range c.schedules.All() {
		snap.Total++
		switch e.Status {
		case model.ScheduleActive:
			snap.Active++
			if overdue(e, snap.Date) {
				snap.Overdue++
			}
		case model.ScheduleProcessed:
			snap.Processed++
		case model.ScheduleCancelled:
			snap.Cancelled++
		}
	}
	return snap
}

func overdue(e model.ScheduleEntry, today string) bool {
	for _, d := range e.Dates() {
		if d >= today {
			return false
		}
		if _, sent := e.Sent[d]; !sent {
			return true
		}
	}
	return false
}
