// Package schedule owns the follow-up state machine: one entry per lead
// email, each carrying dated sends and an active, processed or cancelled
// status. Every mutation is followed by a full flush of the schedule map.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
)

// ErrNotFound is returned by Cancel for an email with no entry.
var ErrNotFound = errors.New("schedule: no entry for email")

// Offsets of the follow_up sends, in days after registration.
var FollowUpDays = []int{3, 7, 14}

// FinalDay is the offset of the final send.
const FinalDay = 30

// Persister is the slice of the store the scheduler needs.
type Persister interface {
	LoadSchedules(ctx context.Context) ([]model.ScheduleEntry, error)
	SaveSchedules(ctx context.Context, entries []model.ScheduleEntry) error
}

// StatusUpdater receives the lead status after a successful send.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, email, status string) error
}

// Options configures a Scheduler.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location decides calendar dates. Defaults to time.Local.
	Location *time.Location
	// SendInitial sends the initial email at registration time.
	SendInitial bool
}

// Scheduler is the follow-up state machine. Safe for concurrent use; mu
// guards the entries and is never held across a send.
type Scheduler struct {
	store    Persister
	renderer *outreach.Renderer
	sender   outreach.Sender
	leads    StatusUpdater
	opts     Options

	tickMu  sync.Mutex
	mu      sync.Mutex
	entries map[string]*model.ScheduleEntry
	order   []string
}

// Load builds a scheduler seeded from the persisted schedule. leads may be nil.
func Load(ctx context.Context, store Persister, renderer *outreach.Renderer, sender outreach.Sender, leads StatusUpdater, opts Options) (*Scheduler, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Scheduler{
		store:    store,
		renderer: renderer,
		sender:   sender,
		leads:    leads,
		opts:     opts,
		entries:  make(map[string]*model.ScheduleEntry),
	}

	loaded, err := store.LoadSchedules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: load")
	}
	for i := range loaded {
		e := loaded[i]
		if _, dup := s.entries[e.Email]; dup {
			continue
		}
		s.entries[e.Email] = &e
		s.order = append(s.order, e.Email)
	}
	zap.L().Debug("schedule: loaded", zap.Int("entries", len(s.order)))
	return s, nil
}

// Cadence returns the dated sends for a registration at t: follow_up at
// +3, +7 and +14 days and final at +30 days, keyed by calendar date in loc.
func Cadence(t time.Time, loc *time.Location, p model.Personalization) map[string]model.ScheduledEmail {
	day := t.In(loc)
	emails := make(map[string]model.ScheduledEmail, len(FollowUpDays)+1)
	for _, d := range FollowUpDays {
		emails[day.AddDate(0, 0, d).Format(model.DateLayout)] = model.ScheduledEmail{
			Kind:            model.EmailFollowUp,
			Days:            d,
			Personalization: p,
		}
	}
	emails[day.AddDate(0, 0, FinalDay).Format(model.DateLayout)] = model.ScheduledEmail{
		Kind:            model.EmailFinal,
		Personalization: p,
	}
	return emails
}

// Add registers lead. It is a no-op returning false when an entry for the
// email already exists, whatever its status.
func (s *Scheduler) Add(ctx context.Context, lead model.Lead, analysis model.AnalysisResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[lead.Email]; ok {
		zap.L().Debug("schedule: already registered", zap.String("lead", lead.Email))
		return false, nil
	}

	now := s.opts.Now()
	e := &model.ScheduleEntry{
		Email:     lead.Email,
		Lead:      lead,
		Analysis:  analysis,
		Emails:    Cadence(now, s.opts.Location, analysis.Personalization),
		Sent:      map[string]time.Time{},
		Status:    model.ScheduleActive,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	s.entries[lead.Email] = e
	s.order = append(s.order, lead.Email)

	if err := s.flush(ctx); err != nil {
		delete(s.entries, lead.Email)
		s.order = s.order[:len(s.order)-1]
		return false, err
	}
	zap.L().Info("schedule: registered",
		zap.String("lead", lead.Email),
		zap.Strings("dates", e.Dates()),
	)

	if s.opts.SendInitial {
		s.sendInitial(ctx, e)
	}
	return true, nil
}

// sendInitial sends the initial email. A failure is logged only; the
// follow-up cadence stands either way.
func (s *Scheduler) sendInitial(ctx context.Context, e *model.ScheduleEntry) {
	log := zap.L().With(zap.String("lead", e.Email))
	msg, err := s.renderer.Render(model.EmailInitial, e.Lead, e.Analysis.Personalization, 0)
	if err == nil {
		err = s.sender.Send(ctx, msg)
	}
	if err != nil {
		log.Error("schedule: initial email failed", zap.Error(err))
		return
	}
	s.notify(ctx, e.Email, model.EmailInitial)
	log.Info("schedule: initial email sent")
}

// Cancel moves the entry for email to cancelled regardless of its status.
func (s *Scheduler) Cancel(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok {
		return ErrNotFound
	}
	prevStatus, prevUpdated := e.Status, e.UpdatedAt
	e.Status = model.ScheduleCancelled
	e.UpdatedAt = s.opts.Now().UTC()
	if err := s.flush(ctx); err != nil {
		e.Status, e.UpdatedAt = prevStatus, prevUpdated
		return err
	}
	zap.L().Info("schedule: cancelled", zap.String("lead", email), zap.String("was", string(prevStatus)))
	return nil
}

// Active returns copies of all active entries in registration order.
func (s *Scheduler) Active() []model.ScheduleEntry {
	return s.filter(func(e *model.ScheduleEntry) bool { return e.Status == model.ScheduleActive })
}

// All returns copies of every entry in registration order.
func (s *Scheduler) All() []model.ScheduleEntry {
	return s.filter(func(*model.ScheduleEntry) bool { return true })
}

// Get returns a copy of the entry for email.
func (s *Scheduler) Get(email string) (model.ScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[email]
	if !ok {
		return model.ScheduleEntry{}, false
	}
	return clone(e), true
}

// AnalysisByEmail scans the entries for the analysis stored with email.
func (s *Scheduler) AnalysisByEmail(email string) (model.AnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.order {
		if e := s.entries[k]; e.Lead.Email == email {
			return e.Analysis, true
		}
	}
	return model.AnalysisResult{}, false
}

func (s *Scheduler) filter(keep func(*model.ScheduleEntry) bool) []model.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduleEntry, 0, len(s.order))
	for _, k := range s.order {
		if e := s.entries[k]; keep(e) {
			out = append(out, clone(e))
		}
	}
	return out
}

// flush writes the full map. Callers hold mu.
func (s *Scheduler) flush(ctx context.Context) error {
	all := make([]model.ScheduleEntry, 0, len(s.order))
	for _, k := range s.order {
		all = append(all, *s.entries[k])
	}
	return eris.Wrap(s.store.SaveSchedules(ctx, all), "schedule: flush")
}

func (s *Scheduler) notify(ctx context.Context, email string, kind model.EmailKind) {
	if s.leads == nil {
		return
	}
	if err := s.leads.UpdateStatus(ctx, email, StatusText(kind)); err != nil {
		zap.L().Warn("schedule: lead status update failed",
			zap.String("lead", email),
			zap.Error(err),
		)
	}
}

// StatusText is the lead store status recorded after a send.
func StatusText(kind model.EmailKind) string {
	return "follow-up sent: " + string(kind)
}

func clone(e *model.ScheduleEntry) model.ScheduleEntry {
	c := *e
	c.Emails = make(map[string]model.ScheduledEmail, len(e.Emails))
	for k, v := range e.Emails {
		c.Emails[k] = v
	}
	c.Sent = make(map[string]time.Time, len(e.Sent))
	for k, v := range e.Sent {
		c.Sent[k] = v
	}
	return c
}
