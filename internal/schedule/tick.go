package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Dispatch is one attempted send within a tick.
type Dispatch struct {
	Email string          `json:"email"`
	Date  string          `json:"date"`
	Kind  model.EmailKind `json:"kind"`
	Error string          `json:"error,omitempty"`
}

// TickResult summarizes one dispatch tick.
type TickResult struct {
	Date      string     `json:"date"`
	Sent      []Dispatch `json:"sent"`
	Failed    []Dispatch `json:"failed"`
	Processed []string   `json:"processed"`
}

// dueSend is a send selected for a tick, copied out of the entry map.
type dueSend struct {
	entry model.ScheduleEntry
	email model.ScheduledEmail
}

// ProcessDue sends every email dated today for active entries. An entry
// with at least one successful send in this tick becomes processed as a
// whole, even if later dates remain. Failed sends leave the entry active
// for the next tick. The returned error is only for the final flush.
//
// Ticks are serialized. Sends run without holding the entry lock, so reads
// and Cancel proceed during a tick; an entry cancelled before its send is
// skipped, one cancelled during its send keeps the cancelled status.
func (s *Scheduler) ProcessDue(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.opts.Now()
	res := TickResult{Date: now.In(s.opts.Location).Format(model.DateLayout)}

	for _, d := range s.collectDue(res.Date) {
		if ctx.Err() != nil {
			break
		}
		if !s.isActive(d.entry.Email) {
			continue
		}

		disp := Dispatch{Email: d.entry.Email, Date: res.Date, Kind: d.email.Kind}
		if err := s.send(ctx, &d.entry, d.email); err != nil {
			disp.Error = err.Error()
			res.Failed = append(res.Failed, disp)
			zap.L().Error("schedule: dispatch failed",
				zap.String("lead", d.entry.Email),
				zap.String("kind", string(d.email.Kind)),
				zap.Error(err),
			)
			continue
		}
		res.Sent = append(res.Sent, disp)
		s.notify(ctx, d.entry.Email, d.email.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range res.Sent {
		e, ok := s.entries[d.Email]
		if !ok {
			continue
		}
		if e.Sent == nil {
			e.Sent = map[string]time.Time{}
		}
		e.Sent[res.Date] = now.UTC()
		if e.Status == model.ScheduleActive {
			e.Status = model.ScheduleProcessed
			e.UpdatedAt = now.UTC()
			res.Processed = append(res.Processed, e.Email)
		}
	}

	// Sends already happened; persist them even if ctx was cancelled mid-tick.
	if err := s.flush(context.WithoutCancel(ctx)); err != nil {
		return res, err
	}
	zap.L().Info("schedule: tick complete",
		zap.String("date", res.Date),
		zap.Int("sent", len(res.Sent)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// collectDue copies the active entries with an unsent email dated date.
func (s *Scheduler) collectDue(date string) []dueSend {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []dueSend
	for _, k := range s.order {
		e := s.entries[k]
		if e.Status != model.ScheduleActive {
			continue
		}
		email, ok := e.Emails[date]
		if !ok {
			continue
		}
		if _, done := e.Sent[date]; done {
			continue
		}
		due = append(due, dueSend{entry: clone(e), email: email})
	}
	return due
}

func (s *Scheduler) isActive(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[email]
	return ok && e.Status == model.ScheduleActive
}

func (s *Scheduler) send(ctx context.Context, e *model.ScheduleEntry, email model.ScheduledEmail) error {
	switch email.Kind {
	case model.EmailFollowUp, model.EmailFinal:
	default:
		return eris.Errorf("schedule: unknown email kind %q", email.Kind)
	}
	msg, err := s.renderer.Render(email.Kind, e.Lead, email.Personalization, email.Days)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg)
}
