package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
)

type memStore struct {
	entries []model.ScheduleEntry
	saves   int
	saveErr error
}

func (m *memStore) LoadSchedules(context.Context) ([]model.ScheduleEntry, error) {
	return m.entries, nil
}

func (m *memStore) SaveSchedules(_ context.Context, entries []model.ScheduleEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.entries = entries
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []outreach.Message
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg outreach.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeLeads struct {
	statuses map[string]string
}

func (f *fakeLeads) UpdateStatus(_ context.Context, email, status string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[email] = status
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advanceDays(n int) { c.t = c.t.AddDate(0, 0, n) }

var (
	t0    = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	alice = model.Lead{Name: "Alice", Email: "alice@x.com", Company: "X"}
	bob   = model.Lead{Name: "Bob", Email: "bob@y.com", Company: "Y"}
	anal  = model.AnalysisResult{Style: "formal", Approach: "roi", Personalization: model.DefaultPersonalization()}
)

type fixture struct {
	store  *memStore
	sender *fakeSender
	leads  *fakeLeads
	clock  *clock
	s      *Scheduler
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		store:  &memStore{},
		sender: &fakeSender{},
		leads:  &fakeLeads{},
		clock:  &clock{t: t0},
	}
	o := Options{Now: f.clock.now, Location: time.UTC}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := Load(context.Background(), f.store, outreach.NewRenderer(config.SenderConfig{Name: "Sam"}), f.sender, f.leads, o)
	require.NoError(t, err)
	f.s = s
	return f
}

func TestCadence(t *testing.T) {
	got := Cadence(t0, time.UTC, model.DefaultPersonalization())
	require.Len(t, got, 4)
	assert.Equal(t, model.ScheduledEmail{Kind: model.EmailFollowUp, Days: 3, Personalization: model.DefaultPersonalization()}, got["2025-03-04"])
	assert.Equal(t, 7, got["2025-03-08"].Days)
	assert.Equal(t, 14, got["2025-03-15"].Days)
	assert.Equal(t, model.EmailFinal, got["2025-03-31"].Kind)
}

func TestCadence_UsesLocationForDate(t *testing.T) {
	late := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	berlin := time.FixedZone("CET", 3600)
	got := Cadence(late, berlin, model.Personalization{})
	assert.Contains(t, got, "2025-03-05")
}

func TestAdd_RegistersAndFlushes(t *testing.T) {
	f := newFixture(t)

	added, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, f.store.saves)
	require.Len(t, f.store.entries, 1)

	e := f.store.entries[0]
	assert.Equal(t, model.ScheduleActive, e.Status)
	assert.Equal(t, []string{"2025-03-04", "2025-03-08", "2025-03-15", "2025-03-31"}, e.Dates())
	assert.Equal(t, "formal", e.Analysis.Style)
}

func TestAdd_Idempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	f.clock.advanceDays(2)
	other := anal
	other.Style = "casual"
	added, err := f.s.Add(context.Background(), alice, other)
	require.NoError(t, err)
	assert.False(t, added)

	all := f.s.All()
	require.Len(t, all, 1)
	assert.Equal(t, []string{"2025-03-04", "2025-03-08", "2025-03-15", "2025-03-31"}, all[0].Dates())
	assert.Equal(t, "formal", all[0].Analysis.Style)
	assert.Equal(t, 1, f.store.saves)
}

func TestAdd_FlushErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("disk full")

	_, err := f.s.Add(context.Background(), alice, anal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, ok := f.s.Get(alice.Email)
	assert.False(t, ok)
}

func TestAdd_SendInitial(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SendInitial = true })

	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, model.EmailInitial, f.sender.sent[0].Kind)
	assert.Equal(t, "follow-up sent: initial", f.leads.statuses[alice.Email])

	e, _ := f.s.Get(alice.Email)
	assert.Equal(t, model.ScheduleActive, e.Status)
}

func TestLoad_SeedsFromStore(t *testing.T) {
	store := &memStore{entries: []model.ScheduleEntry{{
		Email:  alice.Email,
		Lead:   alice,
		Status: model.ScheduleActive,
		Emails: Cadence(t0, time.UTC, model.Personalization{}),
	}}}
	s, err := Load(context.Background(), store, outreach.NewRenderer(config.SenderConfig{}), &fakeSender{}, nil, Options{})
	require.NoError(t, err)

	added, err := s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Len(t, s.Active(), 1)
}

func TestProcessDue_NothingDue(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	f.clock.advanceDays(1)
	res, err := f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", res.Date)
	assert.Empty(t, res.Sent)
	assert.Empty(t, f.sender.sent)
	assert.Len(t, f.s.Active(), 1)
}

func TestProcessDue_SendMarksWholeEntryProcessed(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	f.clock.advanceDays(3)
	res, err := f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Sent, 1)
	assert.Equal(t, model.EmailFollowUp, res.Sent[0].Kind)
	assert.Equal(t, []string{alice.Email}, res.Processed)

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Body, "3 days ago")
	assert.Equal(t, "follow-up sent: follow_up", f.leads.statuses[alice.Email])

	e, ok := f.s.Get(alice.Email)
	require.True(t, ok)
	assert.Equal(t, model.ScheduleProcessed, e.Status)
	assert.Contains(t, e.Sent, "2025-03-04")
	assert.Empty(t, f.s.Active())

	// Remaining dates never fire once processed.
	f.clock.advanceDays(4)
	res, err = f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Sent)
	assert.Len(t, f.sender.sent, 1)
}

func TestProcessDue_FailureLeavesActiveForRetry(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	_, err = f.s.Add(context.Background(), bob, anal)
	require.NoError(t, err)

	f.sender.fail = map[string]error{alice.Email: errors.New("550 mailbox unavailable")}
	f.clock.advanceDays(3)
	res, err := f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, alice.Email, res.Failed[0].Email)
	assert.Contains(t, res.Failed[0].Error, "550")
	assert.Equal(t, []string{bob.Email}, res.Processed)

	e, _ := f.s.Get(alice.Email)
	assert.Equal(t, model.ScheduleActive, e.Status)
	_, stillUnset := f.leads.statuses[alice.Email]
	assert.False(t, stillUnset)

	// Next tick on the same day retries.
	f.sender.fail = nil
	res, err = f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Sent, 1)
	assert.Equal(t, alice.Email, res.Sent[0].Email)
}

func TestProcessDue_UnknownKindIsFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	f.s.mu.Lock()
	f.s.entries[alice.Email].Emails["2025-03-02"] = model.ScheduledEmail{Kind: "teaser"}
	f.s.mu.Unlock()

	f.clock.advanceDays(1)
	res, err := f.s.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Error, `unknown email kind "teaser"`)
	assert.Empty(t, f.sender.sent)
}

type blockingSender struct {
	started chan string
	release chan struct{}
}

func (b *blockingSender) Send(_ context.Context, msg outreach.Message) error {
	b.started <- msg.To
	<-b.release
	return nil
}

func TestProcessDue_SendDoesNotBlockReadsOrCancel(t *testing.T) {
	store := &memStore{}
	clk := &clock{t: t0}
	bs := &blockingSender{started: make(chan string, 1), release: make(chan struct{})}
	s, err := Load(context.Background(), store, outreach.NewRenderer(config.SenderConfig{Name: "Sam"}), bs, nil,
		Options{Now: clk.now, Location: time.UTC})
	require.NoError(t, err)
	_, err = s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	_, err = s.Add(context.Background(), bob, anal)
	require.NoError(t, err)

	clk.advanceDays(3)
	type tick struct {
		res TickResult
		err error
	}
	done := make(chan tick, 1)
	go func() {
		res, err := s.ProcessDue(context.Background())
		done <- tick{res, err}
	}()

	require.Equal(t, alice.Email, <-bs.started)

	reads := make(chan error, 1)
	go func() {
		_ = s.All()
		_, _ = s.Get(alice.Email)
		reads <- s.Cancel(context.Background(), bob.Email)
	}()
	select {
	case err := <-reads:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reads blocked while a send was in flight")
	}
	close(bs.release)

	got := <-done
	require.NoError(t, got.err)
	require.Len(t, got.res.Sent, 1)
	assert.Equal(t, alice.Email, got.res.Sent[0].Email)
	assert.Equal(t, []string{alice.Email}, got.res.Processed)

	e, _ := s.Get(bob.Email)
	assert.Equal(t, model.ScheduleCancelled, e.Status)
	assert.Empty(t, e.Sent)
	e, _ = s.Get(alice.Email)
	assert.Equal(t, model.ScheduleProcessed, e.Status)
}

func TestProcessDue_CancelDuringSendKeepsCancelled(t *testing.T) {
	clk := &clock{t: t0}
	bs := &blockingSender{started: make(chan string, 1), release: make(chan struct{})}
	s, err := Load(context.Background(), &memStore{}, outreach.NewRenderer(config.SenderConfig{Name: "Sam"}), bs, nil,
		Options{Now: clk.now, Location: time.UTC})
	require.NoError(t, err)
	_, err = s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	clk.advanceDays(3)
	done := make(chan TickResult, 1)
	go func() {
		res, _ := s.ProcessDue(context.Background())
		done <- res
	}()

	<-bs.started
	require.NoError(t, s.Cancel(context.Background(), alice.Email))
	close(bs.release)

	res := <-done
	require.Len(t, res.Sent, 1)
	assert.Empty(t, res.Processed)
	e, _ := s.Get(alice.Email)
	assert.Equal(t, model.ScheduleCancelled, e.Status)
	assert.Contains(t, e.Sent, "2025-03-04")
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	require.NoError(t, f.s.Cancel(context.Background(), alice.Email))
	assert.Equal(t, model.ScheduleCancelled, f.store.entries[0].Status)

	for day := 0; day < 31; day++ {
		f.clock.advanceDays(1)
		_, err := f.s.ProcessDue(context.Background())
		require.NoError(t, err)
	}
	assert.Empty(t, f.sender.sent)
}

func TestCancel_ProcessedEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)
	f.clock.advanceDays(3)
	_, err = f.s.ProcessDue(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.s.Cancel(context.Background(), alice.Email))
	e, _ := f.s.Get(alice.Email)
	assert.Equal(t, model.ScheduleCancelled, e.Status)
}

func TestCancel_Unknown(t *testing.T) {
	f := newFixture(t)
	err := f.s.Cancel(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalysisByEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	got, ok := f.s.AnalysisByEmail(alice.Email)
	require.True(t, ok)
	assert.Equal(t, "formal", got.Style)

	_, ok = f.s.AnalysisByEmail("nobody@x.com")
	assert.False(t, ok)
}

func TestGet_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(context.Background(), alice, anal)
	require.NoError(t, err)

	e, _ := f.s.Get(alice.Email)
	delete(e.Emails, "2025-03-04")

	again, _ := f.s.Get(alice.Email)
	assert.Len(t, again.Emails, 4)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "follow-up sent: final", StatusText(model.EmailFinal))
}
