package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// File names inside a JSONFileStore directory.
const (
	ProcessedFile = "processed_leads.json"
	ScheduleFile  = "scheduled_emails.json"
	LeadsFile     = "leads.json"
)

// JSONFileStore implements Store as flat JSON files in one directory:
// a list of processed keys, an email-keyed schedule map and a lead list.
// Every write replaces the file via rename.
type JSONFileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewJSONFile returns a store rooted at dir.
func NewJSONFile(dir string) *JSONFileStore {
	return &JSONFileStore{dir: dir, now: time.Now}
}

// Migrate creates the directory and seeds empty collections.
func (s *JSONFileStore) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "jsonfile: create dir")
	}
	seeds := map[string]any{
		ProcessedFile: []string{},
		ScheduleFile:  map[string]model.ScheduleEntry{},
		LeadsFile:     []model.LeadRecord{},
	}
	for name, empty := range seeds {
		if _, err := os.Stat(s.path(name)); err == nil {
			continue
		}
		if err := s.write(name, empty); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONFileStore) Close() error { return nil }

func (s *JSONFileStore) LoadProcessed(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	if err := s.read(ProcessedFile, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *JSONFileStore) SaveProcessed(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keys == nil {
		keys = []string{}
	}
	return s.write(ProcessedFile, keys)
}

func (s *JSONFileStore) LoadSchedules(_ context.Context) ([]model.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]model.ScheduleEntry{}
	if err := s.read(ScheduleFile, &m); err != nil {
		return nil, err
	}
	entries := make([]model.ScheduleEntry, 0, len(m))
	for email, e := range m {
		if e.Email == "" {
			e.Email = email
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *JSONFileStore) SaveSchedules(_ context.Context, entries []model.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]model.ScheduleEntry, len(entries))
	for _, e := range entries {
		m[e.Email] = e
	}
	return s.write(ScheduleFile, m)
}

func (s *JSONFileStore) AppendLead(_ context.Context, rec model.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leads []model.LeadRecord
	if err := s.read(LeadsFile, &leads); err != nil {
		return err
	}
	leads = append(leads, rec)
	return s.write(LeadsFile, leads)
}

func (s *JSONFileStore) UpdateLeadStatus(_ context.Context, email, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leads []model.LeadRecord
	if err := s.read(LeadsFile, &leads); err != nil {
		return err
	}
	found := false
	for i := range leads {
		if leads[i].Email == email {
			leads[i].Status = status
			leads[i].UpdatedAt = s.now().UTC()
			found = true
		}
	}
	if !found {
		return eris.Wrapf(ErrNotFound, "jsonfile: lead %s", email)
	}
	return s.write(LeadsFile, leads)
}

func (s *JSONFileStore) ListLeads(_ context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leads []model.LeadRecord
	if err := s.read(LeadsFile, &leads); err != nil {
		return nil, err
	}
	limit := limitOrAll(filter.Limit)
	out := make([]model.LeadRecord, 0, len(leads))
	for _, l := range leads {
		if filter.Email != "" && l.Email != filter.Email {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *JSONFileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// read decodes a file into v. A missing file leaves v untouched.
func (s *JSONFileStore) read(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "jsonfile: read %s", name)
	}
	if len(data) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(data, v), "jsonfile: decode %s", name)
}

func (s *JSONFileStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "jsonfile: encode %s", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "jsonfile: create dir")
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "jsonfile: temp file for %s", name)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "jsonfile: write %s", name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "jsonfile: close %s", name)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), s.path(name)), "jsonfile: replace %s", name)
}
