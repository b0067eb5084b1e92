package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps full rewrites serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS processed_leads (
	key      TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	email      TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	entry      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	record     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadProcessed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM processed_leads ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load processed")
	}
	defer rows.Close() //nolint:errcheck

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processed key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: load processed iterate")
}

func (s *SQLiteStore) SaveProcessed(ctx context.Context, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save processed")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_leads`); err != nil {
		return eris.Wrap(err, "sqlite: clear processed")
	}
	for i, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processed_leads (key, position) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, k, i,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert processed key")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit processed")
}

func (s *SQLiteStore) LoadSchedules(ctx context.Context) ([]model.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM schedules`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load schedules")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.ScheduleEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan schedule")
		}
		var e model.ScheduleEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal schedule")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load schedules iterate")
	}
	sortEntries(entries)
	return entries, nil
}

func (s *SQLiteStore) SaveSchedules(ctx context.Context, entries []model.ScheduleEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save schedules")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules`); err != nil {
		return eris.Wrap(err, "sqlite: clear schedules")
	}
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal schedule %s", e.Email)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (email, status, entry, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			e.Email, string(e.Status), string(raw), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert schedule %s", e.Email)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit schedules")
}

func (s *SQLiteStore) AppendLead(ctx context.Context, rec model.LeadRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lead")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, email, status, record, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Email, rec.Status, string(raw), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert lead %s", rec.Email)
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, email, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE email = ?`,
		status, formatTime(s.now().UTC()), email,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: lead %s", email)
	}
	return nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT record, status, updated_at FROM leads`
	var args []any
	if filter.Email != "" {
		query += ` WHERE email = ?`
		args = append(args, filter.Email)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limitOrAll(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LeadRecord
	for rows.Next() {
		var raw, status, updated string
		if err := rows.Scan(&raw, &status, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		rec, err := decodeLead([]byte(raw), status, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeLead unmarshals a stored record and overlays the mutable columns.
func decodeLead(raw []byte, status, updated string) (model.LeadRecord, error) {
	var rec model.LeadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, eris.Wrap(err, "store: unmarshal lead")
	}
	rec.Status = status
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}
