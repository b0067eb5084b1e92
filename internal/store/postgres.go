package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var preparedStatements = map[string]string{
	"insert_lead":        `INSERT INTO leads (id, email, status, record, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_lead_status": `UPDATE leads SET status = $1, updated_at = $2 WHERE email = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS processed_leads (
	key      TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	email      TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	entry      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadProcessed(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM processed_leads ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load processed")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processed key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: load processed iterate")
}

func (s *PostgresStore) SaveProcessed(ctx context.Context, keys []string) error {
	rows := make([][]any, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, []any{k, len(rows)})
	}
	_, err := db.ReplaceAll(ctx, s.pool, "processed_leads", []string{"key", "position"}, rows)
	return eris.Wrap(err, "postgres: save processed")
}

func (s *PostgresStore) LoadSchedules(ctx context.Context) ([]model.ScheduleEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT entry FROM schedules`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load schedules")
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan schedule")
		}
		var e model.ScheduleEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal schedule")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load schedules iterate")
	}
	sortEntries(entries)
	return entries, nil
}

func (s *PostgresStore) SaveSchedules(ctx context.Context, entries []model.ScheduleEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal schedule %s", e.Email)
		}
		rows = append(rows, []any{e.Email, string(e.Status), raw, e.CreatedAt, e.UpdatedAt})
	}
	_, err := db.ReplaceAll(ctx, s.pool, "schedules",
		[]string{"email", "status", "entry", "created_at", "updated_at"}, rows)
	return eris.Wrap(err, "postgres: save schedules")
}

func (s *PostgresStore) AppendLead(ctx context.Context, rec model.LeadRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, email, status, record, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Email, rec.Status, raw, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert lead %s", rec.Email)
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, email, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE email = $3`,
		status, s.now().UTC(), email,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", email)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT record, status, updated_at FROM leads`
	var args []any
	if filter.Email != "" {
		query += ` WHERE email = $1`
		args = append(args, filter.Email)
	}
	args = append(args, limitOrAll(filter.Limit))
	if filter.Email != "" {
		query += ` ORDER BY created_at, id LIMIT $2`
	} else {
		query += ` ORDER BY created_at, id LIMIT $1`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.LeadRecord
	for rows.Next() {
		var (
			raw     []byte
			status  string
			updated time.Time
		)
		if err := rows.Scan(&raw, &status, &updated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		rec, err := decodeLead(raw, status, updated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}
