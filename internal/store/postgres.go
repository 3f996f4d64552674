package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/phlwatch/digest-cli/internal/db"
	"github.com/phlwatch/digest-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_record":  `SELECT data FROM records WHERE id = $1`,
	"insert_send": `INSERT INTO send_log (id, subject, area, frequency, recipients, sent_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"list_sends":  `SELECT id, subject, area, frequency, recipients, sent_at FROM send_log WHERE sent_at >= $1 ORDER BY sent_at DESC`,
	"cached_subs": `SELECT email, preference, active FROM subscriber_cache ORDER BY email`,
	"clear_subs":  `DELETE FROM subscriber_cache`,
	"insert_sub":  `INSERT INTO subscriber_cache (email, preference, active, cached_at) VALUES ($1, $2, $3, $4)`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; tests hand in a pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	record_type  TEXT NOT NULL,
	district     TEXT NOT NULL,
	neighborhood TEXT NOT NULL DEFAULT '',
	filed        TIMESTAMPTZ NOT NULL,
	data         JSONB NOT NULL,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS send_log (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject    TEXT NOT NULL,
	area       TEXT NOT NULL,
	frequency  TEXT NOT NULL,
	recipients INTEGER NOT NULL,
	sent_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriber_cache (
	email      TEXT PRIMARY KEY,
	preference JSONB NOT NULL,
	active     BOOLEAN NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_type ON records(record_type);
CREATE INDEX IF NOT EXISTS idx_records_district ON records(district);
CREATE INDEX IF NOT EXISTS idx_records_filed ON records(filed DESC);
CREATE INDEX IF NOT EXISTS idx_send_log_sent_at ON send_log(sent_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

var recordColumns = []string{"id", "record_type", "district", "neighborhood", "filed", "data"}

func (s *PostgresStore) ArchiveRecords(ctx context.Context, records []model.ClassifiedRecord) (int, error) {
	var rows [][]any
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal record %s", r.ID)
		}
		rows = append(rows, []any{r.ID, string(r.Type), r.District, r.Neighborhood, r.Filed.UTC(), data})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "records",
		Columns:      recordColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: archive records")
	}
	return int(n), nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ClassifiedRecord, error) {
	query := `SELECT data FROM records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(` AND record_type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if filter.District != "" {
		query += fmt.Sprintf(` AND district = $%d`, argIdx)
		args = append(args, filter.District)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND filed >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY filed DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ClassifiedRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r model.ClassifiedRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ClassifiedRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM records WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}

	var r model.ClassifiedRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &r, nil
}

func (s *PostgresStore) LogSend(ctx context.Context, entry SendLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO send_log (id, subject, area, frequency, recipients, sent_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Subject, entry.Area, string(entry.Frequency), entry.Recipients, entry.SentAt.UTC(),
	)
	return eris.Wrap(err, "postgres: log send")
}

func (s *PostgresStore) ListSends(ctx context.Context, since time.Time) ([]SendLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, area, frequency, recipients, sent_at FROM send_log WHERE sent_at >= $1 ORDER BY sent_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sends")
	}
	defer rows.Close()

	var entries []SendLog
	for rows.Next() {
		var e SendLog
		var freq string
		if err := rows.Scan(&e.ID, &e.Subject, &e.Area, &freq, &e.Recipients, &e.SentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan send")
		}
		e.Frequency = model.Frequency(freq)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list sends iterate")
}

func (s *PostgresStore) CacheSubscribers(ctx context.Context, subscribers []model.Subscriber) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin subscriber cache")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM subscriber_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear subscriber cache")
	}

	now := time.Now().UTC()
	for _, sub := range subscribers {
		prefJSON, err := json.Marshal(sub.Preference)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal preference")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO subscriber_cache (email, preference, active, cached_at) VALUES ($1, $2, $3, $4)`,
			sub.Email, prefJSON, sub.Active, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: cache subscriber %s", sub.Email)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit subscriber cache")
}

func (s *PostgresStore) CachedSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, preference, active FROM subscriber_cache ORDER BY email`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cached subscribers")
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		var prefJSON []byte
		if err := rows.Scan(&sub.Email, &prefJSON, &sub.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subscriber")
		}
		if err := json.Unmarshal(prefJSON, &sub.Preference); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal preference")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: cached subscribers iterate")
}
