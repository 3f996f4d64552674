package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/phlwatch/digest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	record_type  TEXT NOT NULL,
	district     TEXT NOT NULL,
	neighborhood TEXT NOT NULL DEFAULT '',
	filed        DATETIME NOT NULL,
	data         TEXT NOT NULL,
	archived_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS send_log (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	area       TEXT NOT NULL,
	frequency  TEXT NOT NULL,
	recipients INTEGER NOT NULL,
	sent_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriber_cache (
	email      TEXT PRIMARY KEY,
	preference TEXT NOT NULL,
	active     INTEGER NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_type ON records(record_type);
CREATE INDEX IF NOT EXISTS idx_records_district ON records(district);
CREATE INDEX IF NOT EXISTS idx_records_filed ON records(filed);
CREATE INDEX IF NOT EXISTS idx_send_log_sent_at ON send_log(sent_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ArchiveRecords(ctx context.Context, records []model.ClassifiedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin archive")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, record_type, district, neighborhood, filed, data)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   record_type = excluded.record_type, district = excluded.district,
		   neighborhood = excluded.neighborhood, filed = excluded.filed, data = excluded.data`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare archive")
	}
	defer stmt.Close() //nolint:errcheck

	count := 0
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal record %s", r.ID)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, string(r.Type), r.District, r.Neighborhood, r.Filed.UTC(), string(data)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: archive record %s", r.ID)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit archive")
	}
	return count, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ClassifiedRecord, error) {
	query := `SELECT data FROM records WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += ` AND record_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.District != "" {
		query += ` AND district = ?`
		args = append(args, filter.District)
	}
	if !filter.Since.IsZero() {
		query += ` AND filed >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY filed DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ClassifiedRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var r model.ClassifiedRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ClassifiedRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}

	var r model.ClassifiedRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &r, nil
}

func (s *SQLiteStore) LogSend(ctx context.Context, entry SendLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO send_log (id, subject, area, frequency, recipients, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Subject, entry.Area, string(entry.Frequency), entry.Recipients, entry.SentAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: log send")
}

func (s *SQLiteStore) ListSends(ctx context.Context, since time.Time) ([]SendLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject, area, frequency, recipients, sent_at FROM send_log
		 WHERE sent_at >= ? ORDER BY sent_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sends")
	}
	defer rows.Close()

	var entries []SendLog
	for rows.Next() {
		var e SendLog
		var freq string
		if err := rows.Scan(&e.ID, &e.Subject, &e.Area, &freq, &e.Recipients, &e.SentAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan send")
		}
		e.Frequency = model.Frequency(freq)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list sends iterate")
}

// CacheSubscribers replaces the cached subscriber list wholesale; the
// Buttondown list is the source of truth and partial merges would leave
// unsubscribed addresses behind.
func (s *SQLiteStore) CacheSubscribers(ctx context.Context, subscribers []model.Subscriber) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin subscriber cache")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriber_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear subscriber cache")
	}

	now := time.Now().UTC()
	for _, sub := range subscribers {
		prefJSON, err := json.Marshal(sub.Preference)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal preference")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscriber_cache (email, preference, active, cached_at) VALUES (?, ?, ?, ?)`,
			sub.Email, string(prefJSON), sub.Active, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: cache subscriber %s", sub.Email)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit subscriber cache")
}

func (s *SQLiteStore) CachedSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, preference, active FROM subscriber_cache ORDER BY email`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cached subscribers")
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		var prefJSON string
		if err := rows.Scan(&sub.Email, &prefJSON, &sub.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subscriber")
		}
		if err := json.Unmarshal([]byte(prefJSON), &sub.Preference); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal preference")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: cached subscribers iterate")
}
