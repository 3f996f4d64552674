// Package store persists classified records, the send log, and the
// subscriber cache. SQLite backs local runs; Postgres backs the hosted
// scheduler.
package store

import (
	"context"
	"time"

	"github.com/phlwatch/digest-cli/internal/model"
)

// RecordFilter specifies criteria for listing archived records.
type RecordFilter struct {
	Type     model.RecordType `json:"type,omitempty"`
	District string           `json:"district,omitempty"`
	Since    time.Time        `json:"since,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Offset   int              `json:"offset,omitempty"`
}

// SendLog is one digest dispatch, kept so reruns of the same day can be
// detected and audited.
type SendLog struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	Area       string          `json:"area"`
	Frequency  model.Frequency `json:"frequency"`
	Recipients int             `json:"recipients"`
	SentAt     time.Time       `json:"sent_at"`
}

// Store defines the persistence interface for the digest pipeline.
type Store interface {
	// Record archive
	ArchiveRecords(ctx context.Context, records []model.ClassifiedRecord) (int, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ClassifiedRecord, error)
	GetRecord(ctx context.Context, id string) (*model.ClassifiedRecord, error)

	// Send log
	LogSend(ctx context.Context, entry SendLog) error
	ListSends(ctx context.Context, since time.Time) ([]SendLog, error)

	// Subscriber cache
	CacheSubscribers(ctx context.Context, subscribers []model.Subscriber) error
	CachedSubscribers(ctx context.Context) ([]model.Subscriber, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
