package db

import (
	"context"
	"errors"
	"time"

	"github.com/cloaklabs/attestx/pkg/db/models"
)

// ErrNotFound is returned when no record exists for a content address.
var ErrNotFound = errors.New("record not found")

// RecordFilter narrows List results. Zero values mean "no constraint".
type RecordFilter struct {
	Category  string
	Submitter string
	Limit     int
}

// RecordStore is the persistence surface shared by the indexer and the
// query API. The store's uniqueness on content_address is the pipeline's
// sole concurrency control: concurrent confirms of the same address
// collapse into one row.
type RecordStore interface {
	// InsertPending writes an optimistic record ahead of ledger
	// confirmation. Inserting an address that already has a record is a
	// no-op: the first writer's values stick.
	InsertPending(ctx context.Context, rec *models.Record) error

	// Confirm upserts from an observed ledger event. New addresses are
	// inserted directly as confirmed; existing records move to confirmed
	// and gain ledger metadata, keeping the first writer's fields.
	// Idempotent: confirming twice equals confirming once.
	Confirm(ctx context.Context, rec *models.Record) error

	// Get returns the record for a content address or ErrNotFound.
	Get(ctx context.Context, contentAddress string) (*models.Record, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f RecordFilter) ([]*models.Record, error)

	Ping(ctx context.Context) error
	Close() error
}

// MergeConfirm folds a confirmation event into an existing record and
// returns the replacement row. First-writer-wins for submitter, category
// and note; status only ever moves forward; ledger metadata fills in once
// known.
func MergeConfirm(existing, incoming *models.Record, now time.Time) *models.Record {
	merged := *existing
	merged.Status = models.StatusConfirmed
	if merged.Fingerprint == "" {
		merged.Fingerprint = incoming.Fingerprint
	}
	if merged.Submitter == "" {
		merged.Submitter = incoming.Submitter
	}
	if merged.LedgerSeq == 0 {
		merged.LedgerSeq = incoming.LedgerSeq
	}
	merged.UpdatedAt = now
	merged.Version = existing.Version + 1
	return &merged
}
