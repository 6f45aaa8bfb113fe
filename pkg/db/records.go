package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloaklabs/attestx/pkg/db/clickhouse"
	"github.com/cloaklabs/attestx/pkg/db/models"
	"go.uber.org/zap"

	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const recordsTable = "records"

// DB is the ClickHouse-backed RecordStore. Rows are replaced, not mutated:
// every upsert inserts a higher-version row and ReplacingMergeTree keyed by
// content_address collapses them. Reads use FINAL so callers always see the
// winning row.
type DB struct {
	*clickhouse.Client
}

// NewRecordsDB connects to ClickHouse and ensures the records table exists.
func NewRecordsDB(ctx context.Context, logger *zap.Logger, dbName string) (*DB, error) {
	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client}
	if err := db.initTables(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			content_address String,
			fingerprint String,
			submitter String,
			ledger_seq UInt64,
			category String,
			note String,
			status String,
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC'),
			version UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY content_address
	`, db.Database, recordsTable)
	if err := db.Db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", recordsTable, err)
	}
	return nil
}

func (db *DB) InsertPending(ctx context.Context, rec *models.Record) error {
	if _, err := db.Get(ctx, rec.ContentAddress); err == nil {
		// First writer already holds the row.
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	row := *rec
	row.Status = models.StatusPending
	row.CreatedAt = now
	row.UpdatedAt = now
	row.Version = 1
	return db.insert(ctx, &row)
}

func (db *DB) Confirm(ctx context.Context, rec *models.Record) error {
	now := time.Now().UTC()

	existing, err := db.Get(ctx, rec.ContentAddress)
	if errors.Is(err, ErrNotFound) {
		row := *rec
		row.Status = models.StatusConfirmed
		row.CreatedAt = now
		row.UpdatedAt = now
		row.Version = 1
		return db.insert(ctx, &row)
	}
	if err != nil {
		return err
	}

	if existing.Status == models.StatusConfirmed && existing.LedgerSeq != 0 {
		// Replayed event, nothing left to move forward.
		return nil
	}
	return db.insert(ctx, MergeConfirm(existing, rec, now))
}

func (db *DB) insert(ctx context.Context, rec *models.Record) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (
		content_address, fingerprint, submitter, ledger_seq,
		category, note, status, created_at, updated_at, version
	) VALUES`, db.Database, recordsTable)

	batch, err := db.Db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch chdriver.Batch) {
		_ = batch.Abort()
	}(batch)

	if err := batch.Append(
		rec.ContentAddress,
		rec.Fingerprint,
		rec.Submitter,
		rec.LedgerSeq,
		rec.Category,
		rec.Note,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.Version,
	); err != nil {
		return err
	}
	return batch.Send()
}

func (db *DB) Get(ctx context.Context, contentAddress string) (*models.Record, error) {
	query := fmt.Sprintf(`
		SELECT content_address, fingerprint, submitter, ledger_seq,
		       category, note, status, created_at, updated_at, version
		FROM "%s"."%s" FINAL
		WHERE content_address = ?
	`, db.Database, recordsTable)

	var rec models.Record
	row := db.Db.QueryRow(ctx, query, contentAddress)
	if err := row.ScanStruct(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (db *DB) List(ctx context.Context, f RecordFilter) ([]*models.Record, error) {
	query := fmt.Sprintf(`
		SELECT content_address, fingerprint, submitter, ledger_seq,
		       category, note, status, created_at, updated_at, version
		FROM "%s"."%s" FINAL
	`, db.Database, recordsTable)

	clauses := []string{}
	args := []any{}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Submitter != "" {
		clauses = append(clauses, "submitter = ?")
		args = append(args, f.Submitter)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, f.Limit)

	var recs []*models.Record
	if err := db.Db.Select(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	return recs, nil
}
