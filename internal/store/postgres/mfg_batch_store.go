// Package postgres implements the batch replica store on PostgreSQL using
// pgx, with embedded migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/protocol"
	"github.com/cargomesh/mfgbatch/internal/store"
)

// MfgBatchStoreConfig configures the PostgreSQL replica store.
type MfgBatchStoreConfig struct {
	PoolConfig

	// AutoMigrate runs embedded migrations on startup.
	AutoMigrate bool
}

// MfgBatchStore is the PostgreSQL-backed replica store.
type MfgBatchStore struct {
	pool *pgxpool.Pool
}

var _ store.MfgBatchStore = (*MfgBatchStore)(nil)

// NewMfgBatchStore connects to PostgreSQL and optionally migrates the schema.
func NewMfgBatchStore(ctx context.Context, cfg *MfgBatchStoreConfig) (*MfgBatchStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}

	pool, err := NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &MfgBatchStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *MfgBatchStore) Close() {
	s.pool.Close()
}

// AddMfgBatch inserts a new current row. The partial unique index rejects a
// second current row for the same batch id.
func (s *MfgBatchStore) AddMfgBatch(ctx context.Context, record store.MfgBatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mfg_batches (mfg_batch_id, namespace, owner, properties, start_commit_num, end_commit_num)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.MfgBatchID, record.Namespace, record.Owner,
		protocol.MarshalPropertyValues(record.Properties),
		record.StartCommitNum, store.MaxCommitNum)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("batch_id", record.MfgBatchID).Int64("commit", record.StartCommitNum).Msg("replica row added")
	return nil
}

// GetMfgBatch returns the current row for the batch id.
func (s *MfgBatchStore) GetMfgBatch(ctx context.Context, batchID string) (*store.MfgBatchRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT mfg_batch_id, namespace, owner, properties, start_commit_num, end_commit_num
		FROM mfg_batches
		WHERE mfg_batch_id = $1 AND end_commit_num = $2
	`, batchID, store.MaxCommitNum)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrBatchNotFound, batchID)
		}
		return nil, mapPostgresError(err)
	}
	return record, nil
}

// ListMfgBatches returns a page of current rows ordered by batch id, plus
// the total count of current rows.
func (s *MfgBatchStore) ListMfgBatches(ctx context.Context, page store.Page) ([]store.MfgBatchRecord, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM mfg_batches WHERE end_commit_num = $1
	`, store.MaxCommitNum).Scan(&total)
	if err != nil {
		return nil, 0, mapPostgresError(err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = total
	}

	rows, err := s.pool.Query(ctx, `
		SELECT mfg_batch_id, namespace, owner, properties, start_commit_num, end_commit_num
		FROM mfg_batches
		WHERE end_commit_num = $1
		ORDER BY mfg_batch_id
		OFFSET $2 LIMIT $3
	`, store.MaxCommitNum, page.Offset, limit)
	if err != nil {
		return nil, 0, mapPostgresError(err)
	}
	defer rows.Close()

	var records []store.MfgBatchRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, mapPostgresError(err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPostgresError(err)
	}

	return records, total, nil
}

// UpdateMfgBatch closes the current window at the record's start commit and
// inserts the record as the new current row, in one transaction.
func (s *MfgBatchStore) UpdateMfgBatch(ctx context.Context, record store.MfgBatchRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := closeWindow(ctx, tx, record.MfgBatchID, record.StartCommitNum); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO mfg_batches (mfg_batch_id, namespace, owner, properties, start_commit_num, end_commit_num)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.MfgBatchID, record.Namespace, record.Owner,
		protocol.MarshalPropertyValues(record.Properties),
		record.StartCommitNum, store.MaxCommitNum)
	if err != nil {
		return mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("batch_id", record.MfgBatchID).Int64("commit", record.StartCommitNum).Msg("replica row superseded")
	return nil
}

// DeleteMfgBatch closes the current window at commitNum without a
// replacement row.
func (s *MfgBatchStore) DeleteMfgBatch(ctx context.Context, batchID string, commitNum int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := closeWindow(ctx, tx, batchID, commitNum); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("batch_id", batchID).Int64("commit", commitNum).Msg("replica row deleted")
	return nil
}

// closeWindow ends the current row's window at commitNum, distinguishing a
// missing row from a stale commit number.
func closeWindow(ctx context.Context, tx pgx.Tx, batchID string, commitNum int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE mfg_batches
		SET end_commit_num = $2
		WHERE mfg_batch_id = $1 AND end_commit_num = $3 AND start_commit_num <= $2
	`, batchID, commitNum, store.MaxCommitNum)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM mfg_batches WHERE mfg_batch_id = $1 AND end_commit_num = $2
			)
		`, batchID, store.MaxCommitNum).Scan(&exists)
		if err != nil {
			return mapPostgresError(err)
		}
		if exists {
			return fmt.Errorf("%w: commit %d", store.ErrInvalidCommit, commitNum)
		}
		return fmt.Errorf("%w: %s", store.ErrBatchNotFound, batchID)
	}
	return nil
}

func scanRecord(row pgx.Row) (*store.MfgBatchRecord, error) {
	var record store.MfgBatchRecord
	var props []byte

	err := row.Scan(&record.MfgBatchID, &record.Namespace, &record.Owner,
		&props, &record.StartCommitNum, &record.EndCommitNum)
	if err != nil {
		return nil, err
	}

	record.Properties, err = protocol.UnmarshalPropertyValues(props)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
