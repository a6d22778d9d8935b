// Package store defines the read-side replica of committed batch state.
// Rows are versioned by commit-number windows: a row is current while its
// end commit number is MaxCommitNum, and superseded rows keep their window
// so queries can reconstruct state as of any commit.
package store

import (
	"context"
	"errors"
	"math"

	"github.com/cargomesh/mfgbatch/internal/protocol"
)

// MaxCommitNum marks a row as current.
const MaxCommitNum = int64(math.MaxInt64)

// Sentinel errors for common error conditions
var (
	ErrBatchNotFound = errors.New("batch record not found")
	ErrBatchExists   = errors.New("batch record already exists")
	ErrInvalidCommit = errors.New("commit number precedes current window")
)

// MfgBatchRecord is one windowed row of the replica.
type MfgBatchRecord struct {
	MfgBatchID     string
	Namespace      string
	Owner          string
	Properties     []protocol.PropertyValue
	StartCommitNum int64
	EndCommitNum   int64
}

// Current reports whether the row is the live version of its batch.
func (r *MfgBatchRecord) Current() bool {
	return r.EndCommitNum == MaxCommitNum
}

// Page bounds a list query.
type Page struct {
	Offset int
	Limit  int
}

// MfgBatchStore is the replica storage interface. Add, Update and Delete
// take the commit number of the block that produced the change; the store
// closes the previous window at that commit.
type MfgBatchStore interface {
	AddMfgBatch(ctx context.Context, record MfgBatchRecord) error
	GetMfgBatch(ctx context.Context, batchID string) (*MfgBatchRecord, error)
	ListMfgBatches(ctx context.Context, page Page) ([]MfgBatchRecord, int, error)
	UpdateMfgBatch(ctx context.Context, record MfgBatchRecord) error
	DeleteMfgBatch(ctx context.Context, batchID string, commitNum int64) error
}
