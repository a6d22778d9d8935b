// Package memory provides an in-memory MfgBatchStore for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cargomesh/mfgbatch/internal/store"
)

// MfgBatchStore keeps all windowed rows in memory.
type MfgBatchStore struct {
	mu   sync.RWMutex
	rows []store.MfgBatchRecord
}

// NewMfgBatchStore returns an empty in-memory store.
func NewMfgBatchStore() *MfgBatchStore {
	return &MfgBatchStore{}
}

var _ store.MfgBatchStore = (*MfgBatchStore)(nil)

func (s *MfgBatchStore) currentIndex(batchID string) int {
	for i := range s.rows {
		if s.rows[i].MfgBatchID == batchID && s.rows[i].Current() {
			return i
		}
	}
	return -1
}

// AddMfgBatch inserts a new current row for a batch id with no live version.
func (s *MfgBatchStore) AddMfgBatch(_ context.Context, record store.MfgBatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentIndex(record.MfgBatchID) >= 0 {
		return fmt.Errorf("%w: %s", store.ErrBatchExists, record.MfgBatchID)
	}

	record.EndCommitNum = store.MaxCommitNum
	s.rows = append(s.rows, record)
	return nil
}

// GetMfgBatch returns the current row for the batch id.
func (s *MfgBatchStore) GetMfgBatch(_ context.Context, batchID string) (*store.MfgBatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.currentIndex(batchID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrBatchNotFound, batchID)
	}

	row := s.rows[i]
	return &row, nil
}

// ListMfgBatches returns a page of current rows ordered by batch id, along
// with the total number of current rows.
func (s *MfgBatchStore) ListMfgBatches(_ context.Context, page store.Page) ([]store.MfgBatchRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current []store.MfgBatchRecord
	for _, row := range s.rows {
		if row.Current() {
			current = append(current, row)
		}
	}
	sort.Slice(current, func(i, j int) bool {
		return current[i].MfgBatchID < current[j].MfgBatchID
	})

	total := len(current)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := total
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return current[page.Offset:end], total, nil
}

// UpdateMfgBatch closes the current window at the record's start commit and
// inserts the record as the new current row.
func (s *MfgBatchStore) UpdateMfgBatch(_ context.Context, record store.MfgBatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.currentIndex(record.MfgBatchID)
	if i < 0 {
		return fmt.Errorf("%w: %s", store.ErrBatchNotFound, record.MfgBatchID)
	}
	if record.StartCommitNum < s.rows[i].StartCommitNum {
		return fmt.Errorf("%w: %d < %d", store.ErrInvalidCommit, record.StartCommitNum, s.rows[i].StartCommitNum)
	}

	s.rows[i].EndCommitNum = record.StartCommitNum
	record.EndCommitNum = store.MaxCommitNum
	s.rows = append(s.rows, record)
	return nil
}

// DeleteMfgBatch closes the current window at commitNum without inserting a
// replacement.
func (s *MfgBatchStore) DeleteMfgBatch(_ context.Context, batchID string, commitNum int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.currentIndex(batchID)
	if i < 0 {
		return fmt.Errorf("%w: %s", store.ErrBatchNotFound, batchID)
	}
	if commitNum < s.rows[i].StartCommitNum {
		return fmt.Errorf("%w: %d < %d", store.ErrInvalidCommit, commitNum, s.rows[i].StartCommitNum)
	}

	s.rows[i].EndCommitNum = commitNum
	return nil
}
