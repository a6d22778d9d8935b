package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cargomesh/mfgbatch/internal/protocol"
	"github.com/cargomesh/mfgbatch/internal/store"
)

func record(id string, commit int64) store.MfgBatchRecord {
	return store.MfgBatchRecord{
		MfgBatchID: id,
		Namespace:  "GS1",
		Owner:      "myorg",
		Properties: []protocol.PropertyValue{
			{Name: "lot_number", DataType: protocol.DataTypeString, StringValue: "LOT-42"},
		},
		StartCommitNum: commit,
	}
}

func TestMfgBatchStore(t *testing.T) {
	ctx := context.Background()

	t.Run("add and get", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))

		got, err := s.GetMfgBatch(ctx, "00012345600012")
		require.NoError(err)
		require.Equal("myorg", got.Owner)
		require.True(got.Current())
	})

	t.Run("add duplicate", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))

		err := s.AddMfgBatch(ctx, record("00012345600012", 11))
		require.ErrorIs(err, store.ErrBatchExists)
	})

	t.Run("get missing", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()

		_, err := s.GetMfgBatch(ctx, "00012345600012")
		require.ErrorIs(err, store.ErrBatchNotFound)
	})

	t.Run("update supersedes window", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))

		updated := record("00012345600012", 20)
		updated.Properties[0].StringValue = "LOT-43"
		require.NoError(s.UpdateMfgBatch(ctx, updated))

		got, err := s.GetMfgBatch(ctx, "00012345600012")
		require.NoError(err)
		require.Equal("LOT-43", got.Properties[0].StringValue)
		require.Equal(int64(20), got.StartCommitNum)
	})

	t.Run("update rejects stale commit", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))

		err := s.UpdateMfgBatch(ctx, record("00012345600012", 5))
		require.ErrorIs(err, store.ErrInvalidCommit)
	})

	t.Run("delete closes window", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))
		require.NoError(s.DeleteMfgBatch(ctx, "00012345600012", 30))

		_, err := s.GetMfgBatch(ctx, "00012345600012")
		require.ErrorIs(err, store.ErrBatchNotFound)
	})

	t.Run("list pages current rows", func(t *testing.T) {
		require := require.New(t)

		s := NewMfgBatchStore()
		require.NoError(s.AddMfgBatch(ctx, record("00012345600029", 10)))
		require.NoError(s.AddMfgBatch(ctx, record("00012345600012", 10)))
		require.NoError(s.AddMfgBatch(ctx, record("00099999999996", 10)))
		require.NoError(s.DeleteMfgBatch(ctx, "00099999999996", 20))

		rows, total, err := s.ListMfgBatches(ctx, store.Page{Limit: 1})
		require.NoError(err)
		require.Equal(2, total)
		require.Len(rows, 1)
		require.Equal("00012345600012", rows[0].MfgBatchID)

		rows, _, err = s.ListMfgBatches(ctx, store.Page{Offset: 1, Limit: 1})
		require.NoError(err)
		require.Len(rows, 1)
		require.Equal("00012345600029", rows[0].MfgBatchID)

		rows, total, err = s.ListMfgBatches(ctx, store.Page{Offset: 5})
		require.NoError(err)
		require.Equal(2, total)
		require.Empty(rows)
	})
}
