package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalMfgBatchPayload(t *testing.T) {
	t.Run("create round trip", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{
			Action:    ActionCreate,
			Timestamp: 1700000000,
			Create: &CreateAction{
				Namespace:  NamespaceGS1,
				MfgBatchID: "00012345600012",
				Owner:      "myorg",
				Properties: []PropertyValue{
					{Name: "lot_number", DataType: DataTypeString, StringValue: "LOT-42"},
					{Name: "quantity", DataType: DataTypeNumber, NumberValue: -5},
				},
			},
		}

		got, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.NoError(err)
		require.Equal(payload, got)
	})

	t.Run("update round trip", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{
			Action:    ActionUpdate,
			Timestamp: 1700000001,
			Update: &UpdateAction{
				Namespace:  NamespaceGS1,
				MfgBatchID: "00012345600012",
				Properties: []PropertyValue{
					{Name: "released", DataType: DataTypeBoolean, BooleanValue: true},
				},
			},
		}

		got, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.NoError(err)
		require.Equal(payload, got)
	})

	t.Run("delete round trip", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{
			Action:    ActionDelete,
			Timestamp: 1700000002,
			Delete: &DeleteAction{
				Namespace:  NamespaceGS1,
				MfgBatchID: "00012345600012",
			},
		}

		got, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.NoError(err)
		require.Equal(payload, got)
	})

	t.Run("unset action", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{Timestamp: 1700000000}

		_, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.ErrorIs(err, ErrUnsetAction)
	})

	t.Run("action without sub message", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{Action: ActionCreate, Timestamp: 1700000000}

		_, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.ErrorIs(err, ErrMalformedPayload)
	})

	t.Run("truncated bytes", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{
			Action:    ActionDelete,
			Timestamp: 1700000002,
			Delete:    &DeleteAction{Namespace: NamespaceGS1, MfgBatchID: "00012345600012"},
		}
		raw := payload.Marshal()

		_, err := UnmarshalMfgBatchPayload(raw[:len(raw)-3])
		require.ErrorIs(err, ErrMalformedPayload)
	})

	t.Run("empty payload", func(t *testing.T) {
		require := require.New(t)

		_, err := UnmarshalMfgBatchPayload(nil)
		require.ErrorIs(err, ErrUnsetAction)
	})

	t.Run("struct property round trip", func(t *testing.T) {
		require := require.New(t)

		payload := &MfgBatchPayload{
			Action:    ActionCreate,
			Timestamp: 1700000003,
			Create: &CreateAction{
				Namespace:  NamespaceGS1,
				MfgBatchID: "00012345600012",
				Owner:      "myorg",
				Properties: []PropertyValue{
					{
						Name:     "assay",
						DataType: DataTypeStruct,
						StructValues: []PropertyValue{
							{Name: "method", DataType: DataTypeString, StringValue: "HPLC"},
							{Name: "passed", DataType: DataTypeBoolean, BooleanValue: true},
						},
					},
				},
			},
		}

		got, err := UnmarshalMfgBatchPayload(payload.Marshal())
		require.NoError(err)
		require.Equal(payload, got)
	})
}
