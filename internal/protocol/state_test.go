package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMfgBatchList(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		require := require.New(t)

		list := &MfgBatchList{
			Entries: []MfgBatch{
				{
					Namespace:  NamespaceGS1,
					MfgBatchID: "00012345600012",
					Owner:      "myorg",
					Properties: []PropertyValue{
						{Name: "lot_number", DataType: DataTypeString, StringValue: "LOT-42"},
					},
				},
			},
		}

		got, err := UnmarshalMfgBatchList(list.Marshal())
		require.NoError(err)
		require.Equal(list, got)
	})

	t.Run("marshal sorts by batch id", func(t *testing.T) {
		require := require.New(t)

		unsorted := &MfgBatchList{
			Entries: []MfgBatch{
				{Namespace: NamespaceGS1, MfgBatchID: "00099999999996", Owner: "b"},
				{Namespace: NamespaceGS1, MfgBatchID: "00012345600012", Owner: "a"},
			},
		}
		sorted := &MfgBatchList{
			Entries: []MfgBatch{
				{Namespace: NamespaceGS1, MfgBatchID: "00012345600012", Owner: "a"},
				{Namespace: NamespaceGS1, MfgBatchID: "00099999999996", Owner: "b"},
			},
		}

		require.True(bytes.Equal(unsorted.Marshal(), sorted.Marshal()))

		got, err := UnmarshalMfgBatchList(unsorted.Marshal())
		require.NoError(err)
		require.Equal("00012345600012", got.Entries[0].MfgBatchID)
	})

	t.Run("malformed bytes", func(t *testing.T) {
		require := require.New(t)

		_, err := UnmarshalMfgBatchList([]byte{0x0a, 0xff})
		require.ErrorIs(err, ErrMalformedState)
	})
}

func TestSchemaList(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		require := require.New(t)

		list := &SchemaList{
			Schemas: []Schema{
				{
					Name:  "gs1_mfg_batch",
					Owner: "gs1",
					Properties: []PropertyDefinition{
						{Name: "lot_number", DataType: DataTypeString, Required: true},
						{Name: "quantity", DataType: DataTypeNumber, NumberExponent: -3},
						{Name: "status", DataType: DataTypeEnum, EnumOptions: []string{"PENDING", "RELEASED"}},
					},
				},
			},
		}

		got, err := UnmarshalSchemaList(list.Marshal())
		require.NoError(err)
		require.Equal(list, got)
	})

	t.Run("definition lookup", func(t *testing.T) {
		require := require.New(t)

		schema := Schema{
			Name: "gs1_mfg_batch",
			Properties: []PropertyDefinition{
				{Name: "lot_number", DataType: DataTypeString, Required: true},
			},
		}

		def, ok := schema.PropertyDefinitionByName("lot_number")
		require.True(ok)
		require.Equal(DataTypeString, def.DataType)

		_, ok = schema.PropertyDefinitionByName("unknown")
		require.False(ok)
	})
}

func TestPikeState(t *testing.T) {
	t.Run("agent list round trip", func(t *testing.T) {
		require := require.New(t)

		list := &AgentList{
			Agents: []Agent{
				{
					OrgID:     "myorg",
					PublicKey: "02a0f3e9e2c4d6f8a1b3c5d7e9f0a2b4c6d8e0f1a3b5c7d9e1f2a4b6c8d0e2f4a6",
					Active:    true,
					Roles:     []string{"batch-manager"},
				},
			},
		}

		got, err := UnmarshalAgentList(list.Marshal())
		require.NoError(err)
		require.Equal(list, got)
	})

	t.Run("organization alternate id lookup", func(t *testing.T) {
		require := require.New(t)

		list := &OrganizationList{
			Organizations: []Organization{
				{
					OrgID: "myorg",
					Name:  "My Org",
					AlternateIDs: []AlternateID{
						{IDType: "gs1_company_prefix", ID: "0123456"},
					},
				},
			},
		}

		got, err := UnmarshalOrganizationList(list.Marshal())
		require.NoError(err)
		require.Equal(list, got)

		alt, ok := got.Organizations[0].AlternateIDByType("gs1_company_prefix")
		require.True(ok)
		require.Equal("0123456", alt.ID)

		_, ok = got.Organizations[0].AlternateIDByType("duns")
		require.False(ok)
	})

	t.Run("role permissions", func(t *testing.T) {
		require := require.New(t)

		list := &RoleList{
			Roles: []Role{
				{
					OrgID:       "myorg",
					Name:        "batch-manager",
					Permissions: []string{"mfg_batch::can-create-mfg_batch", "mfg_batch::can-update-mfg_batch"},
					Active:      true,
				},
			},
		}

		got, err := UnmarshalRoleList(list.Marshal())
		require.NoError(err)
		require.Equal(list, got)

		role := got.Roles[0]
		require.True(role.HasPermission("mfg_batch::can-create-mfg_batch"))
		require.False(role.HasPermission("mfg_batch::can-delete-mfg_batch"))
	})

	t.Run("malformed agent list", func(t *testing.T) {
		require := require.New(t)

		_, err := UnmarshalAgentList([]byte{0x0a, 0xff})
		require.ErrorIs(err, ErrMalformedState)
	})
}
