package handler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cargomesh/mfgbatch/internal/addressing"
	"github.com/cargomesh/mfgbatch/internal/permissions"
	"github.com/cargomesh/mfgbatch/internal/protocol"
	"github.com/cargomesh/mfgbatch/internal/state"
)

const (
	signerKey = "02a0f3e9e2c4d6f8a1b3c5d7e9f0a2b4c6d8e0f1a3b5c7d9e1f2a4b6c8d0e2f4a6"
	orgID     = "myorg"

	// 14-digit GTINs with valid check digits.
	batchID      = "00012345600012"
	otherBatchID = "00012345600029"
)

type fakeContext struct {
	entries map[string][]byte
	getErr  error
}

func newFakeContext() *fakeContext {
	return &fakeContext{entries: map[string][]byte{}}
}

func (c *fakeContext) GetState(addresses []string) (map[string][]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	out := map[string][]byte{}
	for _, a := range addresses {
		if v, ok := c.entries[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (c *fakeContext) SetState(pairs map[string][]byte) ([]string, error) {
	var written []string
	for a, v := range pairs {
		c.entries[a] = v
		written = append(written, a)
	}
	return written, nil
}

func (c *fakeContext) DeleteState(addresses []string) ([]string, error) {
	var deleted []string
	for _, a := range addresses {
		if _, ok := c.entries[a]; ok {
			delete(c.entries, a)
			deleted = append(deleted, a)
		}
	}
	return deleted, nil
}

func (c *fakeContext) addAgent(publicKey string, roles ...string) {
	list := &protocol.AgentList{Agents: []protocol.Agent{
		{OrgID: orgID, PublicKey: publicKey, Active: true, Roles: roles},
	}}
	c.entries[addressing.AgentAddress(publicKey)] = list.Marshal()
}

func (c *fakeContext) addOrganization(alternateIDs ...protocol.AlternateID) {
	list := &protocol.OrganizationList{Organizations: []protocol.Organization{
		{OrgID: orgID, Name: "My Org", AlternateIDs: alternateIDs},
	}}
	c.entries[addressing.OrganizationAddress(orgID)] = list.Marshal()
}

func (c *fakeContext) addRole(name string, perms ...string) {
	list := &protocol.RoleList{Roles: []protocol.Role{
		{OrgID: orgID, Name: name, Permissions: perms, Active: true},
	}}
	c.entries[addressing.RoleAddress(orgID, name)] = list.Marshal()
}

func (c *fakeContext) addSchema(defs ...protocol.PropertyDefinition) {
	list := &protocol.SchemaList{Schemas: []protocol.Schema{
		{Name: "gs1_mfg_batch", Owner: orgID, Properties: defs},
	}}
	c.entries[addressing.SchemaAddress("gs1_mfg_batch")] = list.Marshal()
}

// fullFixture sets up an active agent with all three permissions, an
// organization with a registered company prefix, and the GS1 schema.
func fullFixture() *fakeContext {
	ctx := newFakeContext()
	ctx.addAgent(signerKey, "batch-manager")
	ctx.addRole("batch-manager",
		string(permissions.CanCreateMfgBatch),
		string(permissions.CanUpdateMfgBatch),
		string(permissions.CanDeleteMfgBatch),
	)
	ctx.addOrganization(protocol.AlternateID{IDType: "gs1_company_prefix", ID: "0123456"})
	ctx.addSchema(
		protocol.PropertyDefinition{Name: "lot_number", DataType: protocol.DataTypeString, Required: true},
		protocol.PropertyDefinition{Name: "quantity", DataType: protocol.DataTypeNumber},
		protocol.PropertyDefinition{Name: "released", DataType: protocol.DataTypeBoolean},
	)
	return ctx
}

func createPayload(id string) *protocol.MfgBatchPayload {
	return &protocol.MfgBatchPayload{
		Action:    protocol.ActionCreate,
		Timestamp: 1700000000,
		Create: &protocol.CreateAction{
			Namespace:  protocol.NamespaceGS1,
			MfgBatchID: id,
			Owner:      orgID,
			Properties: []protocol.PropertyValue{
				{Name: "lot_number", DataType: protocol.DataTypeString, StringValue: "LOT-42"},
			},
		},
	}
}

func mustCreate(t *testing.T, ctx *fakeContext, id string) {
	t.Helper()
	require.NoError(t, applyPayload(createPayload(id).Marshal(), signerKey, ctx))
}

func storedBatch(t *testing.T, ctx *fakeContext, id string) *protocol.MfgBatch {
	t.Helper()
	batch, err := state.NewMfgBatchState(ctx).GetMfgBatch(id)
	require.NoError(t, err)
	return batch
}

func TestApplyCreate(t *testing.T) {
	t.Run("creates record", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)

		batch := storedBatch(t, ctx, batchID)
		require.NotNil(batch)
		require.Equal(orgID, batch.Owner)
		require.Equal("LOT-42", batch.Properties[0].StringValue)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload([]byte{0xff, 0xff}, signerKey, fullFixture())
		require.ErrorIs(err, protocol.ErrMalformedPayload)
	})

	t.Run("rejects unset action", func(t *testing.T) {
		require := require.New(t)

		payload := &protocol.MfgBatchPayload{Timestamp: 1700000000}
		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, protocol.ErrUnsetAction)
	})

	t.Run("rejects zero timestamp", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Timestamp = 0
		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrInvalidTimestamp)
	})

	t.Run("rejects unset namespace", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Namespace = protocol.NamespaceUnset
		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrUnsupportedNamespace)
	})

	t.Run("rejects bad check digit", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(createPayload("00012345600013").Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrInvalidBatchID)
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Owner = ""
		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrMissingOwner)
	})

	t.Run("rejects unknown signer", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(createPayload(batchID).Marshal(), "deadbeef", fullFixture())
		require.ErrorIs(err, permissions.ErrSignerNotAuthorized)
	})

	t.Run("rejects signer without create permission", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		ctx.addRole("batch-manager", string(permissions.CanUpdateMfgBatch))

		err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, permissions.ErrPermissionDenied)
	})

	t.Run("rejects owner without company prefix", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		ctx.addOrganization()

		err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, ErrMissingCompanyPrefix)
	})

	t.Run("rejects GTIN outside company prefix", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		ctx.addOrganization(protocol.AlternateID{IDType: "gs1_company_prefix", ID: "9999999"})

		err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, ErrInvalidBatchID)
	})

	t.Run("rejects duplicate record", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)

		err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, ErrRecordAlreadyExists)
	})

	t.Run("rejects missing schema", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		delete(ctx.entries, addressing.SchemaAddress("gs1_mfg_batch"))

		err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, ErrSchemaNotFound)
	})

	t.Run("rejects undeclared property", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Properties = append(payload.Create.Properties,
			protocol.PropertyValue{Name: "color", DataType: protocol.DataTypeString, StringValue: "blue"})

		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrUnknownProperty)
	})

	t.Run("rejects declared type mismatch", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Properties = append(payload.Create.Properties,
			protocol.PropertyValue{Name: "quantity", DataType: protocol.DataTypeString, StringValue: "12"})

		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrTypeMismatch)
	})

	t.Run("rejects mismatched value variant", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Properties = append(payload.Create.Properties,
			protocol.PropertyValue{Name: "quantity", DataType: protocol.DataTypeNumber, StringValue: "12"})

		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrTypeMismatch)
	})

	t.Run("rejects missing required property", func(t *testing.T) {
		require := require.New(t)

		payload := createPayload(batchID)
		payload.Create.Properties = nil

		err := applyPayload(payload.Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrMissingRequiredProperty)
	})
}

func TestApplyUpdate(t *testing.T) {
	updatePayload := func(id string) *protocol.MfgBatchPayload {
		return &protocol.MfgBatchPayload{
			Action:    protocol.ActionUpdate,
			Timestamp: 1700000001,
			Update: &protocol.UpdateAction{
				Namespace:  protocol.NamespaceGS1,
				MfgBatchID: id,
				Properties: []protocol.PropertyValue{
					{Name: "lot_number", DataType: protocol.DataTypeString, StringValue: "LOT-43"},
					{Name: "released", DataType: protocol.DataTypeBoolean, BooleanValue: true},
				},
			},
		}
	}

	t.Run("replaces properties and keeps owner", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)

		require.NoError(applyPayload(updatePayload(batchID).Marshal(), signerKey, ctx))

		batch := storedBatch(t, ctx, batchID)
		require.NotNil(batch)
		require.Equal(orgID, batch.Owner)
		require.Len(batch.Properties, 2)
		require.Equal("LOT-43", batch.Properties[0].StringValue)
	})

	t.Run("rejects missing record", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(updatePayload(batchID).Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrRecordNotFound)
	})

	t.Run("rejects invalid GTIN", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(updatePayload("123").Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrInvalidBatchID)
	})

	t.Run("rejects signer without update permission", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)
		ctx.addRole("batch-manager", string(permissions.CanCreateMfgBatch))

		err := applyPayload(updatePayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, permissions.ErrPermissionDenied)
	})
}

func TestApplyDelete(t *testing.T) {
	deletePayload := func(id string) *protocol.MfgBatchPayload {
		return &protocol.MfgBatchPayload{
			Action:    protocol.ActionDelete,
			Timestamp: 1700000002,
			Delete: &protocol.DeleteAction{
				Namespace:  protocol.NamespaceGS1,
				MfgBatchID: id,
			},
		}
	}

	t.Run("removes record", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)

		require.NoError(applyPayload(deletePayload(batchID).Marshal(), signerKey, ctx))
		require.Nil(storedBatch(t, ctx, batchID))
	})

	t.Run("rejects missing record", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(deletePayload(batchID).Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrRecordNotFound)
	})

	t.Run("rejects invalid GTIN", func(t *testing.T) {
		require := require.New(t)

		err := applyPayload(deletePayload("123").Marshal(), signerKey, fullFixture())
		require.ErrorIs(err, ErrInvalidBatchID)
	})

	t.Run("rejects signer without delete permission", func(t *testing.T) {
		require := require.New(t)

		ctx := fullFixture()
		mustCreate(t, ctx, batchID)
		ctx.addRole("batch-manager",
			string(permissions.CanCreateMfgBatch),
			string(permissions.CanUpdateMfgBatch),
		)

		err := applyPayload(deletePayload(batchID).Marshal(), signerKey, ctx)
		require.ErrorIs(err, permissions.ErrPermissionDenied)
	})
}

func TestApplyStateUnavailable(t *testing.T) {
	require := require.New(t)

	ctx := fullFixture()
	ctx.getErr = errors.New("validator timeout")

	err := applyPayload(createPayload(batchID).Marshal(), signerKey, ctx)
	require.ErrorIs(err, state.ErrStateUnavailable)
}

func TestValidateGTIN(t *testing.T) {
	t.Run("valid lengths", func(t *testing.T) {
		require := require.New(t)

		// Check digits computed per GS1 mod-10.
		for _, id := range []string{"00012345600012", otherBatchID, "1234567890128", "123456789012", "12345670"} {
			require.NoError(validateGTIN(id), id)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		require := require.New(t)

		for _, id := range []string{"", "1234", "0001234560001", "0001234560001x", "00012345600013"} {
			require.ErrorIs(validateGTIN(id), ErrInvalidBatchID, id)
		}
	})
}

func TestHandlerMetadata(t *testing.T) {
	require := require.New(t)

	h := NewMfgBatchHandler()
	require.Equal("grid_mfg_batch", h.FamilyName())
	require.Equal([]string{"1"}, h.FamilyVersions())
	require.Equal([]string{addressing.GridNamespace}, h.Namespaces())
}
