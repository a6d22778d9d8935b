package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cargomesh/mfgbatch/internal/protocol"
)

type fakePikeState struct {
	agents map[string]*protocol.Agent
	roles  map[string]*protocol.Role
}

func (s *fakePikeState) GetAgent(publicKey string) (*protocol.Agent, error) {
	return s.agents[publicKey], nil
}

func (s *fakePikeState) GetRole(orgID, name string) (*protocol.Role, error) {
	return s.roles[orgID+"."+name], nil
}

const signerKey = "02a0f3e9e2c4d6f8a1b3c5d7e9f0a2b4c6d8e0f1a3b5c7d9e1f2a4b6c8d0e2f4a6"

func pikeFixture() *fakePikeState {
	return &fakePikeState{
		agents: map[string]*protocol.Agent{
			signerKey: {
				OrgID:     "myorg",
				PublicKey: signerKey,
				Active:    true,
				Roles:     []string{"batch-manager"},
			},
		},
		roles: map[string]*protocol.Role{
			"myorg.batch-manager": {
				OrgID:       "myorg",
				Name:        "batch-manager",
				Permissions: []string{string(CanCreateMfgBatch), string(CanUpdateMfgBatch)},
				Active:      true,
			},
		},
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("granted permission", func(t *testing.T) {
		require := require.New(t)

		checker := NewChecker(pikeFixture())

		agent, err := checker.Authorize(signerKey, CanCreateMfgBatch, "myorg")
		require.NoError(err)
		require.Equal("myorg", agent.OrgID)
	})

	t.Run("unknown signer", func(t *testing.T) {
		require := require.New(t)

		checker := NewChecker(pikeFixture())

		_, err := checker.Authorize("deadbeef", CanCreateMfgBatch, "myorg")
		require.ErrorIs(err, ErrSignerNotAuthorized)
	})

	t.Run("inactive agent", func(t *testing.T) {
		require := require.New(t)

		state := pikeFixture()
		state.agents[signerKey].Active = false
		checker := NewChecker(state)

		_, err := checker.Authorize(signerKey, CanCreateMfgBatch, "myorg")
		require.ErrorIs(err, ErrSignerNotAuthorized)
	})

	t.Run("wrong organization", func(t *testing.T) {
		require := require.New(t)

		checker := NewChecker(pikeFixture())

		_, err := checker.Authorize(signerKey, CanCreateMfgBatch, "otherorg")
		require.ErrorIs(err, ErrPermissionDenied)
	})

	t.Run("missing permission", func(t *testing.T) {
		require := require.New(t)

		checker := NewChecker(pikeFixture())

		_, err := checker.Authorize(signerKey, CanDeleteMfgBatch, "myorg")
		require.ErrorIs(err, ErrPermissionDenied)
	})

	t.Run("inactive role", func(t *testing.T) {
		require := require.New(t)

		state := pikeFixture()
		state.roles["myorg.batch-manager"].Active = false
		checker := NewChecker(state)

		_, err := checker.Authorize(signerKey, CanCreateMfgBatch, "myorg")
		require.ErrorIs(err, ErrPermissionDenied)
	})

	t.Run("unknown role name ignored", func(t *testing.T) {
		require := require.New(t)

		state := pikeFixture()
		state.agents[signerKey].Roles = []string{"ghost", "batch-manager"}
		checker := NewChecker(state)

		_, err := checker.Authorize(signerKey, CanUpdateMfgBatch, "myorg")
		require.NoError(err)
	})
}
