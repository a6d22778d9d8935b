// Package permissions resolves whether a transaction signer may perform a
// batch operation, using the Pike identity state: the signer's agent record,
// the agent's organization, and the roles granted to the agent.
package permissions

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/protocol"
)

// Permission is a namespaced permission string carried by a Pike role.
type Permission string

const (
	CanCreateMfgBatch Permission = "mfg_batch::can-create-mfg_batch"
	CanUpdateMfgBatch Permission = "mfg_batch::can-update-mfg_batch"
	CanDeleteMfgBatch Permission = "mfg_batch::can-delete-mfg_batch"
)

var (
	// ErrSignerNotAuthorized is returned when the signing key has no
	// active agent record.
	ErrSignerNotAuthorized = errors.New("signer is not an authorized agent")

	// ErrPermissionDenied is returned when the signer's agent exists but
	// none of its roles grant the required permission for the record's
	// owning organization.
	ErrPermissionDenied = errors.New("permission denied")
)

// PikeState is the slice of ledger state the checker reads.
type PikeState interface {
	GetAgent(publicKey string) (*protocol.Agent, error)
	GetRole(orgID, name string) (*protocol.Role, error)
}

// Checker evaluates permissions against Pike state.
type Checker struct {
	state PikeState
}

// NewChecker returns a checker reading from state.
func NewChecker(state PikeState) *Checker {
	return &Checker{state: state}
}

// Authorize resolves the signer's agent and verifies it holds perm for the
// organization that owns the record. The agent must be active, belong to the
// owning organization, and carry at least one active role granting perm.
func (c *Checker) Authorize(signer string, perm Permission, recordOwner string) (*protocol.Agent, error) {
	agent, err := c.state.GetAgent(signer)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: no agent for public key %s", ErrSignerNotAuthorized, signer)
	}
	if !agent.Active {
		return nil, fmt.Errorf("%w: agent %s is inactive", ErrSignerNotAuthorized, signer)
	}

	if agent.OrgID != recordOwner {
		return nil, fmt.Errorf("%w: agent belongs to %s, record is owned by %s",
			ErrPermissionDenied, agent.OrgID, recordOwner)
	}

	for _, name := range agent.Roles {
		role, err := c.state.GetRole(agent.OrgID, name)
		if err != nil {
			return nil, err
		}
		if role == nil || !role.Active {
			continue
		}
		if role.HasPermission(string(perm)) {
			log.Debug().
				Str("signer", signer).
				Str("org_id", agent.OrgID).
				Str("role", name).
				Str("permission", string(perm)).
				Msg("authorized")
			return agent, nil
		}
	}

	return nil, fmt.Errorf("%w: agent %s lacks %s", ErrPermissionDenied, signer, perm)
}
