// Package state reads and writes grid_mfg_batch ledger entries through a
// validator-supplied transaction context. All addressing, list-bucket
// handling and decoding lives here so the handler only deals in records.
package state

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/addressing"
	"github.com/cargomesh/mfgbatch/internal/protocol"
)

var (
	// ErrStateUnavailable is returned when the validator cannot serve a
	// state request. It signals a transient host fault, not an invalid
	// transaction, and must abort processing rather than reject the
	// transaction.
	ErrStateUnavailable = errors.New("state unavailable")
)

// TransactionContext is the slice of the validator context the state layer
// needs. *processor.Context from the Sawtooth SDK satisfies it; tests use a
// map-backed fake.
type TransactionContext interface {
	GetState(addresses []string) (map[string][]byte, error)
	SetState(pairs map[string][]byte) ([]string, error)
	DeleteState(addresses []string) ([]string, error)
}

// MfgBatchState wraps a transaction context for the duration of one apply.
type MfgBatchState struct {
	ctx TransactionContext
}

// NewMfgBatchState returns a state view over ctx.
func NewMfgBatchState(ctx TransactionContext) *MfgBatchState {
	return &MfgBatchState{ctx: ctx}
}

func (s *MfgBatchState) getEntry(address string) ([]byte, error) {
	entries, err := s.ctx.GetState([]string{address})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return entries[address], nil
}

// GetMfgBatch returns the batch record with the given id, or nil when no
// record exists. Distinct ids can hash to the same address, so the bucket is
// scanned for an exact id match.
func (s *MfgBatchState) GetMfgBatch(batchID string) (*protocol.MfgBatch, error) {
	address := addressing.MfgBatchAddress(batchID)

	entry, err := s.getEntry(address)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	list, err := protocol.UnmarshalMfgBatchList(entry)
	if err != nil {
		return nil, err
	}
	for i := range list.Entries {
		if list.Entries[i].MfgBatchID == batchID {
			return &list.Entries[i], nil
		}
	}
	return nil, nil
}

// SetMfgBatch writes the record into its address bucket, replacing any
// existing entry with the same id.
func (s *MfgBatchState) SetMfgBatch(batch protocol.MfgBatch) error {
	address := addressing.MfgBatchAddress(batch.MfgBatchID)

	entry, err := s.getEntry(address)
	if err != nil {
		return err
	}

	list := &protocol.MfgBatchList{}
	if entry != nil {
		list, err = protocol.UnmarshalMfgBatchList(entry)
		if err != nil {
			return err
		}
	}

	replaced := false
	for i := range list.Entries {
		if list.Entries[i].MfgBatchID == batch.MfgBatchID {
			list.Entries[i] = batch
			replaced = true
			break
		}
	}
	if !replaced {
		list.Entries = append(list.Entries, batch)
	}

	addresses, err := s.ctx.SetState(map[string][]byte{address: list.Marshal()})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	if len(addresses) == 0 {
		return fmt.Errorf("%w: no addresses written", ErrStateUnavailable)
	}

	log.Debug().Str("address", address).Str("batch_id", batch.MfgBatchID).Msg("wrote batch record")

	return nil
}

// RemoveMfgBatch deletes the record with the given id from its bucket. When
// the bucket still holds other records the trimmed list is written back;
// when it empties the whole state entry is deleted.
func (s *MfgBatchState) RemoveMfgBatch(batchID string) error {
	address := addressing.MfgBatchAddress(batchID)

	entry, err := s.getEntry(address)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	list, err := protocol.UnmarshalMfgBatchList(entry)
	if err != nil {
		return err
	}

	kept := list.Entries[:0]
	for _, e := range list.Entries {
		if e.MfgBatchID != batchID {
			kept = append(kept, e)
		}
	}
	list.Entries = kept

	if len(list.Entries) == 0 {
		addresses, err := s.ctx.DeleteState([]string{address})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateUnavailable, err)
		}
		if len(addresses) == 0 {
			return fmt.Errorf("%w: no addresses deleted", ErrStateUnavailable)
		}
		log.Debug().Str("address", address).Str("batch_id", batchID).Msg("deleted batch entry")
		return nil
	}

	addresses, err := s.ctx.SetState(map[string][]byte{address: list.Marshal()})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	if len(addresses) == 0 {
		return fmt.Errorf("%w: no addresses written", ErrStateUnavailable)
	}

	log.Debug().Str("address", address).Str("batch_id", batchID).Msg("removed batch from bucket")

	return nil
}

// GetAgent returns the Pike agent registered for the public key, or nil when
// none exists.
func (s *MfgBatchState) GetAgent(publicKey string) (*protocol.Agent, error) {
	entry, err := s.getEntry(addressing.AgentAddress(publicKey))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	list, err := protocol.UnmarshalAgentList(entry)
	if err != nil {
		return nil, err
	}
	for i := range list.Agents {
		if list.Agents[i].PublicKey == publicKey {
			return &list.Agents[i], nil
		}
	}
	return nil, nil
}

// GetOrganization returns the Pike organization with the given id, or nil
// when none exists.
func (s *MfgBatchState) GetOrganization(orgID string) (*protocol.Organization, error) {
	entry, err := s.getEntry(addressing.OrganizationAddress(orgID))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	list, err := protocol.UnmarshalOrganizationList(entry)
	if err != nil {
		return nil, err
	}
	for i := range list.Organizations {
		if list.Organizations[i].OrgID == orgID {
			return &list.Organizations[i], nil
		}
	}
	return nil, nil
}

// GetRole returns the Pike role named name in the organization, or nil when
// none exists.
func (s *MfgBatchState) GetRole(orgID, name string) (*protocol.Role, error) {
	entry, err := s.getEntry(addressing.RoleAddress(orgID, name))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	list, err := protocol.UnmarshalRoleList(entry)
	if err != nil {
		return nil, err
	}
	for i := range list.Roles {
		if list.Roles[i].OrgID == orgID && list.Roles[i].Name == name {
			return &list.Roles[i], nil
		}
	}
	return nil, nil
}

// GetSchema returns the property schema with the given name, or nil when
// none exists.
func (s *MfgBatchState) GetSchema(name string) (*protocol.Schema, error) {
	entry, err := s.getEntry(addressing.SchemaAddress(name))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	list, err := protocol.UnmarshalSchemaList(entry)
	if err != nil {
		return nil, err
	}
	for i := range list.Schemas {
		if list.Schemas[i].Name == name {
			return &list.Schemas[i], nil
		}
	}
	return nil, nil
}
