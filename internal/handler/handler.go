// Package handler implements the grid_mfg_batch transaction family: payload
// validation, Pike permission checks, schema enforcement and the atomic
// create, update and delete of batch records.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/sawtooth-sdk-go/processor"
	"github.com/hyperledger/sawtooth-sdk-go/protobuf/processor_pb2"
	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/addressing"
	"github.com/cargomesh/mfgbatch/internal/permissions"
	"github.com/cargomesh/mfgbatch/internal/protocol"
	"github.com/cargomesh/mfgbatch/internal/state"
	"github.com/cargomesh/mfgbatch/internal/telemetry"
)

const (
	familyName    = "grid_mfg_batch"
	familyVersion = "1"

	// gs1CompanyPrefixType is the Pike alternate id type an organization
	// must register before it can own GS1 batch records.
	gs1CompanyPrefixType = "gs1_company_prefix"
)

var (
	// ErrInvalidBatchID is returned when a batch id is not a well-formed
	// identifier for its namespace.
	ErrInvalidBatchID = errors.New("invalid batch id")

	// ErrInvalidTimestamp is returned when a payload carries a zero
	// timestamp.
	ErrInvalidTimestamp = errors.New("timestamp not set")

	// ErrUnsupportedNamespace is returned when a payload targets a
	// namespace the family does not support.
	ErrUnsupportedNamespace = errors.New("unsupported namespace")

	// ErrMissingOwner is returned when a create action carries no owner.
	ErrMissingOwner = errors.New("owner is required")

	// ErrOrganizationNotFound is returned when a create action names an
	// owner with no Pike organization record.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrMissingCompanyPrefix is returned when the owning organization has
	// not registered a GS1 company prefix alternate id.
	ErrMissingCompanyPrefix = errors.New("organization has no gs1_company_prefix alternate id")

	// ErrSchemaNotFound is returned when the namespace's property schema
	// is not in state.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrUnknownProperty is returned when a payload carries a property the
	// schema does not declare.
	ErrUnknownProperty = errors.New("property not declared by schema")

	// ErrTypeMismatch is returned when a property value does not match the
	// type the schema declares for it.
	ErrTypeMismatch = errors.New("property type mismatch")

	// ErrMissingRequiredProperty is returned when a payload omits a
	// property the schema marks required.
	ErrMissingRequiredProperty = errors.New("missing required property")

	// ErrRecordAlreadyExists is returned when a create action targets an
	// id that is already in state.
	ErrRecordAlreadyExists = errors.New("batch record already exists")

	// ErrRecordNotFound is returned when an update or delete targets an id
	// that is not in state.
	ErrRecordNotFound = errors.New("batch record not found")
)

// MfgBatchHandler is the transaction handler registered with the validator.
type MfgBatchHandler struct{}

// NewMfgBatchHandler returns the family handler.
func NewMfgBatchHandler() *MfgBatchHandler {
	return &MfgBatchHandler{}
}

// FamilyName returns the transaction family name.
func (h *MfgBatchHandler) FamilyName() string {
	return familyName
}

// FamilyVersions returns the payload versions the handler accepts.
func (h *MfgBatchHandler) FamilyVersions() []string {
	return []string{familyVersion}
}

// Namespaces returns the state prefixes the handler writes.
func (h *MfgBatchHandler) Namespaces() []string {
	return []string{addressing.GridNamespace}
}

// Apply executes one transaction against the validator context. Validation
// failures become InvalidTransactionError so the transaction is rejected;
// state faults become InternalError so the validator retries.
func (h *MfgBatchHandler) Apply(request *processor_pb2.TpProcessRequest, txnContext *processor.Context) error {
	m := telemetry.GetMetrics()
	bg := context.Background()
	started := time.Now()

	signer := request.GetHeader().GetSignerPublicKey()

	err := applyPayload(request.GetPayload(), signer, txnContext)

	m.ApplyDuration.Record(bg, float64(time.Since(started).Milliseconds()))

	if err != nil {
		if errors.Is(err, state.ErrStateUnavailable) {
			m.TransactionsFailedTotal.Add(bg, 1)
			log.Error().Err(err).Str("signer", signer).Msg("state unavailable")
			return &processor.InternalError{Msg: err.Error()}
		}
		m.TransactionsInvalidTotal.Add(bg, 1)
		log.Debug().Err(err).Str("signer", signer).Msg("invalid transaction")
		return &processor.InvalidTransactionError{Msg: err.Error()}
	}

	m.TransactionsAppliedTotal.Add(bg, 1)
	return nil
}

// applyPayload is the host-independent core of Apply. Tests drive it with a
// fake transaction context.
func applyPayload(raw []byte, signer string, ctx state.TransactionContext) error {
	payload, err := protocol.UnmarshalMfgBatchPayload(raw)
	if err != nil {
		return err
	}
	if payload.Timestamp == 0 {
		return ErrInvalidTimestamp
	}

	s := state.NewMfgBatchState(ctx)
	checker := permissions.NewChecker(s)

	switch payload.Action {
	case protocol.ActionCreate:
		return applyCreate(payload.Create, signer, s, checker)
	case protocol.ActionUpdate:
		return applyUpdate(payload.Update, signer, s, checker)
	case protocol.ActionDelete:
		return applyDelete(payload.Delete, signer, s, checker)
	default:
		return protocol.ErrUnsetAction
	}
}

func applyCreate(action *protocol.CreateAction, signer string, s *state.MfgBatchState, checker *permissions.Checker) error {
	if err := checkNamespace(action.Namespace); err != nil {
		return err
	}
	if action.MfgBatchID == "" {
		return fmt.Errorf("%w: batch id is empty", ErrInvalidBatchID)
	}
	if err := validateGTIN(action.MfgBatchID); err != nil {
		return err
	}
	if action.Owner == "" {
		return ErrMissingOwner
	}

	if _, err := checker.Authorize(signer, permissions.CanCreateMfgBatch, action.Owner); err != nil {
		return err
	}

	org, err := s.GetOrganization(action.Owner)
	if err != nil {
		return err
	}
	if org == nil {
		return fmt.Errorf("%w: %s", ErrOrganizationNotFound, action.Owner)
	}
	prefix, ok := org.AlternateIDByType(gs1CompanyPrefixType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingCompanyPrefix, action.Owner)
	}
	if !strings.Contains(action.MfgBatchID, prefix.ID) {
		return fmt.Errorf("%w: GTIN %s does not contain company prefix %s",
			ErrInvalidBatchID, action.MfgBatchID, prefix.ID)
	}

	existing, err := s.GetMfgBatch(action.MfgBatchID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrRecordAlreadyExists, action.MfgBatchID)
	}

	if err := validateProperties(action.Namespace, action.Properties, s); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", action.MfgBatchID).
		Str("owner", action.Owner).
		Str("namespace", action.Namespace.String()).
		Msg("creating batch record")

	return s.SetMfgBatch(protocol.MfgBatch{
		Namespace:  action.Namespace,
		MfgBatchID: action.MfgBatchID,
		Owner:      action.Owner,
		Properties: action.Properties,
	})
}

func applyUpdate(action *protocol.UpdateAction, signer string, s *state.MfgBatchState, checker *permissions.Checker) error {
	if err := checkNamespace(action.Namespace); err != nil {
		return err
	}
	if err := validateGTIN(action.MfgBatchID); err != nil {
		return err
	}

	existing, err := s.GetMfgBatch(action.MfgBatchID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, action.MfgBatchID)
	}

	if _, err := checker.Authorize(signer, permissions.CanUpdateMfgBatch, existing.Owner); err != nil {
		return err
	}

	if err := validateProperties(action.Namespace, action.Properties, s); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", action.MfgBatchID).
		Str("owner", existing.Owner).
		Msg("updating batch record")

	// Ownership is fixed at creation; the stored owner is carried forward
	// regardless of the payload.
	return s.SetMfgBatch(protocol.MfgBatch{
		Namespace:  action.Namespace,
		MfgBatchID: action.MfgBatchID,
		Owner:      existing.Owner,
		Properties: action.Properties,
	})
}

func applyDelete(action *protocol.DeleteAction, signer string, s *state.MfgBatchState, checker *permissions.Checker) error {
	if err := checkNamespace(action.Namespace); err != nil {
		return err
	}
	if err := validateGTIN(action.MfgBatchID); err != nil {
		return err
	}

	existing, err := s.GetMfgBatch(action.MfgBatchID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, action.MfgBatchID)
	}

	if _, err := checker.Authorize(signer, permissions.CanDeleteMfgBatch, existing.Owner); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", action.MfgBatchID).
		Str("owner", existing.Owner).
		Msg("deleting batch record")

	return s.RemoveMfgBatch(action.MfgBatchID)
}

func checkNamespace(ns protocol.Namespace) error {
	if ns != protocol.NamespaceGS1 {
		return fmt.Errorf("%w: %s", ErrUnsupportedNamespace, ns)
	}
	return nil
}

// validateProperties checks the payload's property list against the
// namespace's schema: every property must be declared, carry the declared
// type, and every required property must be present.
func validateProperties(ns protocol.Namespace, props []protocol.PropertyValue, s *state.MfgBatchState) error {
	schema, err := s.GetSchema(ns.SchemaName())
	if err != nil {
		return err
	}
	if schema == nil {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, ns.SchemaName())
	}

	seen := make(map[string]bool, len(props))
	for _, pv := range props {
		def, ok := schema.PropertyDefinitionByName(pv.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProperty, pv.Name)
		}
		if pv.DataType != def.DataType {
			return fmt.Errorf("%w: %s declared %s, got %s",
				ErrTypeMismatch, pv.Name, def.DataType, pv.DataType)
		}
		if err := checkValueVariant(pv); err != nil {
			return err
		}
		seen[pv.Name] = true
	}

	for _, def := range schema.Properties {
		if def.Required && !seen[def.Name] {
			return fmt.Errorf("%w: %s", ErrMissingRequiredProperty, def.Name)
		}
	}

	return nil
}

// checkValueVariant verifies that only the value field matching the declared
// data type is populated.
func checkValueVariant(pv protocol.PropertyValue) error {
	mismatch := func(field string) error {
		return fmt.Errorf("%w: %s carries a %s value but is declared %s",
			ErrTypeMismatch, pv.Name, field, pv.DataType)
	}

	if len(pv.BytesValue) > 0 && pv.DataType != protocol.DataTypeBytes {
		return mismatch("bytes")
	}
	if pv.BooleanValue && pv.DataType != protocol.DataTypeBoolean {
		return mismatch("boolean")
	}
	if pv.NumberValue != 0 && pv.DataType != protocol.DataTypeNumber {
		return mismatch("number")
	}
	if pv.StringValue != "" && pv.DataType != protocol.DataTypeString {
		return mismatch("string")
	}
	if pv.EnumValue != 0 && pv.DataType != protocol.DataTypeEnum {
		return mismatch("enum")
	}
	if len(pv.StructValues) > 0 && pv.DataType != protocol.DataTypeStruct {
		return mismatch("struct")
	}

	if pv.DataType == protocol.DataTypeStruct {
		for _, sv := range pv.StructValues {
			if err := checkValueVariant(sv); err != nil {
				return err
			}
		}
	}

	return nil
}
