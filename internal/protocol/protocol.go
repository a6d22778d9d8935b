// Package protocol defines the wire messages of the grid_mfg_batch
// transaction family: the transaction payload envelope, batch record state,
// property schemas, and the read-only Pike identity messages.
//
// Messages are encoded as protobuf (field numbers are declared in api/proto
// and fixed forever) using a canonical form: fields are emitted in ascending
// field-number order and zero values are omitted. Every validator that
// replays a transaction must produce byte-identical state, so the encoder is
// hand-rolled on protowire instead of depending on generated marshalers.
package protocol

import "errors"

var (
	// ErrMalformedPayload is returned when payload bytes do not parse
	// against the declared message schema.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnsetAction is returned when a payload carries the zero action
	// discriminator.
	ErrUnsetAction = errors.New("payload action is unset")

	// ErrMalformedState is returned when a state entry does not parse.
	// State is only ever written by this processor, so this indicates
	// corruption or a version skew, not a client mistake.
	ErrMalformedState = errors.New("malformed state entry")
)

// DataType enumerates the primitive types a property value may carry.
type DataType int32

const (
	DataTypeUnset DataType = iota
	DataTypeBytes
	DataTypeBoolean
	DataTypeNumber
	DataTypeString
	DataTypeEnum
	DataTypeStruct
)

func (d DataType) String() string {
	switch d {
	case DataTypeBytes:
		return "BYTES"
	case DataTypeBoolean:
		return "BOOLEAN"
	case DataTypeNumber:
		return "NUMBER"
	case DataTypeString:
		return "STRING"
	case DataTypeEnum:
		return "ENUM"
	case DataTypeStruct:
		return "STRUCT"
	default:
		return "UNSET"
	}
}

// Namespace tags the classification partition a batch record belongs to.
// The namespace selects the property schema and permission rules that apply.
type Namespace int32

const (
	NamespaceUnset Namespace = iota
	NamespaceGS1
)

func (n Namespace) String() string {
	if n == NamespaceGS1 {
		return "GS1"
	}
	return "UNSET"
}

// SchemaName returns the name of the property schema governing records in
// this namespace.
func (n Namespace) SchemaName() string {
	if n == NamespaceGS1 {
		return "gs1_mfg_batch"
	}
	return ""
}
