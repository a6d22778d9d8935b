package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Action discriminates the operation a payload requests.
type Action int32

const (
	ActionUnset Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "MFG_BATCH_CREATE"
	case ActionUpdate:
		return "MFG_BATCH_UPDATE"
	case ActionDelete:
		return "MFG_BATCH_DELETE"
	default:
		return "UNSET_ACTION"
	}
}

// MfgBatchPayload is the decoded transaction payload envelope. Exactly one
// of Create, Update or Delete is non-nil, matching Action.
type MfgBatchPayload struct {
	Action    Action
	Timestamp uint64
	Create    *CreateAction
	Update    *UpdateAction
	Delete    *DeleteAction
}

// CreateAction requests creation of a new batch record.
type CreateAction struct {
	Namespace  Namespace
	MfgBatchID string
	Owner      string
	Properties []PropertyValue
}

// UpdateAction requests a wholesale replacement of a record's property list.
// It carries no owner: ownership is fixed at creation.
type UpdateAction struct {
	Namespace  Namespace
	MfgBatchID string
	Properties []PropertyValue
}

// DeleteAction requests removal of a batch record.
type DeleteAction struct {
	Namespace  Namespace
	MfgBatchID string
}

// UnmarshalMfgBatchPayload parses raw transaction payload bytes. It fails
// with ErrUnsetAction when the action discriminator is zero and with
// ErrMalformedPayload when the bytes do not parse or the action's
// sub-message is missing.
func UnmarshalMfgBatchPayload(b []byte) (*MfgBatchPayload, error) {
	var p MfgBatchPayload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag", ErrMalformedPayload)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: action", ErrMalformedPayload)
			}
			p.Action = Action(v)
			b = b[n:]
		case 2:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: timestamp", ErrMalformedPayload)
			}
			p.Timestamp = v
			b = b[n:]
		case 3:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: create action", ErrMalformedPayload)
			}
			create, err := unmarshalCreateAction(v)
			if err != nil {
				return nil, err
			}
			p.Create = create
			b = b[n:]
		case 4:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: update action", ErrMalformedPayload)
			}
			update, err := unmarshalUpdateAction(v)
			if err != nil {
				return nil, err
			}
			p.Update = update
			b = b[n:]
		case 5:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: delete action", ErrMalformedPayload)
			}
			del, err := unmarshalDeleteAction(v)
			if err != nil {
				return nil, err
			}
			p.Delete = del
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d", ErrMalformedPayload, num)
			}
			b = b[n:]
		}
	}

	switch p.Action {
	case ActionCreate:
		if p.Create == nil {
			return nil, fmt.Errorf("%w: create action message missing", ErrMalformedPayload)
		}
	case ActionUpdate:
		if p.Update == nil {
			return nil, fmt.Errorf("%w: update action message missing", ErrMalformedPayload)
		}
	case ActionDelete:
		if p.Delete == nil {
			return nil, fmt.Errorf("%w: delete action message missing", ErrMalformedPayload)
		}
	default:
		return nil, ErrUnsetAction
	}
	return &p, nil
}

// Marshal encodes the payload canonically. Used by tests and by client-side
// tooling that builds transactions.
func (p *MfgBatchPayload) Marshal() []byte {
	var b []byte
	if p.Action != ActionUnset {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Action))
	}
	if p.Timestamp != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, p.Timestamp)
	}
	if p.Create != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Create.appendTo(nil))
	}
	if p.Update != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Update.appendTo(nil))
	}
	if p.Delete != nil {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Delete.appendTo(nil))
	}
	return b
}

func (a *CreateAction) appendTo(b []byte) []byte {
	if a.Namespace != NamespaceUnset {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Namespace))
	}
	if a.MfgBatchID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, a.MfgBatchID)
	}
	if a.Owner != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, a.Owner)
	}
	for _, pv := range a.Properties {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, pv.appendTo(nil))
	}
	return b
}

func unmarshalCreateAction(b []byte) (*CreateAction, error) {
	var a CreateAction
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in create action", ErrMalformedPayload)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: create namespace", ErrMalformedPayload)
			}
			a.Namespace = Namespace(v)
			b = b[n:]
		case 2:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: create batch id", ErrMalformedPayload)
			}
			a.MfgBatchID = s
			b = b[n:]
		case 3:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: create owner", ErrMalformedPayload)
			}
			a.Owner = s
			b = b[n:]
		case 4:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: create property", ErrMalformedPayload)
			}
			pv, err := unmarshalPropertyValue(v, ErrMalformedPayload)
			if err != nil {
				return nil, err
			}
			a.Properties = append(a.Properties, pv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in create action", ErrMalformedPayload, num)
			}
			b = b[n:]
		}
	}
	return &a, nil
}

func (a *UpdateAction) appendTo(b []byte) []byte {
	if a.Namespace != NamespaceUnset {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Namespace))
	}
	if a.MfgBatchID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, a.MfgBatchID)
	}
	for _, pv := range a.Properties {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, pv.appendTo(nil))
	}
	return b
}

func unmarshalUpdateAction(b []byte) (*UpdateAction, error) {
	var a UpdateAction
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in update action", ErrMalformedPayload)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: update namespace", ErrMalformedPayload)
			}
			a.Namespace = Namespace(v)
			b = b[n:]
		case 2:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: update batch id", ErrMalformedPayload)
			}
			a.MfgBatchID = s
			b = b[n:]
		case 3:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: update property", ErrMalformedPayload)
			}
			pv, err := unmarshalPropertyValue(v, ErrMalformedPayload)
			if err != nil {
				return nil, err
			}
			a.Properties = append(a.Properties, pv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in update action", ErrMalformedPayload, num)
			}
			b = b[n:]
		}
	}
	return &a, nil
}

func (a *DeleteAction) appendTo(b []byte) []byte {
	if a.Namespace != NamespaceUnset {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Namespace))
	}
	if a.MfgBatchID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, a.MfgBatchID)
	}
	return b
}

func unmarshalDeleteAction(b []byte) (*DeleteAction, error) {
	var a DeleteAction
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in delete action", ErrMalformedPayload)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: delete namespace", ErrMalformedPayload)
			}
			a.Namespace = Namespace(v)
			b = b[n:]
		case 2:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return nil, fmt.Errorf("%w: delete batch id", ErrMalformedPayload)
			}
			a.MfgBatchID = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in delete action", ErrMalformedPayload, num)
			}
			b = b[n:]
		}
	}
	return &a, nil
}
