package protocol

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// MfgBatch is the committed state of one manufacturing batch record.
type MfgBatch struct {
	Namespace  Namespace
	MfgBatchID string
	Owner      string
	Properties []PropertyValue
}

// MfgBatchList is the value stored at a batch address. Address derivation
// truncates a hash, so distinct batch ids can share an address; the list is
// the collision bucket, kept sorted by batch id so encoding is canonical.
type MfgBatchList struct {
	Entries []MfgBatch
}

// Schema is the per-namespace declaration of allowed properties.
type Schema struct {
	Name        string
	Description string
	Owner       string
	Properties  []PropertyDefinition
}

// SchemaList is the collision bucket stored at a schema address.
type SchemaList struct {
	Schemas []Schema
}

// PropertyDefinitionByName returns the schema's definition for name, or
// false when the schema does not declare it.
func (s *Schema) PropertyDefinitionByName(name string) (PropertyDefinition, bool) {
	for _, def := range s.Properties {
		if def.Name == name {
			return def, true
		}
	}
	return PropertyDefinition{}, false
}

// Marshal encodes a single batch record, for storage outside a list bucket
// such as the read-side replica.
func (m MfgBatch) Marshal() []byte {
	return m.appendTo(nil)
}

// UnmarshalMfgBatch parses a single encoded batch record.
func UnmarshalMfgBatch(b []byte) (MfgBatch, error) {
	return unmarshalMfgBatch(b)
}

func (m MfgBatch) appendTo(b []byte) []byte {
	if m.Namespace != NamespaceUnset {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Namespace))
	}
	if m.MfgBatchID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.MfgBatchID)
	}
	if m.Owner != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.Owner)
	}
	for _, pv := range m.Properties {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, pv.appendTo(nil))
	}
	return b
}

func unmarshalMfgBatch(b []byte) (MfgBatch, error) {
	var m MfgBatch
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, fmt.Errorf("%w: bad tag in batch record", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return m, fmt.Errorf("%w: batch namespace", ErrMalformedState)
			}
			m.Namespace = Namespace(v)
			b = b[n:]
		case 2:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return m, fmt.Errorf("%w: batch id", ErrMalformedState)
			}
			m.MfgBatchID = s
			b = b[n:]
		case 3:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return m, fmt.Errorf("%w: batch owner", ErrMalformedState)
			}
			m.Owner = s
			b = b[n:]
		case 4:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return m, fmt.Errorf("%w: batch property", ErrMalformedState)
			}
			pv, err := unmarshalPropertyValue(v, ErrMalformedState)
			if err != nil {
				return m, err
			}
			m.Properties = append(m.Properties, pv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, fmt.Errorf("%w: unknown field %d in batch record", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// Marshal encodes the list canonically, sorting entries by batch id first.
func (l *MfgBatchList) Marshal() []byte {
	sort.Slice(l.Entries, func(i, j int) bool {
		return l.Entries[i].MfgBatchID < l.Entries[j].MfgBatchID
	})
	var b []byte
	for _, e := range l.Entries {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, e.appendTo(nil))
	}
	return b
}

// UnmarshalMfgBatchList parses the state entry stored at a batch address.
func UnmarshalMfgBatchList(b []byte) (*MfgBatchList, error) {
	var l MfgBatchList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in batch list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in batch list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: batch list entry", ErrMalformedState)
		}
		e, err := unmarshalMfgBatch(v)
		if err != nil {
			return nil, err
		}
		l.Entries = append(l.Entries, e)
		b = b[n:]
	}
	return &l, nil
}

func (s Schema) appendTo(b []byte) []byte {
	if s.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, s.Name)
	}
	if s.Description != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, s.Description)
	}
	if s.Owner != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, s.Owner)
	}
	for _, def := range s.Properties {
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendBytes(b, def.appendTo(nil))
	}
	return b
}

func unmarshalSchema(b []byte) (Schema, error) {
	var s Schema
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, fmt.Errorf("%w: bad tag in schema", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return s, fmt.Errorf("%w: schema name", ErrMalformedState)
			}
			s.Name = v
			b = b[n:]
		case 2:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return s, fmt.Errorf("%w: schema description", ErrMalformedState)
			}
			s.Description = v
			b = b[n:]
		case 3:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return s, fmt.Errorf("%w: schema owner", ErrMalformedState)
			}
			s.Owner = v
			b = b[n:]
		case 10:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return s, fmt.Errorf("%w: schema property", ErrMalformedState)
			}
			def, err := unmarshalPropertyDefinition(v, ErrMalformedState)
			if err != nil {
				return s, err
			}
			s.Properties = append(s.Properties, def)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, fmt.Errorf("%w: unknown field %d in schema", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return s, nil
}

// Marshal encodes the schema list canonically, sorted by schema name.
func (l *SchemaList) Marshal() []byte {
	sort.Slice(l.Schemas, func(i, j int) bool {
		return l.Schemas[i].Name < l.Schemas[j].Name
	})
	var b []byte
	for _, s := range l.Schemas {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, s.appendTo(nil))
	}
	return b
}

// UnmarshalSchemaList parses the state entry stored at a schema address.
func UnmarshalSchemaList(b []byte) (*SchemaList, error) {
	var l SchemaList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in schema list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in schema list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: schema list entry", ErrMalformedState)
		}
		s, err := unmarshalSchema(v)
		if err != nil {
			return nil, err
		}
		l.Schemas = append(l.Schemas, s)
		b = b[n:]
	}
	return &l, nil
}
