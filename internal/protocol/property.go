package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PropertyValue is a named, typed value attached to a batch record. Exactly
// one of the value fields is populated, matching DataType.
type PropertyValue struct {
	Name         string
	DataType     DataType
	BytesValue   []byte
	BooleanValue bool
	NumberValue  int64
	StringValue  string
	EnumValue    uint32
	StructValues []PropertyValue
}

// PropertyDefinition declares a property a schema allows: its name, type and
// whether every record in the namespace must carry it.
type PropertyDefinition struct {
	Name             string
	DataType         DataType
	Required         bool
	Description      string
	NumberExponent   int32
	EnumOptions      []string
	StructProperties []PropertyDefinition
}

func (p PropertyValue) appendTo(b []byte) []byte {
	if p.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, p.Name)
	}
	if p.DataType != DataTypeUnset {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.DataType))
	}
	if len(p.BytesValue) > 0 {
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendBytes(b, p.BytesValue)
	}
	if p.BooleanValue {
		b = protowire.AppendTag(b, 11, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if p.NumberValue != 0 {
		b = protowire.AppendTag(b, 12, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(p.NumberValue))
	}
	if p.StringValue != "" {
		b = protowire.AppendTag(b, 13, protowire.BytesType)
		b = protowire.AppendString(b, p.StringValue)
	}
	if p.EnumValue != 0 {
		b = protowire.AppendTag(b, 14, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.EnumValue))
	}
	for _, sv := range p.StructValues {
		b = protowire.AppendTag(b, 15, protowire.BytesType)
		b = protowire.AppendBytes(b, sv.appendTo(nil))
	}
	return b
}

func unmarshalPropertyValue(b []byte, wrap error) (PropertyValue, error) {
	var p PropertyValue
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("%w: bad tag in property value", wrap)
		}
		b = b[n:]
		switch num {
		case 1:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property value name", wrap)
			}
			p.Name = s
			b = b[n:]
		case 2:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property value data type", wrap)
			}
			p.DataType = DataType(v)
			b = b[n:]
		case 10:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property bytes value", wrap)
			}
			p.BytesValue = v
			b = b[n:]
		case 11:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property boolean value", wrap)
			}
			p.BooleanValue = v != 0
			b = b[n:]
		case 12:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property number value", wrap)
			}
			p.NumberValue = protowire.DecodeZigZag(v)
			b = b[n:]
		case 13:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property string value", wrap)
			}
			p.StringValue = s
			b = b[n:]
		case 14:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property enum value", wrap)
			}
			p.EnumValue = uint32(v)
			b = b[n:]
		case 15:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property struct value", wrap)
			}
			sv, err := unmarshalPropertyValue(v, wrap)
			if err != nil {
				return p, err
			}
			p.StructValues = append(p.StructValues, sv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("%w: unknown field %d in property value", wrap, num)
			}
			b = b[n:]
		}
	}
	return p, nil
}

func (p PropertyDefinition) appendTo(b []byte) []byte {
	if p.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, p.Name)
	}
	if p.DataType != DataTypeUnset {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.DataType))
	}
	if p.Required {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if p.Description != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, p.Description)
	}
	if p.NumberExponent != 0 {
		b = protowire.AppendTag(b, 10, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(p.NumberExponent)))
	}
	for _, opt := range p.EnumOptions {
		b = protowire.AppendTag(b, 11, protowire.BytesType)
		b = protowire.AppendString(b, opt)
	}
	for _, sp := range p.StructProperties {
		b = protowire.AppendTag(b, 12, protowire.BytesType)
		b = protowire.AppendBytes(b, sp.appendTo(nil))
	}
	return b
}

func unmarshalPropertyDefinition(b []byte, wrap error) (PropertyDefinition, error) {
	var p PropertyDefinition
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("%w: bad tag in property definition", wrap)
		}
		b = b[n:]
		switch num {
		case 1:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition name", wrap)
			}
			p.Name = s
			b = b[n:]
		case 2:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition data type", wrap)
			}
			p.DataType = DataType(v)
			b = b[n:]
		case 3:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition required flag", wrap)
			}
			p.Required = v != 0
			b = b[n:]
		case 4:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition description", wrap)
			}
			p.Description = s
			b = b[n:]
		case 10:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition number exponent", wrap)
			}
			p.NumberExponent = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		case 11:
			s, n, err := consumeString(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition enum option", wrap)
			}
			p.EnumOptions = append(p.EnumOptions, s)
			b = b[n:]
		case 12:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return p, fmt.Errorf("%w: property definition struct property", wrap)
			}
			sp, err := unmarshalPropertyDefinition(v, wrap)
			if err != nil {
				return p, err
			}
			p.StructProperties = append(p.StructProperties, sp)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("%w: unknown field %d in property definition", wrap, num)
			}
			b = b[n:]
		}
	}
	return p, nil
}

// MarshalPropertyValues encodes a bare property list, for storage outside a
// record message such as a replica row.
func MarshalPropertyValues(props []PropertyValue) []byte {
	var b []byte
	for _, pv := range props {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, pv.appendTo(nil))
	}
	return b
}

// UnmarshalPropertyValues parses a list encoded by MarshalPropertyValues.
func UnmarshalPropertyValues(b []byte) ([]PropertyValue, error) {
	var props []PropertyValue
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in property list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in property list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: property list entry", ErrMalformedState)
		}
		pv, err := unmarshalPropertyValue(v, ErrMalformedState)
		if err != nil {
			return nil, err
		}
		props = append(props, pv)
		b = b[n:]
	}
	return props, nil
}

// consume helpers enforce the expected wire type before decoding, so a
// payload with mismatched types fails to parse instead of yielding garbage.

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
