package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Pike identity state. This processor only reads these messages; the Pike
// contract owns their mutation. The decode paths are strict, the encode
// paths exist for tests and tooling.

// Agent maps a signing public key to an organization and a role set.
type Agent struct {
	OrgID     string
	PublicKey string
	Active    bool
	Roles     []string
}

// AgentList is the collision bucket stored at an agent address.
type AgentList struct {
	Agents []Agent
}

// AlternateID is an additional identifier attached to an organization, such
// as its registered GS1 company prefix.
type AlternateID struct {
	IDType string
	ID     string
}

// Organization groups agents and owns records and roles.
type Organization struct {
	OrgID        string
	Name         string
	Locations    []string
	AlternateIDs []AlternateID
}

// OrganizationList is the collision bucket stored at an organization address.
type OrganizationList struct {
	Organizations []Organization
}

// Role names a set of permission strings granted by an organization.
type Role struct {
	OrgID       string
	Name        string
	Description string
	Permissions []string
	Active      bool
}

// RoleList is the collision bucket stored at a role address.
type RoleList struct {
	Roles []Role
}

// AlternateIDByType returns the organization's alternate id of the given
// type, or false when none is registered.
func (o *Organization) AlternateIDByType(idType string) (AlternateID, bool) {
	for _, alt := range o.AlternateIDs {
		if alt.IDType == idType {
			return alt, true
		}
	}
	return AlternateID{}, false
}

// HasPermission reports whether the role grants the permission string.
func (r *Role) HasPermission(perm string) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

func (a Agent) appendTo(b []byte) []byte {
	if a.OrgID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, a.OrgID)
	}
	if a.PublicKey != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, a.PublicKey)
	}
	if a.Active {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	for _, r := range a.Roles {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, r)
	}
	return b
}

func unmarshalAgent(b []byte) (Agent, error) {
	var a Agent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return a, fmt.Errorf("%w: bad tag in agent", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return a, fmt.Errorf("%w: agent org id", ErrMalformedState)
			}
			a.OrgID = v
			b = b[n:]
		case 2:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return a, fmt.Errorf("%w: agent public key", ErrMalformedState)
			}
			a.PublicKey = v
			b = b[n:]
		case 3:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return a, fmt.Errorf("%w: agent active flag", ErrMalformedState)
			}
			a.Active = v != 0
			b = b[n:]
		case 4:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return a, fmt.Errorf("%w: agent role", ErrMalformedState)
			}
			a.Roles = append(a.Roles, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return a, fmt.Errorf("%w: unknown field %d in agent", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return a, nil
}

// Marshal encodes the agent list. Buckets are written by the Pike contract;
// this encoder exists for test fixtures.
func (l *AgentList) Marshal() []byte {
	var b []byte
	for _, a := range l.Agents {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, a.appendTo(nil))
	}
	return b
}

// UnmarshalAgentList parses the state entry stored at an agent address.
func UnmarshalAgentList(b []byte) (*AgentList, error) {
	var l AgentList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in agent list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in agent list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: agent list entry", ErrMalformedState)
		}
		a, err := unmarshalAgent(v)
		if err != nil {
			return nil, err
		}
		l.Agents = append(l.Agents, a)
		b = b[n:]
	}
	return &l, nil
}

func (alt AlternateID) appendTo(b []byte) []byte {
	if alt.IDType != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, alt.IDType)
	}
	if alt.ID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, alt.ID)
	}
	return b
}

func unmarshalAlternateID(b []byte) (AlternateID, error) {
	var alt AlternateID
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return alt, fmt.Errorf("%w: bad tag in alternate id", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return alt, fmt.Errorf("%w: alternate id type", ErrMalformedState)
			}
			alt.IDType = v
			b = b[n:]
		case 2:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return alt, fmt.Errorf("%w: alternate id value", ErrMalformedState)
			}
			alt.ID = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return alt, fmt.Errorf("%w: unknown field %d in alternate id", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return alt, nil
}

func (o Organization) appendTo(b []byte) []byte {
	if o.OrgID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, o.OrgID)
	}
	if o.Name != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, o.Name)
	}
	for _, loc := range o.Locations {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, loc)
	}
	for _, alt := range o.AlternateIDs {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, alt.appendTo(nil))
	}
	return b
}

func unmarshalOrganization(b []byte) (Organization, error) {
	var o Organization
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return o, fmt.Errorf("%w: bad tag in organization", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return o, fmt.Errorf("%w: organization id", ErrMalformedState)
			}
			o.OrgID = v
			b = b[n:]
		case 2:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return o, fmt.Errorf("%w: organization name", ErrMalformedState)
			}
			o.Name = v
			b = b[n:]
		case 3:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return o, fmt.Errorf("%w: organization location", ErrMalformedState)
			}
			o.Locations = append(o.Locations, v)
			b = b[n:]
		case 4:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return o, fmt.Errorf("%w: organization alternate id", ErrMalformedState)
			}
			alt, err := unmarshalAlternateID(v)
			if err != nil {
				return o, err
			}
			o.AlternateIDs = append(o.AlternateIDs, alt)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return o, fmt.Errorf("%w: unknown field %d in organization", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return o, nil
}

// Marshal encodes the organization list, for test fixtures.
func (l *OrganizationList) Marshal() []byte {
	var b []byte
	for _, o := range l.Organizations {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, o.appendTo(nil))
	}
	return b
}

// UnmarshalOrganizationList parses the state entry stored at an organization
// address.
func UnmarshalOrganizationList(b []byte) (*OrganizationList, error) {
	var l OrganizationList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in organization list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in organization list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: organization list entry", ErrMalformedState)
		}
		o, err := unmarshalOrganization(v)
		if err != nil {
			return nil, err
		}
		l.Organizations = append(l.Organizations, o)
		b = b[n:]
	}
	return &l, nil
}

func (r Role) appendTo(b []byte) []byte {
	if r.OrgID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, r.OrgID)
	}
	if r.Name != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, r.Name)
	}
	if r.Description != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, r.Description)
	}
	for _, p := range r.Permissions {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	if r.Active {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func unmarshalRole(b []byte) (Role, error) {
	var r Role
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("%w: bad tag in role", ErrMalformedState)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return r, fmt.Errorf("%w: role org id", ErrMalformedState)
			}
			r.OrgID = v
			b = b[n:]
		case 2:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return r, fmt.Errorf("%w: role name", ErrMalformedState)
			}
			r.Name = v
			b = b[n:]
		case 3:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return r, fmt.Errorf("%w: role description", ErrMalformedState)
			}
			r.Description = v
			b = b[n:]
		case 4:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return r, fmt.Errorf("%w: role permission", ErrMalformedState)
			}
			r.Permissions = append(r.Permissions, v)
			b = b[n:]
		case 5:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return r, fmt.Errorf("%w: role active flag", ErrMalformedState)
			}
			r.Active = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("%w: unknown field %d in role", ErrMalformedState, num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// Marshal encodes the role list, for test fixtures.
func (l *RoleList) Marshal() []byte {
	var b []byte
	for _, r := range l.Roles {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, r.appendTo(nil))
	}
	return b
}

// UnmarshalRoleList parses the state entry stored at a role address.
func UnmarshalRoleList(b []byte) (*RoleList, error) {
	var l RoleList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in role list", ErrMalformedState)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unknown field %d in role list", ErrMalformedState, num)
			}
			b = b[n:]
			continue
		}
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return nil, fmt.Errorf("%w: role list entry", ErrMalformedState)
		}
		r, err := unmarshalRole(v)
		if err != nil {
			return nil, err
		}
		l.Roles = append(l.Roles, r)
		b = b[n:]
	}
	return &l, nil
}
