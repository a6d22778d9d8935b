// Package addressing derives the fixed-length state addresses used by the
// grid_mfg_batch transaction family. Every consumer of ledger state (the
// processor, the query layer, client SDKs) must derive addresses identically,
// so the functions here are pure over their string inputs.
package addressing

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

const (
	// GridNamespace is sha512("grid_mfg_batch")[:6], the six-character
	// family prefix registered with the validator.
	GridNamespace = "11bb0e"

	// MfgBatchPrefix scopes batch records inside the family namespace.
	MfgBatchPrefix = "01"

	// SchemaPrefix scopes property schema entries inside the family namespace.
	SchemaPrefix = "02"

	// GridMfgBatchNamespace is the full batch record prefix.
	GridMfgBatchNamespace = GridNamespace + MfgBatchPrefix

	// PikeNamespace is the prefix of the identity family whose agent,
	// organization and role state this processor reads.
	PikeNamespace = "cad11d"

	pikeAgentPrefix = "00"
	pikeOrgPrefix   = "01"
	pikeRolePrefix  = "02"

	// AddressLength is the fixed length of every ledger address, in hex
	// characters.
	AddressLength = 70
)

// MfgBatchAddress computes the state address of a GS1 batch record. The
// layout mirrors the family's registered scheme: family prefix, batch
// prefix, GS1 namespace marker, zero padding, then the GTIN zero-padded to
// fourteen digits.
func MfgBatchAddress(gtin string) string {
	return GridNamespace +
		MfgBatchPrefix +
		"01" +
		"00000000000000000000000000000000000000000000" +
		fmt.Sprintf("%014s", gtin) +
		"00"
}

// SchemaAddress computes the state address of the named property schema.
func SchemaAddress(name string) string {
	return GridNamespace + SchemaPrefix + hashPrefix(name)
}

// AgentAddress computes the Pike state address of an agent, keyed by the
// agent's public key.
func AgentAddress(publicKey string) string {
	return PikeNamespace + pikeAgentPrefix + hashPrefix(publicKey)
}

// OrganizationAddress computes the Pike state address of an organization.
func OrganizationAddress(orgID string) string {
	return PikeNamespace + pikeOrgPrefix + hashPrefix(orgID)
}

// RoleAddress computes the Pike state address of a role owned by an
// organization.
func RoleAddress(orgID, name string) string {
	return PikeNamespace + pikeRolePrefix + hashPrefix(orgID+"."+name)
}

// hashPrefix returns the first 62 hex characters of the SHA-512 digest of
// key, filling the remainder of a 70-character address after an 8-character
// prefix.
func hashPrefix(key string) string {
	sum := sha512.Sum512([]byte(key))
	return hex.EncodeToString(sum[:])[:62]
}
