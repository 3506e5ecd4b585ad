package ir

import "fmt"

// Capability names an authorization checked by a registry before a gated
// operation proceeds.
type Capability string

const (
	// MintCapability lets the grantee mint the asset it is granted on.
	MintCapability Capability = "MINT_PERMISSION"

	// ConfigureCapability lets the grantee change a sale engine's configuration.
	ConfigureCapability Capability = "CONFIGURE_SALE_PERMISSION"
)

// Operation is the direction of a registry mutation.
type Operation string

const (
	OpGrant  Operation = "grant"
	OpRevoke Operation = "revoke"
)

// PermissionGrant is a single registry mutation: Op the Capability on
// resource Where to grantee Who.
type PermissionGrant struct {
	Op         Operation  `json:"op"`
	Where      Address    `json:"where"`
	Who        Address    `json:"who"`
	Capability Capability `json:"capability"`
}

// Inverse returns the same triple with the operation flipped.
func (g PermissionGrant) Inverse() PermissionGrant {
	inv := g
	if g.Op == OpGrant {
		inv.Op = OpRevoke
	} else {
		inv.Op = OpGrant
	}
	return inv
}

// SameTarget reports whether both grants name the same
// (where, who, capability) triple, regardless of operation.
func (g PermissionGrant) SameTarget(other PermissionGrant) bool {
	return g.Where == other.Where && g.Who == other.Who && g.Capability == other.Capability
}

func (g PermissionGrant) String() string {
	return fmt.Sprintf("%s(%s, %s, %s)", g.Op, g.Where, g.Who, g.Capability)
}

// Fields renders the grant as an Object for canonical encoding.
func (g PermissionGrant) Fields() Object {
	return Object{
		"op":         String(g.Op),
		"where":      AddressValue(g.Where),
		"who":        AddressValue(g.Who),
		"capability": String(g.Capability),
	}
}

// UnauthorizedError reports that Who lacks Capability on Where.
// Registries return it from authorization checks; callers surface it unchanged.
type UnauthorizedError struct {
	Where      Address
	Who        Address
	Capability Capability
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s lacks %s on %s", e.Who, e.Capability, e.Where)
}
