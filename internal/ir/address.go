package ir

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in an Address.
const AddressLength = 20

// Address identifies an account or contract instance.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress parses the canonical form: "0x" followed by 40 lowercase
// hex digits. Uppercase digits and a "0X" prefix are rejected.
func ParseAddress(s string) (Address, error) {
	var a Address
	if !strings.HasPrefix(s, "0x") {
		return a, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	raw := s[2:]
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("address %q: want %d hex digits, got %d", s, AddressLength*2, len(raw))
	}
	if strings.ToLower(raw) != raw {
		return a, fmt.Errorf("address %q: hex digits must be lowercase", s)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return ZeroAddress, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or with constant inputs.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the lowercase 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

var _ json.Marshaler = Address{}

// MarshalJSON encodes the address as its hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// DeriveAddress computes the address of the nonce-th contract deployed by deployer.
// The result is stable across runs: SHA256(domain || 0x00 || canonical{deployer, nonce})[12:].
func DeriveAddress(deployer Address, nonce uint64) Address {
	obj := Object{
		"deployer": String(deployer.String()),
		"nonce":    String(fmt.Sprintf("%d", nonce)),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Object holds only strings; marshaling cannot fail.
		panic(fmt.Sprintf("DeriveAddress: %v", err))
	}
	return addressFromDigest(digestWithDomain(DomainAddress, canonical))
}

// NamedAddress derives a stable address from a human label.
// Scenarios and CLI examples use it so fixtures read as names, not hex.
func NamedAddress(name string) Address {
	return addressFromDigest(digestWithDomain(DomainNamedAddress, []byte(name)))
}

func addressFromDigest(sum []byte) Address {
	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}
