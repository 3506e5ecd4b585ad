package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent          = "capsale/event/v1"
	DomainAddress        = "capsale/address/v1"
	DomainNamedAddress   = "capsale/named-address/v1"
	DomainImplementation = "capsale/implementation/v1"
)

// digestWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func digestWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

func hashWithDomain(domain string, data []byte) string {
	return hex.EncodeToString(digestWithDomain(domain, data))
}

// EventID computes the content-addressed ID of an emitted event.
// Two events are identical only if they share transaction, position and payload.
func EventID(txID string, seq int64, emitter Address, name string, fields Object) (string, error) {
	obj := Object{
		"tx_id":   String(txID),
		"seq":     Int(seq),
		"emitter": String(emitter.String()),
		"name":    String(name),
		"fields":  fields,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEvent, canonical), nil
}

// ImplementationAddress derives the address that stands for an implementation
// name and version. Hosts compare it to decide upgrade compatibility.
func ImplementationAddress(name, version string) Address {
	return addressFromDigest(digestWithDomain(DomainImplementation, []byte(name+"@"+version)))
}
