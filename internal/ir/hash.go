package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainExpression = "dynq/expression/v1"
	DomainType       = "dynq/type/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the domain-separated SHA-256 of v's canonical JSON.
func Hash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// TypeHash fingerprints a descriptor's shape. Two descriptors with the
// same id, kind and ordered fields hash identically.
func TypeHash(t *TypeDesc) string {
	fields := make(IRArray, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = IRArray{IRString(f.Name), IRString(string(f.Kind))}
	}
	obj := IRObject{
		"id":     IRString(string(t.ID)),
		"kind":   IRString(string(t.Kind)),
		"fields": fields,
	}
	// Cannot fail: every value above is a valid IRValue.
	h, _ := Hash(DomainType, obj)
	return h
}
