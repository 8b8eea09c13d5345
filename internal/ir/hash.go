package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainResult   = "weft/result/v1"
	DomainSnapshot = "weft/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the domain-separated hash of v's canonical form.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, canonical), nil
}

// ResultHash identifies one node result by its node, value and trail.
// The wave and clock position are excluded, so the same computation in two
// runs hashes the same.
func ResultHash(node string, value any, trail any) (string, error) {
	h, err := Hash(DomainResult, map[string]any{
		"node":  node,
		"value": value,
		"trail": trail,
	})
	if err != nil {
		return "", fmt.Errorf("result hash: %w", err)
	}
	return h, nil
}

// SnapshotHash identifies a snapshot document.
func SnapshotHash(doc map[string]any) (string, error) {
	h, err := Hash(DomainSnapshot, doc)
	if err != nil {
		return "", fmt.Errorf("snapshot hash: %w", err)
	}
	return h, nil
}

// MustResultHash is like ResultHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustResultHash(node string, value any, trail any) string {
	h, err := ResultHash(node, value, trail)
	if err != nil {
		panic(err)
	}
	return h
}
