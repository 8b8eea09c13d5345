// Package ir provides the canonical value representation used to store and
// hash node results and engine snapshots.
//
// Node callables return arbitrary Go values. Before a value is persisted it
// is converted to a Value tree (FromGo), rendered as canonical JSON
// (MarshalCanonical) and hashed with a domain-separated SHA-256. Decoding
// goes the other way with Decode, which restores integral numbers as int.
//
// ir imports nothing internal, so every other package may import it.
//
// Key design constraints:
//   - Object keys are ordered by UTF-16 code units, strings are NFC normalized
//   - Floats are allowed but NaN and infinities are rejected
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
