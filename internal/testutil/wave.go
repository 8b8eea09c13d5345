package testutil

import (
	"fmt"
	"sync"
)

// WaveCounter generates numbered wave tokens: "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden comparison: the same
// scenario run with a fresh WaveCounter produces identical wave tokens.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type WaveCounter struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewWaveCounter creates a wave token generator.
//
// If prefix is empty, tokens are "wave-1", "wave-2", ...
func NewWaveCounter(prefix string) *WaveCounter {
	if prefix == "" {
		prefix = "wave"
	}
	return &WaveCounter{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.WaveGenerator.
func (g *WaveCounter) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Count returns how many tokens were generated.
func (g *WaveCounter) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering at 1.
func (g *WaveCounter) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
