package engine

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock stamps audits with strictly increasing sequence numbers. Seq orders
// results in the store and in snapshots without relying on wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock positioned at start, so the first Next is
// start+1. Restore uses it to keep new audits after the restored ones.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new position.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last position handed out, 0 for a fresh clock.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// WaveGenerator produces the token that identifies one top-level Run.
// Aggregate joins key their batches by this token, so results from two
// separate runs are never combined.
type WaveGenerator interface {
	Generate() string
}

// UUIDv7Generator draws time-sortable UUIDv7 wave tokens. The zero value
// is ready to use.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
