// Package meter implements the small exponentially-decaying rate counter
// the solver and KPoW engine expose as Hashrate(). It mirrors the shape of a
// mining engine's hashrate meter (Mark(n) on every batch, Rate() read
// concurrently by callers) without pulling in a full metrics library: the
// teacher's own hashrate field is backed by an internal package of its host
// repo, not an importable third-party dependency, so there is nothing in
// the retrieved corpus to wire in for this one counter.
package meter

import (
	"math"
	"sync"
	"time"
)

// halfLife is the EWMA decay window: a burst of hashes 5 seconds old has
// roughly half the weight of one just observed.
const halfLife = 5 * time.Second

// Meter is a thread-safe exponentially-decaying rate counter.
type Meter struct {
	mu   sync.Mutex
	rate float64
	last time.Time
}

// Mark records n events having just occurred.
func (m *Meter) Mark(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.last.IsZero() {
		m.last = now
		m.rate = float64(n)
		return
	}
	elapsed := now.Sub(m.last)
	m.last = now
	if elapsed <= 0 {
		return
	}
	decay := math.Exp(-elapsed.Seconds() / (halfLife.Seconds() / math.Ln2))
	instant := float64(n) / elapsed.Seconds()
	m.rate = m.rate*decay + instant*(1-decay)
}

// Rate returns the current decayed events-per-second estimate.
func (m *Meter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}
