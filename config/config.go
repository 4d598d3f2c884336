// Package config implements the atomic swap holder for VerifierConfig: the
// verifier's single piece of genuinely shared mutable state besides the
// replay cache. Reads never block and never observe a torn value; a single
// mutex serializes writers, mirroring how a mining engine guards its rare
// thread-count update without making every hot-path call pay for a lock.
package config

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Verifier is the swappable server-side policy a near-stateless verifier
// checks submissions against.
type Verifier struct {
	TimeWindowSeconds uint32
	MinDifficulty     uint32
	MinRequiredProofs uint32
	ServerSecret      [32]byte
}

// ErrTimeWindowTooShort is returned by Holder.Set / NewHolder when
// TimeWindowSeconds is zero.
var ErrTimeWindowTooShort = errors.New("config: time_window_seconds must be >= 1")

// ErrInvalidConfig is returned when MinRequiredProofs is zero.
var ErrInvalidConfig = errors.New("config: min_required_proofs must be >= 1")

func validate(v Verifier) error {
	if v.TimeWindowSeconds == 0 {
		return ErrTimeWindowTooShort
	}
	if v.MinRequiredProofs == 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Holder is an atomic, left-right style holder for a Verifier config: Get is
// lock-free, Set is serialized against concurrent writers, and every
// in-flight Get observes one whole snapshot, never a mix of old and new
// fields.
type Holder struct {
	ptr atomic.Pointer[Verifier]
	wmu sync.Mutex
}

// NewHolder returns a Holder initialised to cfg.
func NewHolder(cfg Verifier) (*Holder, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	h := &Holder{}
	cp := cfg
	h.ptr.Store(&cp)
	return h, nil
}

// Get returns the current config snapshot. The returned pointer is never
// mutated in place; callers may retain it for the duration of one
// verification without risk of it changing underneath them.
func (h *Holder) Get() *Verifier {
	return h.ptr.Load()
}

// Set atomically replaces the current config. Concurrent readers observe
// either the entirely-old or entirely-new value.
func (h *Holder) Set(cfg Verifier) error {
	if err := validate(cfg); err != nil {
		return err
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	cp := cfg
	h.ptr.Store(&cp)
	return nil
}
