// Package replay implements the pluggable TTL set of client_nonces the
// near-stateless verifier consults to reject resubmitted proof bundles.
//
// The shape — a map keyed by an opaque client-supplied value, storing an
// expiry, with a periodic sweep goroutine — is the same one the JeddyMaster
// pow.Service uses for its activeChallenges sync.Map; we generalize it to a
// capacity-bounded LRU (hashicorp/golang-lru) so a hostile client can't grow
// the cache without bound, and make capacity evictions an observable
// counter for auditability.
package replay

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Outcome is the result of an InsertIfAbsent call.
type Outcome int

const (
	// Inserted means key was not present and is now recorded.
	Inserted Outcome = iota
	// Present means key was already recorded and not yet expired.
	Present
)

// Cache is the capability interface the verifier depends on. Callers pass
// their own notion of "now" (from the verifier's injected clock.Clock)
// rather than the cache reading the wall clock itself, so liveness checks
// stay correct under a fake clock exactly like every other time-sensitive
// check in this module.
type Cache interface {
	// InsertIfAbsent records key with the given expiry if and only if key
	// is not already present and live as of now; returns Present if key
	// was already live.
	InsertIfAbsent(key [32]byte, expiresAt time.Time, now time.Time) Outcome
	// Unreserve removes key, used by verifiers that insert speculatively
	// before cryptographic verification and need to back out on failure.
	Unreserve(key [32]byte)
	// Purge opportunistically drops entries expired as of now;
	// implementations may also do this lazily on InsertIfAbsent.
	Purge(now time.Time)
}

type entry struct {
	expiresAt time.Time
}

// LRU is the default in-memory Cache: a bounded LRU map of client_nonce to
// expiry. Capacity evictions (which degrade replay protection by forgetting
// about a still-live nonce under memory pressure) are counted and exposed
// via Evictions so operators can alert on them.
type LRU struct {
	mu      sync.Mutex
	cache   *lru.Cache[[32]byte, entry]
	evicted uint64
}

// NewLRU returns an LRU-backed Cache bounded to capacity entries. Capacity
// must be >= 1.
func NewLRU(capacity int) *LRU {
	l := &LRU{}
	c, err := lru.NewWithEvict[[32]byte, entry](capacity, func(_ [32]byte, _ entry) {
		l.mu.Lock()
		l.evicted++
		l.mu.Unlock()
	})
	if err != nil {
		// capacity <= 0; surface a usable cache of size 1 rather than a
		// nil cache that panics on first use, since Cache has no
		// constructor-time error return in its interface.
		c, _ = lru.NewWithEvict[[32]byte, entry](1, func(_ [32]byte, _ entry) {
			l.mu.Lock()
			l.evicted++
			l.mu.Unlock()
		})
	}
	l.cache = c
	return l
}

// Evictions reports the number of entries dropped due to capacity pressure
// rather than TTL expiry, since those represent weakened replay protection.
func (l *LRU) Evictions() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

func (l *LRU) InsertIfAbsent(key [32]byte, expiresAt time.Time, now time.Time) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.cache.Peek(key); ok {
		if now.Before(e.expiresAt) {
			return Present
		}
		l.cache.Remove(key)
	}
	l.cache.Add(key, entry{expiresAt: expiresAt})
	return Inserted
}

func (l *LRU) Unreserve(key [32]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
}

func (l *LRU) Purge(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range l.cache.Keys() {
		if e, ok := l.cache.Peek(key); ok && !now.Before(e.expiresAt) {
			l.cache.Remove(key)
		}
	}
}
