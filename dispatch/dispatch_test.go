package dispatch

import (
	"sync"
	"testing"
)

func TestNextNoOverlap(t *testing.T) {
	d := New()
	const workers = 8
	const batches = 200
	const batchSize = 37

	seen := make(map[uint64]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < batches; i++ {
				start, err := d.Next(batchSize)
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				mu.Lock()
				for n := start; n < start+batchSize; n++ {
					seen[n]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for n, count := range seen {
		if count != 1 {
			t.Fatalf("nonce %d handed out %d times, want exactly 1", n, count)
		}
	}
	if len(seen) != workers*batches*batchSize {
		t.Fatalf("expected %d distinct nonces, got %d", workers*batches*batchSize, len(seen))
	}
}

func TestZeroBatchRejected(t *testing.T) {
	d := New()
	if _, err := d.Next(0); err != ErrZeroBatch {
		t.Fatalf("expected ErrZeroBatch, got %v", err)
	}
}

func TestStopResetRoundTrip(t *testing.T) {
	d := New()
	if d.IsStopped() {
		t.Fatalf("fresh dispatcher should not be stopped")
	}
	d.Stop()
	if !d.IsStopped() {
		t.Fatalf("expected IsStopped after Stop")
	}
	d.Reset()
	if d.IsStopped() {
		t.Fatalf("expected !IsStopped after Reset")
	}
}

func TestExhaustion(t *testing.T) {
	d := &Dispatcher{cursor: ^uint64(0) - 2}
	if _, err := d.Next(5); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}
