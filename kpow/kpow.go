// Package kpow implements the generic k-of-puzzles engine: collect k
// distinct nonces whose cost-function hash meets a difficulty target, under
// an arbitrary per-hash cost function instead of the opaque EquiX primitive.
//
// Early-stop here is global per run rather than per proof-index as in
// package solver: every worker feeds hits into one shared collector, and the
// first k deduplicated-by-nonce hits end the run. The worker/collector
// wiring is the same shared dispatch.Dispatcher skeleton package solver
// uses, fanned in with golang.org/x/sync's errgroup so a worker panic
// turned into an error cancels every sibling through the group's shared
// context.
package kpow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/probeum/rspow/dispatch"
	"github.com/probeum/rspow/internal/meter"
	"github.com/probeum/rspow/internal/rlog"
	"github.com/probeum/rspow/internal/zerobits"
)

// Cost computes a 32-byte hash for a candidate nonce under a fixed seed.
// Implementations are expected to be deterministic and safe for concurrent
// use by multiple goroutines against the same seed.
type Cost func(seed []byte, nonce uint64) [32]byte

// Puzzle is one collected k-of-puzzles hit.
type Puzzle struct {
	Nonce uint64
	Hash  [32]byte
}

// Result is the full collection produced by a Run. RunID disambiguates
// concurrent Run calls across multiple engines in log output; it carries no
// verification meaning.
type Result struct {
	RunID   string
	Puzzles []Puzzle
}

var (
	// ErrInvalidConfig is returned by Builder.Build when K or Threads is
	// non-positive, or Cost is nil.
	ErrInvalidConfig = errors.New("kpow: invalid builder configuration")
	// ErrEngineFailed wraps a worker panic recovered during Run.
	ErrEngineFailed = errors.New("kpow: worker failed")
)

// Builder configures an Engine. K and Threads must each be >= 1; Cost must
// be non-nil. Logger and BatchSize fall back to sensible defaults if left
// zero.
type Builder struct {
	Bits      uint32
	K         uint32
	Threads   int
	Cost      Cost
	Logger    rlog.Logger
	BatchSize uint64
}

// Build validates the configuration and returns a ready-to-run Engine.
func (b Builder) Build() (*Engine, error) {
	if b.K == 0 {
		return nil, fmt.Errorf("%w: k must be >= 1", ErrInvalidConfig)
	}
	if b.Threads <= 0 {
		return nil, fmt.Errorf("%w: threads must be >= 1", ErrInvalidConfig)
	}
	if b.Cost == nil {
		return nil, fmt.Errorf("%w: cost function must be set", ErrInvalidConfig)
	}
	logger := b.Logger
	if logger == nil {
		logger = rlog.Root()
	}
	batch := b.BatchSize
	if batch == 0 {
		batch = 4096
	}
	return &Engine{
		bits:     b.Bits,
		k:        b.K,
		threads:  b.Threads,
		cost:     b.Cost,
		log:      logger,
		batch:    batch,
		hashrate: &meter.Meter{},
	}, nil
}

// Engine runs one k-of-puzzles collection at a time; each Run call is
// independent and may be called repeatedly (but not concurrently) on the
// same Engine.
type Engine struct {
	bits     uint32
	k        uint32
	threads  int
	cost     Cost
	log      rlog.Logger
	batch    uint64
	hashrate *meter.Meter
}

// Hashrate returns the engine's current decaying estimate of candidates
// checked per second, summed across every worker of the most recent Run.
func (e *Engine) Hashrate() float64 { return e.hashrate.Rate() }

type hit struct {
	nonce uint64
	hash  [32]byte
}

// Run collects k distinct nonces (by value) whose Cost(seed, nonce) meets
// the configured difficulty, starting the search at nonce 0. It returns
// ctx.Err() if ctx is cancelled before k puzzles are found, and
// ErrEngineFailed if a worker panics.
func (e *Engine) Run(ctx context.Context, seed []byte) (*Result, error) {
	runID := uuid.New().String()
	logger := e.log.New("run", runID, "k", e.k, "bits", e.bits)
	disp := dispatch.New()
	found := make(chan hit, e.threads)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.threads; w++ {
		workerID := w
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: worker %d: %v", ErrEngineFailed, workerID, r)
				}
			}()
			e.searchWorker(gctx, seed, disp, found)
			return nil
		})
	}

	// Separate goroutine watches gctx cancellation and flips disp's own
	// stop flag as well, so a cancelled run also reads as stopped through
	// disp.IsStopped and disp.Done.
	done := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			disp.Stop()
		case <-done:
		}
	}()

	seen := make(map[uint64]struct{}, e.k)
	puzzles := make([]Puzzle, 0, e.k)
	collectErr := func() error {
		for uint32(len(puzzles)) < e.k {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case h, ok := <-found:
				if !ok {
					return nil
				}
				if _, dup := seen[h.nonce]; dup {
					continue
				}
				seen[h.nonce] = struct{}{}
				puzzles = append(puzzles, Puzzle{Nonce: h.nonce, Hash: h.hash})
			}
		}
		return nil
	}()

	disp.Stop()
	close(done)
	waitErr := g.Wait()
	if waitErr != nil {
		logger.Error("worker failed", "err", waitErr)
		return nil, waitErr
	}
	if collectErr != nil {
		logger.Error("run aborted", "err", collectErr, "collected", len(puzzles))
		return nil, collectErr
	}
	logger.Debug("run complete", "puzzles", len(puzzles))
	return &Result{RunID: runID, Puzzles: puzzles}, nil
}

func (e *Engine) searchWorker(ctx context.Context, seed []byte, disp *dispatch.Dispatcher, found chan<- hit) {
	for {
		if disp.IsStopped() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		start, err := disp.Next(e.batch)
		if err != nil {
			return
		}
		for n := start; n < start+e.batch; n++ {
			select {
			case <-disp.Done():
				return
			case <-ctx.Done():
				return
			default:
			}
			h := e.cost(seed, n)
			if !zerobits.Meets(h[:], e.bits) {
				continue
			}
			select {
			case found <- hit{nonce: n, hash: h}:
			case <-disp.Done():
				return
			case <-ctx.Done():
				return
			}
		}
		e.hashrate.Mark(e.batch)
	}
}
