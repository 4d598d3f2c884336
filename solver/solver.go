// Package solver implements the EquiX bundle solver: a worker pool that
// fills an ordered, deduplicated ProofBundle against a master challenge.
//
// The worker/collector shape is carried over from a Seal/mine style engine
// (per-thread search goroutines racing against a shared stop channel, joined
// by a sync.WaitGroup), generalized from "first nonce under the network
// target" to "first deduplicated solution for proof index i", and from one
// winner per block to one winner per bundle slot, repeated RequiredProofs
// times.
package solver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/probeum/rspow/bundle"
	"github.com/probeum/rspow/dispatch"
	"github.com/probeum/rspow/equix"
	"github.com/probeum/rspow/internal/meter"
	"github.com/probeum/rspow/internal/rlog"
	"github.com/probeum/rspow/internal/zerobits"
	"github.com/probeum/rspow/tag"
)

var (
	// ErrInvalidConfig is returned by Build when the builder's fields
	// can't produce a usable solver.
	ErrInvalidConfig = errors.New("solver: invalid config")
	// ErrSolverFailed wraps a worker panic or primitive error surfaced
	// during a solve; fatal to the current solve.
	ErrSolverFailed = errors.New("solver: failed")
	// ErrChannelClosed means the collector detached unexpectedly; fatal,
	// the caller should abort rather than retry in place.
	ErrChannelClosed = errors.New("solver: collector channel closed unexpectedly")
	// ErrResumeTooShort is returned by Resume when newRequired does not
	// exceed the existing bundle's length.
	ErrResumeTooShort = errors.New("solver: resume target not greater than existing length")
	// ErrResumeBitsMismatch is returned by Resume when the existing
	// bundle's difficulty does not match the solver's configured bits.
	ErrResumeBitsMismatch = errors.New("solver: resume bits mismatch")
	// ErrResumeInvalid is returned by Resume when the existing bundle does
	// not itself pass strict verification.
	ErrResumeInvalid = errors.New("solver: resume bundle fails strict verify")
)

const defaultBatch = 4096

// Progress is the shared atomic counter solver callers poll for bundle
// build progress. It is safe to read concurrently with a running solve.
type Progress struct {
	n uint64
	mu sync.Mutex
}

// Value returns the current count of accepted proofs.
func (p *Progress) Value() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func (p *Progress) set(n uint64) {
	p.mu.Lock()
	p.n = n
	p.mu.Unlock()
}

// Builder configures a Solver. Threads and RequiredProofs must each be >= 1;
// Hasher, Primitive, Logger, Progress and BatchSize fall back to sensible
// defaults if left zero. Bits is meaningful at zero: difficulty 0 always
// passes, so a single-proof bundle at bits=0 is a valid, trivially-solved
// bundle rather than a config error.
type Builder struct {
	Bits           uint32
	Threads        int
	RequiredProofs uint32
	Progress       *Progress
	Hasher         tag.Hasher
	Primitive      equix.Primitive
	Logger         rlog.Logger
	BatchSize      uint64
}

// Build validates the builder and returns a ready-to-use Solver.
func (b Builder) Build() (*Solver, error) {
	if b.RequiredProofs == 0 {
		return nil, fmt.Errorf("%w: required_proofs must be >= 1", ErrInvalidConfig)
	}
	if b.Threads <= 0 {
		return nil, fmt.Errorf("%w: threads must be >= 1", ErrInvalidConfig)
	}
	threads := b.Threads
	hasher := b.Hasher
	if hasher == nil {
		hasher = tag.New()
	}
	primitive := b.Primitive
	if primitive == nil {
		primitive = equix.New()
	}
	logger := b.Logger
	if logger == nil {
		logger = rlog.Root()
	}
	progress := b.Progress
	if progress == nil {
		progress = &Progress{}
	}
	batch := b.BatchSize
	if batch == 0 {
		batch = defaultBatch
	}
	return &Solver{
		bits:           b.Bits,
		threads:        threads,
		requiredProofs: b.RequiredProofs,
		progress:       progress,
		hasher:         hasher,
		primitive:      primitive,
		log:            logger,
		batchSize:      batch,
		hashrate:       &meter.Meter{},
	}, nil
}

// Solver fills a ProofBundle of a configured size against a master
// challenge, starting a fresh pool of worker goroutines for each proof index
// and sharing one dispatcher across all of them.
type Solver struct {
	bits           uint32
	threads        int
	requiredProofs uint32
	progress       *Progress
	hasher         tag.Hasher
	primitive      equix.Primitive
	log            rlog.Logger
	batchSize      uint64
	hashrate       *meter.Meter
}

// Progress returns the shared progress counter this solver reports into.
func (s *Solver) Progress() *Progress { return s.progress }

// Hashrate returns the solver's current decaying estimate of candidates
// checked per second, summed across every worker.
func (s *Solver) Hashrate() float64 { return s.hashrate.Rate() }

// SolveBundle builds a fresh bundle of s.requiredProofs proofs against
// master.
func (s *Solver) SolveBundle(master [32]byte) (*bundle.Bundle, error) {
	return s.solve(bundle.New(master, bundle.Config{Bits: s.bits}), s.requiredProofs)
}

// Resume grows existing to newRequired proofs, reusing its already-solved
// prefix unchanged. existing must already pass strict verification and
// carry the same difficulty as this solver.
func (s *Solver) Resume(existing *bundle.Bundle, newRequired uint32) (*bundle.Bundle, error) {
	if newRequired <= uint32(existing.Len()) {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrResumeTooShort, existing.Len(), newRequired)
	}
	if existing.Config.Bits != s.bits {
		return nil, fmt.Errorf("%w: existing bits %d, solver bits %d", ErrResumeBitsMismatch, existing.Config.Bits, s.bits)
	}
	if err := bundle.VerifyStrict(existing, s.primitive, s.hasher); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResumeInvalid, err)
	}
	return s.solve(existing.Clone(), newRequired)
}

// solve is the shared core of SolveBundle and Resume: seed the dedup set
// from whatever's already in b, then fill slots [b.Len(), required) one at
// a time in ascending order, each slot searched in parallel by s.threads
// workers sharing one dispatcher and one stop flag. The same Dispatcher is
// reused across every slot, Reset between them exactly as spec.md §4.4 step
// 5 describes ("reset the dispatcher's stop flag and advance to i+1")
// instead of building a fresh one per index.
func (s *Solver) solve(b *bundle.Bundle, required uint32) (*bundle.Bundle, error) {
	seen := make(map[equix.Solution]struct{}, required)
	for _, p := range b.Proofs {
		seen[p.Solution] = struct{}{}
	}
	s.progress.set(uint64(b.Len()))

	disp := dispatch.New()
	start := uint64(b.Len())
	for i := start; i < uint64(required); i++ {
		if i > start {
			disp.Reset()
		}
		chal := s.hasher.DeriveSub(b.MasterChallenge, i)
		proof, err := s.solveIndex(disp, equix.Challenge(chal), i, seen)
		if err != nil {
			return nil, err
		}
		if err := b.Insert(*proof, s.hasher); err != nil {
			// Insert only fails on invariants solveIndex already
			// guaranteed (sequential id, fresh challenge, fresh
			// solution); a failure here means the primitive or hasher
			// is inconsistent between calls.
			return nil, fmt.Errorf("%w: %v", ErrSolverFailed, err)
		}
		seen[proof.Solution] = struct{}{}
		s.progress.set(i + 1)
	}
	return b, nil
}

type hit struct {
	workNonce uint64
	solution  equix.Solution
	hash      [32]byte
}

// solveIndex spawns s.threads workers racing to find the first
// dedup'd, bits-meeting solution for chal against the shared disp, and
// returns it as a Proof with the given id. disp's stop flag is expected to
// already be clear on entry (fresh, or Reset by the caller) and is left set
// on return so the caller can see the slot is done before it Resets for the
// next index.
func (s *Solver) solveIndex(disp *dispatch.Dispatcher, chal equix.Challenge, id uint64, seen map[equix.Solution]struct{}) (*bundle.Proof, error) {
	found := make(chan hit, s.threads)
	fail := make(chan error, s.threads)

	var wg sync.WaitGroup
	wg.Add(s.threads)
	logger := s.log.New("index", id)
	for w := 0; w < s.threads; w++ {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					select {
					case fail <- fmt.Errorf("%w: worker %d panicked: %v", ErrSolverFailed, workerID, r):
					default:
					}
				}
			}()
			s.searchWorker(chal, disp, found, logger, workerID)
		}(w)
	}

	defer func() {
		disp.Stop()
		wg.Wait()
	}()

	for {
		select {
		case err := <-fail:
			disp.Stop()
			return nil, err
		case h, ok := <-found:
			if !ok {
				return nil, ErrChannelClosed
			}
			if _, dup := seen[h.solution]; dup {
				logger.Trace("discarding duplicate solution", "nonce", h.workNonce)
				continue
			}
			disp.Stop()
			return &bundle.Proof{ID: id, Challenge: [32]byte(chal), Solution: h.solution}, nil
		}
	}
}

// searchWorker repeatedly claims a batch of work nonces from disp and
// streams EquiX solutions from the primitive, forwarding each candidate
// meeting the difficulty target to found via a send that also selects on
// disp's stop channel, so a worker never blocks past the point its result
// has become moot.
func (s *Solver) searchWorker(chal equix.Challenge, disp *dispatch.Dispatcher, found chan<- hit, logger rlog.Logger, workerID int) {
	for {
		if disp.IsStopped() {
			return
		}
		start, err := disp.Next(s.batchSize)
		if err != nil {
			logger.Error("dispatcher exhausted", "worker", workerID, "err", err)
			return
		}
		for candidate := range s.primitive.SolveStream(chal, start, s.batchSize, disp.Done()) {
			hash, err := s.primitive.Verify(chal, candidate.Solution)
			if err != nil {
				continue
			}
			if !zerobits.Meets(hash[:], s.bits) {
				continue
			}
			select {
			case found <- hit{workNonce: candidate.WorkNonce, solution: candidate.Solution, hash: hash}:
			case <-disp.Done():
				return
			}
		}
		s.hashrate.Mark(s.batchSize)
	}
}
