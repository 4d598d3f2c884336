// Package equix adapts the external EquiX puzzle primitive (spec'd as an
// opaque collaborator: given a 32-byte challenge, enumerate 16-byte
// solutions that are cheap to verify) behind a small capability interface.
//
// The real EquiX algorithm is out of scope for this module — it is assumed
// available, and only its wire bytes and the shape of its verification
// function matter to the solver and verifier built here. ReferencePrimitive
// is a deterministic, pure-Go stand-in satisfying the same contract
// (structural validity is a function of (challenge, solution) alone, and
// verification recomputes sha256(solution) without needing the nonce that
// produced it) so the rest of the module is exercisable and testable without
// a cgo binding to libequix. Production deployments swap it for a real
// binding behind the same Primitive interface.
package equix

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Challenge is the 32-byte seed a solution is produced against.
type Challenge [32]byte

// Solution is the raw 16-byte EquiX solution.
type Solution [16]byte

// ErrInvalidSolution is returned by Verify when a solution is not
// structurally valid for the given challenge.
var ErrInvalidSolution = errors.New("equix: invalid solution")

// Hit is one accepted (work_nonce, solution) pair yielded by SolveStream.
type Hit struct {
	WorkNonce uint64
	Solution  Solution
}

// Primitive is the capability interface the bundle solver (C4) and KPoW
// engine's sibling components call into. Implementations must be pure and
// thread-safe: no hidden global state, safe to call concurrently from
// multiple workers against different challenges.
type Primitive interface {
	// SolveStream enumerates work nonces in [startNonce, startNonce+count)
	// and emits a Hit for every EquiX solution found among them, closing
	// the returned channel once the range is exhausted or stop fires —
	// whichever happens first. The count bound lets callers partition
	// nonce space into non-overlapping batches via a dispatcher and is an
	// implementation convenience on top of the otherwise opaque contract,
	// not a change to solution semantics.
	SolveStream(challenge Challenge, startNonce, count uint64, stop <-chan struct{}) <-chan Hit

	// Verify reports the 32-byte hash of solution iff it is structurally
	// valid for challenge, and ErrInvalidSolution otherwise.
	Verify(challenge Challenge, solution Solution) ([32]byte, error)
}

// ReferencePrimitive is the default Primitive: deterministic, dependency-free
// and fast enough for worker-pool testing. Candidate solutions are derived
// from (challenge, nonce) with SHA-256, and a solution is structurally valid
// iff a second SHA-256 over (challenge, solution) ends in a zero byte — a
// fixed ~1/256 solution density independent of any particular nonce, so
// Verify can re-check validity from the solution bytes alone exactly as the
// real EquiX primitive does.
type ReferencePrimitive struct{}

// New returns the default ReferencePrimitive.
func New() Primitive { return ReferencePrimitive{} }

func candidate(challenge Challenge, nonce uint64) Solution {
	var buf [40]byte
	copy(buf[:32], challenge[:])
	binary.LittleEndian.PutUint64(buf[32:], nonce)
	digest := sha256.Sum256(buf[:])

	var sol Solution
	copy(sol[:], digest[:16])
	return sol
}

func structurallyValid(challenge Challenge, solution Solution) bool {
	var buf [48]byte
	copy(buf[:32], challenge[:])
	copy(buf[32:], solution[:])
	digest := sha256.Sum256(buf[:])
	return digest[31] == 0
}

func (ReferencePrimitive) SolveStream(challenge Challenge, startNonce, count uint64, stop <-chan struct{}) <-chan Hit {
	out := make(chan Hit)
	go func() {
		defer close(out)
		for i := uint64(0); i < count; i++ {
			select {
			case <-stop:
				return
			default:
			}
			nonce := startNonce + i
			sol := candidate(challenge, nonce)
			if !structurallyValid(challenge, sol) {
				continue
			}
			select {
			case out <- Hit{WorkNonce: nonce, Solution: sol}:
			case <-stop:
				return
			}
		}
	}()
	return out
}

func (ReferencePrimitive) Verify(challenge Challenge, solution Solution) ([32]byte, error) {
	if !structurallyValid(challenge, solution) {
		return [32]byte{}, ErrInvalidSolution
	}
	return sha256.Sum256(solution[:]), nil
}
