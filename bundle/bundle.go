// Package bundle implements the ProofBundle data model: an ordered,
// deduplicated sequence of EquiX proofs sharing a master challenge and a
// difficulty target, plus its strict verification.
package bundle

import (
	"errors"
	"fmt"

	"github.com/probeum/rspow/equix"
	"github.com/probeum/rspow/internal/zerobits"
	"github.com/probeum/rspow/tag"
)

// Verification errors, returned (possibly wrapped) by VerifyStrict.
var (
	ErrMalformed         = errors.New("bundle: malformed structure")
	ErrDuplicateProof    = errors.New("bundle: duplicate proof solution")
	ErrInvalidDifficulty = errors.New("bundle: proof hash does not meet difficulty")
	ErrInvalidSolution   = errors.New("bundle: equix solution invalid")
	ErrChallengeMismatch = errors.New("bundle: proof challenge does not match master")
)

// ErrDuplicateID is returned by Insert when a caller tries to insert out of
// order. VerifyStrict reports an out-of-sequence id as ErrMalformed instead.
var ErrDuplicateID = errors.New("bundle: proof id out of sequence")

// Proof is one immutable entry in a bundle.
type Proof struct {
	ID        uint64
	Challenge [32]byte
	Solution  equix.Solution
}

// Config is the difficulty target shared by every proof in a bundle.
type Config struct {
	Bits uint32
}

// Bundle is an ordered, deduplicated sequence of proofs bound to a single
// master challenge and difficulty config. The zero value is a valid empty
// bundle for a given master challenge.
type Bundle struct {
	Proofs          []Proof
	Config          Config
	MasterChallenge [32]byte
}

// New returns an empty bundle for the given master challenge and config.
func New(master [32]byte, cfg Config) *Bundle {
	return &Bundle{Config: cfg, MasterChallenge: master}
}

// Len returns the number of proofs currently in the bundle.
func (b *Bundle) Len() int { return len(b.Proofs) }

// Insert appends p to the bundle, enforcing the structural invariants:
// p.ID must be the next sequential id, p.Challenge must match the derived
// sub-challenge for that id, and p.Solution must not duplicate any existing
// proof's solution. It does not re-verify the EquiX solution itself — that
// is VerifyStrict's job — callers that insert solver output are expected to
// have already checked the solution against the primitive.
func (b *Bundle) Insert(p Proof, h tag.Hasher) error {
	if p.ID != uint64(len(b.Proofs)) {
		return fmt.Errorf("%w: got id %d, want %d", ErrDuplicateID, p.ID, len(b.Proofs))
	}
	expected := h.DeriveSub(b.MasterChallenge, p.ID)
	if expected != p.Challenge {
		return fmt.Errorf("%w: proof %d", ErrChallengeMismatch, p.ID)
	}
	for _, existing := range b.Proofs {
		if existing.Solution == p.Solution {
			return fmt.Errorf("%w: proof %d duplicates proof %d", ErrDuplicateProof, p.ID, existing.ID)
		}
	}
	b.Proofs = append(b.Proofs, p)
	return nil
}

// Clone returns a deep copy whose Proofs slice can be mutated independently
// of the original — used by the solver when resuming from a caller-owned
// bundle.
func (b *Bundle) Clone() *Bundle {
	out := &Bundle{
		Config:          b.Config,
		MasterChallenge: b.MasterChallenge,
		Proofs:          make([]Proof, len(b.Proofs)),
	}
	copy(out.Proofs, b.Proofs)
	return out
}

// VerifyStrict runs the full structural, dedup, and per-proof check a
// bundle must pass before it is accepted, short-circuiting on the first
// failure.
func VerifyStrict(b *Bundle, primitive equix.Primitive, h tag.Hasher) error {
	if len(b.Proofs) == 0 {
		return fmt.Errorf("%w: empty bundle", ErrMalformed)
	}
	for i, p := range b.Proofs {
		if p.ID != uint64(i) {
			return fmt.Errorf("%w: proof at index %d has id %d", ErrMalformed, i, p.ID)
		}
	}

	seen := make(map[equix.Solution]uint64, len(b.Proofs))
	for _, p := range b.Proofs {
		if other, dup := seen[p.Solution]; dup {
			return fmt.Errorf("%w: proof %d duplicates proof %d", ErrDuplicateProof, p.ID, other)
		}
		seen[p.Solution] = p.ID
	}

	for _, p := range b.Proofs {
		expected := h.DeriveSub(b.MasterChallenge, p.ID)
		if expected != p.Challenge {
			return fmt.Errorf("%w: proof %d", ErrChallengeMismatch, p.ID)
		}
		chal := equix.Challenge(p.Challenge)
		hash, err := primitive.Verify(chal, p.Solution)
		if err != nil {
			return fmt.Errorf("%w: proof %d: %v", ErrInvalidSolution, p.ID, err)
		}
		if !zerobits.Meets(hash[:], b.Config.Bits) {
			return fmt.Errorf("%w: proof %d has %d leading zero bits, want %d",
				ErrInvalidDifficulty, p.ID, zerobits.Count(hash[:]), b.Config.Bits)
		}
	}
	return nil
}
