package bundle

import (
	"errors"
	"testing"

	"github.com/probeum/rspow/equix"
	"github.com/probeum/rspow/tag"
)

// mustSolve brute-forces bits-difficulty proofs for ids [0, n) directly
// against the reference primitive, independent of the solver package, so
// bundle tests don't depend on solver correctness.
func mustSolve(t *testing.T, master [32]byte, n int, bits uint32) *Bundle {
	t.Helper()
	h := tag.New()
	p := equix.New()
	b := New(master, Config{Bits: bits})

	for id := uint64(0); id < uint64(n); id++ {
		chal := equix.Challenge(h.DeriveSub(master, id))
		stop := make(chan struct{})
		found := false
		for hit := range p.SolveStream(chal, 0, 5_000_000, stop) {
			hash, err := p.Verify(chal, hit.Solution)
			if err != nil {
				continue
			}
			if hashMeetsBits(hash, bits) {
				if err := b.Insert(Proof{ID: id, Challenge: [32]byte(chal), Solution: hit.Solution}, h); err != nil {
					t.Fatalf("insert: %v", err)
				}
				found = true
				close(stop)
				break
			}
		}
		if !found {
			t.Fatalf("could not find a proof for id %d within search budget", id)
		}
	}
	return b
}

func hashMeetsBits(hash [32]byte, bits uint32) bool {
	count := uint32(0)
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count >= bits
			}
			count++
		}
	}
	return count >= bits
}

func TestInsertEnforcesOrdering(t *testing.T) {
	h := tag.New()
	var master [32]byte
	b := New(master, Config{Bits: 0})

	chal1 := h.DeriveSub(master, 1)
	err := b.Insert(Proof{ID: 1, Challenge: chal1}, h)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID inserting id 1 first, got %v", err)
	}
}

func TestInsertEnforcesChallengeBinding(t *testing.T) {
	h := tag.New()
	var master [32]byte
	b := New(master, Config{Bits: 0})

	var wrongChal [32]byte
	wrongChal[0] = 0xFF
	err := b.Insert(Proof{ID: 0, Challenge: wrongChal}, h)
	if !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected ErrChallengeMismatch, got %v", err)
	}
}

func TestInsertEnforcesDedup(t *testing.T) {
	h := tag.New()
	var master [32]byte
	b := New(master, Config{Bits: 0})

	chal0 := h.DeriveSub(master, 0)
	sol := equix.Solution{1, 2, 3}
	if err := b.Insert(Proof{ID: 0, Challenge: chal0, Solution: sol}, h); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	chal1 := h.DeriveSub(master, 1)
	err := b.Insert(Proof{ID: 1, Challenge: chal1, Solution: sol}, h)
	if !errors.Is(err, ErrDuplicateProof) {
		t.Fatalf("expected ErrDuplicateProof, got %v", err)
	}
}

func TestVerifyStrictRoundTrip(t *testing.T) {
	var master [32]byte
	master[3] = 9
	b := mustSolve(t, master, 3, 5)

	if err := VerifyStrict(b, equix.New(), tag.New()); err != nil {
		t.Fatalf("VerifyStrict: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 proofs, got %d", b.Len())
	}
}

func TestVerifyStrictTamperedSolutionDuplicates(t *testing.T) {
	var master [32]byte
	master[1] = 3
	b := mustSolve(t, master, 2, 4)

	b.Proofs[1].Solution = b.Proofs[0].Solution
	err := VerifyStrict(b, equix.New(), tag.New())
	if !errors.Is(err, ErrDuplicateProof) {
		t.Fatalf("expected ErrDuplicateProof, got %v", err)
	}
}

func TestVerifyStrictTamperedChallenge(t *testing.T) {
	var master [32]byte
	master[2] = 5
	b := mustSolve(t, master, 2, 4)

	b.Proofs[0].Challenge[0] ^= 0xFF
	err := VerifyStrict(b, equix.New(), tag.New())
	if !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected ErrChallengeMismatch, got %v", err)
	}
}

func TestVerifyStrictRaisedDifficultyRejects(t *testing.T) {
	var master [32]byte
	master[4] = 1
	b := mustSolve(t, master, 1, 2)
	b.Config.Bits = 64 // far beyond what any proof's hash will meet

	err := VerifyStrict(b, equix.New(), tag.New())
	if !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}
}

func TestVerifyStrictLoweredDifficultyStillVerifies(t *testing.T) {
	var master [32]byte
	master[5] = 2
	b := mustSolve(t, master, 1, 6)
	b.Config.Bits = 1

	if err := VerifyStrict(b, equix.New(), tag.New()); err != nil {
		t.Fatalf("lowering difficulty after the fact should still verify: %v", err)
	}
}

func TestVerifyStrictEmptyBundleMalformed(t *testing.T) {
	var master [32]byte
	b := New(master, Config{Bits: 1})
	err := VerifyStrict(b, equix.New(), tag.New())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for empty bundle, got %v", err)
	}
}
