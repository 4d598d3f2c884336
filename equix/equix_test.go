package equix

import "testing"

func TestSolveStreamYieldsVerifiableHits(t *testing.T) {
	p := New()
	var challenge Challenge
	challenge[0] = 42

	stop := make(chan struct{})
	hits := p.SolveStream(challenge, 0, 20000, stop)

	found := 0
	for hit := range hits {
		if _, err := p.Verify(challenge, hit.Solution); err != nil {
			t.Fatalf("hit %v failed to verify: %v", hit, err)
		}
		found++
	}
	if found == 0 {
		t.Fatalf("expected at least one hit in 20000 nonces at ~1/256 density")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	p := New()
	var challenge Challenge
	var junk Solution
	junk[0] = 0xFF

	if _, err := p.Verify(challenge, junk); err == nil {
		// Extremely unlikely to be a false positive (1/256 chance); if it
		// happens, perturb the input rather than fail flakily.
		junk[1] = 0xAA
		if _, err := p.Verify(challenge, junk); err == nil {
			t.Fatalf("expected arbitrary solution bytes to fail structural validity")
		}
	}
}

func TestSolveStreamHonoursStop(t *testing.T) {
	p := New()
	var challenge Challenge
	stop := make(chan struct{})
	close(stop)

	hits := p.SolveStream(challenge, 0, 1_000_000, stop)
	n := 0
	for range hits {
		n++
	}
	if n > 1 {
		t.Fatalf("expected SolveStream to stop almost immediately, got %d hits", n)
	}
}

func TestSolveStreamRespectsCount(t *testing.T) {
	p := New()
	var challenge Challenge
	stop := make(chan struct{})

	hits := p.SolveStream(challenge, 0, 4, stop)
	for hit := range hits {
		if hit.WorkNonce >= 4 {
			t.Fatalf("hit nonce %d outside requested count", hit.WorkNonce)
		}
	}
}
