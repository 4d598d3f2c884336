package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/rspow/clock"
	"github.com/probeum/rspow/config"
	"github.com/probeum/rspow/replay"
	"github.com/probeum/rspow/solver"
	"github.com/probeum/rspow/tag"
)

func newVerifier(t *testing.T, secret [32]byte, window, minBits, minProofs uint32, now uint64) *Verifier {
	t.Helper()
	h, err := config.NewHolder(config.Verifier{
		TimeWindowSeconds: window,
		MinDifficulty:     minBits,
		MinRequiredProofs: minProofs,
		ServerSecret:      secret,
	})
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	return New(h, replay.NewLRU(1024), clock.NewFake(now))
}

// buildSubmission mimics the client side: derive the master challenge under
// the given server secret and timestamp, then solve a bundle against it.
func buildSubmission(t *testing.T, secret [32]byte, ts uint64, clientNonce [32]byte, bits uint32, required uint32) Submission {
	t.Helper()
	th := tag.New()
	det := th.DerivNonce(secret, ts)
	master := th.Master(det, clientNonce)

	s, err := solver.Builder{Bits: bits, Threads: 4, RequiredProofs: required}.Build()
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	b, err := s.SolveBundle(master)
	if err != nil {
		t.Fatalf("SolveBundle: %v", err)
	}
	return Submission{Timestamp: ts, ClientNonce: clientNonce, Bundle: b}
}

func TestScenario1AcceptThenRejectReplay(t *testing.T) {
	var secret [32]byte // all zero
	const now = 1_700_000_000
	v := newVerifier(t, secret, 30, 4, 2, now)

	var clientNonce [32]byte
	for i := range clientNonce {
		clientNonce[i] = 1
	}
	sub := buildSubmission(t, secret, now, clientNonce, 4, 2)

	require.NoError(t, v.VerifySubmission(sub))
	require.ErrorIs(t, v.VerifySubmission(sub), ErrReplayDetected)
}

func TestScenario2ConfigSwapRejectsInsufficientProofs(t *testing.T) {
	var secret [32]byte
	secret[0] = 9
	const now = 1_700_000_000
	v := newVerifier(t, secret, 30, 4, 1, now)

	var clientNonce [32]byte
	clientNonce[0] = 5
	sub := buildSubmission(t, secret, now, clientNonce, 4, 1)

	require.NoError(t, v.SetConfig(config.Verifier{TimeWindowSeconds: 30, MinDifficulty: 6, MinRequiredProofs: 1, ServerSecret: secret}))

	require.ErrorIs(t, v.VerifySubmission(sub), ErrInsufficientProofs)
}

func TestWindowBoundaries(t *testing.T) {
	var secret [32]byte
	secret[1] = 1
	const window = 30
	const now = 1_700_000_000

	cases := []struct {
		name string
		ts   uint64
		ok   bool
	}{
		{"ts==now", now, true},
		{"ts==now-window", now - window, true},
		{"ts==now-window-1", now - window - 1, false},
		{"ts==now+1", now + 1, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := newVerifier(t, secret, window, 0, 1, now)
			var clientNonce [32]byte
			clientNonce[0] = byte(len(c.name))

			sub := buildSubmission(t, secret, c.ts, clientNonce, 0, 1)

			err := v.VerifySubmission(sub)
			if c.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrTimestampOutOfWindow)
			}
		})
	}
}

func TestChallengeMismatchRejected(t *testing.T) {
	var secret [32]byte
	secret[2] = 1
	const now = 1_700_000_000
	v := newVerifier(t, secret, 30, 0, 1, now)

	var clientNonce [32]byte
	sub := buildSubmission(t, secret, now, clientNonce, 0, 1)
	sub.Bundle.MasterChallenge[0] ^= 0xFF

	require.ErrorIs(t, v.VerifySubmission(sub), ErrChallengeMismatch)
}

func TestInvalidProofRejected(t *testing.T) {
	var secret [32]byte
	secret[3] = 1
	const now = 1_700_000_000
	v := newVerifier(t, secret, 30, 4, 2, now)

	var clientNonce [32]byte
	clientNonce[0] = 8
	sub := buildSubmission(t, secret, now, clientNonce, 4, 2)
	sub.Bundle.Proofs[1].Solution[0] ^= 0xFF

	require.ErrorIs(t, v.VerifySubmission(sub), ErrInvalidProof)
}

func TestReserveAfterVerifyPolicyStillRejectsReplay(t *testing.T) {
	var secret [32]byte
	secret[4] = 1
	const now = 1_700_000_000
	h, err := config.NewHolder(config.Verifier{TimeWindowSeconds: 30, MinDifficulty: 4, MinRequiredProofs: 1, ServerSecret: secret})
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	v := New(h, replay.NewLRU(16), clock.NewFake(now), WithReplayPolicy(ReserveAfterVerify))

	var clientNonce [32]byte
	clientNonce[0] = 2
	sub := buildSubmission(t, secret, now, clientNonce, 4, 1)

	require.NoError(t, v.VerifySubmission(sub))
	require.ErrorIs(t, v.VerifySubmission(sub), ErrReplayDetected)
}
