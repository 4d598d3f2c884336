// Package protocol implements the near-stateless verification protocol: the
// server issues time-bound parameters with no stored issuance state, accepts
// a client's proof bundle, and rejects replays using only a TTL cache keyed
// by the client's own nonce.
//
// The overall issue/verify/reject-on-replay shape is grounded in the
// JeddyMaster pow.Service (GenerateChallenge / VerifyProof against a
// replay-preventing map), generalized from a single SHA-256 hashcash check
// to a deterministically-derived master challenge and a full EquiX
// ProofBundle.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/probeum/rspow/bundle"
	"github.com/probeum/rspow/clock"
	"github.com/probeum/rspow/config"
	"github.com/probeum/rspow/equix"
	"github.com/probeum/rspow/internal/rlog"
	"github.com/probeum/rspow/replay"
	"github.com/probeum/rspow/tag"
)

// Rejection reasons, all reported back to the client; none are retried
// server-side.
var (
	ErrTimestampOutOfWindow = errors.New("protocol: timestamp out of window")
	ErrReplayDetected       = errors.New("protocol: replay detected")
	ErrInsufficientProofs   = errors.New("protocol: insufficient proofs or difficulty")
	ErrChallengeMismatch    = errors.New("protocol: master challenge mismatch")
	ErrInvalidProof         = errors.New("protocol: invalid proof")
)

// Params is the server->client GetParams response, wire-exact.
type Params struct {
	Timestamp          uint64
	DeterministicNonce [32]byte
	Bits               uint32
	RequiredProofs     uint32
}

// Submission is the client->server payload, wire-exact.
type Submission struct {
	Timestamp   uint64
	ClientNonce [32]byte
	Bundle      *bundle.Bundle
}

// ReserveBeforeVerify controls whether VerifySubmission inserts into the
// replay cache before or after the expensive cryptographic check — a
// deliberately open policy choice. Favoring "before" bounds
// DoS amplification (a flood of bogus bundles can't each force a full
// VerifyStrict); favoring "after" avoids ever caching the nonce of a
// submission that never actually verified. This module defaults to
// ReserveBeforeVerify with unreservation on failure, matching the
// amplification-resistant reading of the JeddyMaster pow.Service, which
// deletes its challenge entry before (not after) checking the hash.
type ReplayPolicy int

const (
	ReserveBeforeVerify ReplayPolicy = iota
	ReserveAfterVerify
)

// Verifier owns the server secret (via its Config) and the replay cache; it
// stores no per-challenge issuance state.
type Verifier struct {
	cfg       *config.Holder
	cache     replay.Cache
	clock     clock.Clock
	hasher    tag.Hasher
	primitive equix.Primitive
	policy    ReplayPolicy
	log       rlog.Logger
}

// Option configures optional Verifier fields.
type Option func(*Verifier)

// WithHasher overrides the default BLAKE3 tag hasher.
func WithHasher(h tag.Hasher) Option { return func(v *Verifier) { v.hasher = h } }

// WithPrimitive overrides the default EquiX primitive.
func WithPrimitive(p equix.Primitive) Option { return func(v *Verifier) { v.primitive = p } }

// WithReplayPolicy selects when InsertIfAbsent runs relative to
// cryptographic verification.
func WithReplayPolicy(p ReplayPolicy) Option { return func(v *Verifier) { v.policy = p } }

// WithLogger overrides the default root logger.
func WithLogger(l rlog.Logger) Option { return func(v *Verifier) { v.log = l } }

// New constructs a Verifier over the given config holder, replay cache and
// clock.
func New(cfg *config.Holder, cache replay.Cache, c clock.Clock, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:       cfg,
		cache:     cache,
		clock:     c,
		hasher:    tag.New(),
		primitive: equix.New(),
		policy:    ReserveBeforeVerify,
		log:       rlog.Root(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetConfig atomically replaces the verifier's policy config.
func (v *Verifier) SetConfig(cfg config.Verifier) error {
	return v.cfg.Set(cfg)
}

// IssueParams derives fresh, stateless params from the current time and
// config. It never mutates any state; the deterministic nonce is
// recomputable by any server sharing the same secret, so nothing needs to
// be remembered between IssueParams and the matching VerifySubmission.
func (v *Verifier) IssueParams() Params {
	cfg := v.cfg.Get()
	now := v.clock.Now()
	det := v.hasher.DerivNonce(cfg.ServerSecret, now)
	return Params{
		Timestamp:          now,
		DeterministicNonce: det,
		Bits:               cfg.MinDifficulty,
		RequiredProofs:     cfg.MinRequiredProofs,
	}
}

func secondsToTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0)
}

// VerifySubmission runs the full window/replay/proof check, short-circuiting
// on the first failure.
func (v *Verifier) VerifySubmission(sub Submission) error {
	cfg := v.cfg.Get()
	now := v.clock.Now()

	if sub.Timestamp > now || sub.Timestamp+uint64(cfg.TimeWindowSeconds) < now {
		return ErrTimestampOutOfWindow
	}

	nowTime := secondsToTime(now)
	expiresAt := secondsToTime(sub.Timestamp + uint64(cfg.TimeWindowSeconds))
	switch v.policy {
	case ReserveBeforeVerify:
		if out := v.cache.InsertIfAbsent(sub.ClientNonce, expiresAt, nowTime); out == replay.Present {
			return ErrReplayDetected
		}
		if err := v.verifyProof(sub, cfg); err != nil {
			v.cache.Unreserve(sub.ClientNonce)
			return err
		}
		return nil
	case ReserveAfterVerify:
		if err := v.verifyProof(sub, cfg); err != nil {
			return err
		}
		if out := v.cache.InsertIfAbsent(sub.ClientNonce, expiresAt, nowTime); out == replay.Present {
			return ErrReplayDetected
		}
		return nil
	default:
		return fmt.Errorf("protocol: unknown replay policy %d", v.policy)
	}
}

// verifyProof runs the proof-count/difficulty floor, challenge
// reconstruction and strict bundle verification steps, independent of
// replay bookkeeping.
func (v *Verifier) verifyProof(sub Submission, cfg *config.Verifier) error {
	if sub.Bundle == nil ||
		uint32(sub.Bundle.Len()) < cfg.MinRequiredProofs ||
		sub.Bundle.Config.Bits < cfg.MinDifficulty {
		return ErrInsufficientProofs
	}

	det := v.hasher.DerivNonce(cfg.ServerSecret, sub.Timestamp)
	master := v.hasher.Master(det, sub.ClientNonce)
	if sub.Bundle.MasterChallenge != master {
		return ErrChallengeMismatch
	}

	if err := bundle.VerifyStrict(sub.Bundle, v.primitive, v.hasher); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}
