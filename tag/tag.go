// Package tag implements the keyed/domain-separated hashing rspow uses to
// derive per-timestamp server nonces and per-proof sub-challenges from a
// bundle's master challenge. Domain tags are byte-exact; changing any of
// them is a protocol break, so they're unexported constants rather than
// configuration.
package tag

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

const (
	nonceTag        = "rspow:nonce:v1"
	challengeTag    = "rspow:challenge:v1"
	subChallengeTag = "rspow:challenge:v1|"
)

// Hasher is the pluggable capability this package's default implementation
// satisfies. Substituting a different primitive (e.g. SHA-256) is supported
// provided every participant in a deployment agrees out-of-band; the domain
// tags above still apply verbatim.
type Hasher interface {
	// DerivNonce computes the server's deterministic nonce for a given
	// issuance second, keyed by the server secret.
	DerivNonce(secret [32]byte, ts uint64) [32]byte
	// Master binds a deterministic nonce and a client-supplied nonce into
	// the master challenge for one bundle.
	Master(detNonce, clientNonce [32]byte) [32]byte
	// DeriveSub derives the per-proof sub-challenge for proof index id
	// inside a bundle whose master challenge is master.
	DeriveSub(master [32]byte, id uint64) [32]byte
}

// BLAKE3 is the default Hasher, built on keyed/unkeyed BLAKE3 with 32-byte
// output.
type BLAKE3 struct{}

// New returns the default BLAKE3-backed Hasher.
func New() Hasher { return BLAKE3{} }

func (BLAKE3) DerivNonce(secret [32]byte, ts uint64) [32]byte {
	h, err := blake3.NewKeyed(secret[:])
	if err != nil {
		// secret is always exactly 32 bytes; NewKeyed only rejects
		// mis-sized keys, which a fixed-size array can't produce.
		panic(err)
	}
	h.Write([]byte(nonceTag))
	var le8 [8]byte
	binary.LittleEndian.PutUint64(le8[:], ts)
	h.Write(le8[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (BLAKE3) Master(detNonce, clientNonce [32]byte) [32]byte {
	h := blake3.New()
	h.Write([]byte(challengeTag))
	h.Write(detNonce[:])
	h.Write(clientNonce[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (BLAKE3) DeriveSub(master [32]byte, id uint64) [32]byte {
	h := blake3.New()
	h.Write([]byte(subChallengeTag))
	h.Write(master[:])
	var le8 [8]byte
	binary.LittleEndian.PutUint64(le8[:], id)
	h.Write(le8[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
