package kpow

import (
	"encoding/binary"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/sha3"
)

// Argon2idCost returns a Cost computing Argon2id(seed || LE64(nonce) ||
// payload), memory-hard so each candidate carries a real cost even on
// specialised hardware.
func Argon2idCost(payload []byte, time, memory uint32, threads uint8) Cost {
	return func(seed []byte, nonce uint64) [32]byte {
		in := make([]byte, 0, len(seed)+8+len(payload))
		in = append(in, seed...)
		in = binary.LittleEndian.AppendUint64(in, nonce)
		in = append(in, payload...)
		var out [32]byte
		copy(out[:], argon2.IDKey(in, nil, time, memory, threads, 32))
		return out
	}
}

// KeccakCost returns a Cost computing Keccak-256(seed || LE64(nonce) ||
// payload), a cheap, non-memory-hard alternative to Argon2idCost for
// scenarios where raw hash rate (not memory bandwidth) is the intended
// bottleneck.
func KeccakCost(payload []byte) Cost {
	return func(seed []byte, nonce uint64) [32]byte {
		in := make([]byte, 0, len(seed)+8+len(payload))
		in = append(in, seed...)
		in = binary.LittleEndian.AppendUint64(in, nonce)
		in = append(in, payload...)
		var out [32]byte
		h := sha3.NewLegacyKeccak256()
		h.Write(in)
		copy(out[:], h.Sum(nil))
		return out
	}
}
