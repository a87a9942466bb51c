package crypto

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/screa/ore-miner/pkg/types"
)

const (
	// Seed layout: challenge (32) + signer pubkey (32)
	ChallengeLen = 32
	SignerLen    = 32
	SeedLen      = ChallengeLen + SignerLen

	// Nonce is appended little-endian, as the on-chain verifier hashes it
	NonceLen = 8
	InputLen = SeedLen + NonceLen
)

// NewSeed builds the per-round seed from the proof challenge and the signer.
func NewSeed(challenge [ChallengeLen]byte, signer [SignerLen]byte) []byte {
	seed := make([]byte, 0, SeedLen)
	seed = append(seed, challenge[:]...)
	return append(seed, signer[:]...)
}

// NewHasher returns the keccak256 state used by the search loop.
func NewHasher() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// PutNonce writes nonce into the last NonceLen bytes of inputBuf.
func PutNonce(inputBuf []byte, nonce uint64) {
	binary.LittleEndian.PutUint64(inputBuf[len(inputBuf)-NonceLen:], nonce)
}

// HashInto hashes inputBuf (seed followed by nonce) into out.
// Reuses the provided hasher to avoid allocations.
func HashInto(hasher hash.Hash, inputBuf []byte, out *types.Hash) {
	hasher.Reset()
	hasher.Write(inputBuf)
	hasher.Sum(out[:0])
}

// Hash computes keccak256(seed || nonce) with a fresh hasher.
func Hash(seed []byte, nonce uint64) types.Hash {
	input := make([]byte, len(seed)+NonceLen)
	copy(input, seed)
	PutNonce(input, nonce)

	var out types.Hash
	HashInto(sha3.NewLegacyKeccak256(), input, &out)
	return out
}

// MeetsDifficulty reports whether h <= target, comparing all 32 bytes
// as unsigned big-endian integers.
func MeetsDifficulty(h types.Hash, target types.Target) bool {
	return bytes.Compare(h[:], target[:]) <= 0
}

// TargetFromLeadingZeros returns the largest target whose qualifying hashes
// have at least bits leading zero bits.
func TargetFromLeadingZeros(bits int) types.Target {
	var t types.Target
	for i := range t {
		t[i] = 0xff
	}
	if bits <= 0 {
		return t
	}
	if bits > types.HashSize*8 {
		bits = types.HashSize * 8
	}
	for i := 0; i < bits/8; i++ {
		t[i] = 0
	}
	if rem := bits % 8; rem != 0 {
		t[bits/8] = 0xff >> uint(rem)
	}
	return t
}

// ParseTarget decodes a hex target (with or without 0x). Shorter input is
// left-padded with zeros.
func ParseTarget(s string) (types.Target, error) {
	var t types.Target
	h := strings.TrimSpace(s)
	if len(h) >= 2 && (h[0:2] == "0x" || h[0:2] == "0X") {
		h = h[2:]
	}
	if len(h)%2 != 0 {
		h = "0" + h
	}
	if len(h) > types.HashSize*2 {
		return t, fmt.Errorf("%w: target longer than %d bytes", types.ErrInvalidConfig, types.HashSize)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return t, fmt.Errorf("%w: invalid target hex: %v", types.ErrInvalidConfig, err)
	}
	copy(t[types.HashSize-len(b):], b)
	return t, nil
}

// FormatHash renders a hash the way the ledger displays 32-byte values.
func FormatHash(h [32]byte) string {
	return base58.Encode(h[:])
}
