package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"
)

// HashSize is the width of a keccak256 digest and of a difficulty target
const HashSize = 32

// Hash is a full-width keccak256 digest, compared as a big-endian unsigned integer
type Hash [HashSize]byte

// Target is the difficulty threshold. A hash qualifies when hash <= target.
type Target [HashSize]byte

// MaxHash is the worst possible hash, used to seed best-effort tracking
var MaxHash = Hash{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Less reports whether h is numerically smaller than o
func (h Hash) Less(o Hash) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// String returns the hex encoding of the hash
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// String returns the hex encoding of the target
func (t Target) String() string {
	return hex.EncodeToString(t[:])
}

// NonceRange is a half-open slice [Start, End) of the nonce space
type NonceRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of nonces in the range
func (r NonceRange) Len() uint64 {
	return r.End - r.Start
}

// SearchResult represents the best hash one worker (or a whole round) found
type SearchResult struct {
	Nonce     uint64
	Hash      Hash
	Satisfies bool
	Attempts  int64
	Duration  time.Duration
}

// Commitment is the durability level requested from the ledger
type Commitment int

const (
	CommitmentProcessed Commitment = iota
	CommitmentConfirmed
	CommitmentFinalized
)

// String returns the RPC name of the commitment level
func (c Commitment) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	}
	return "unknown"
}

// ParseCommitment parses an RPC commitment name
func ParseCommitment(s string) (Commitment, error) {
	switch s {
	case "processed":
		return CommitmentProcessed, nil
	case "confirmed", "":
		return CommitmentConfirmed, nil
	case "finalized":
		return CommitmentFinalized, nil
	}
	return CommitmentConfirmed, fmt.Errorf("%w: unknown commitment %q", ErrInvalidConfig, s)
}

// Reaches reports whether an observed commitment satisfies the wanted one
func (c Commitment) Reaches(want Commitment) bool {
	return c >= want
}
