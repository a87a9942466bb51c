package ore

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/screa/ore-miner/pkg/types"
)

// Account discriminators
const (
	DiscriminatorBus      byte = 100
	DiscriminatorProof    byte = 101
	DiscriminatorTreasury byte = 102

	discriminatorLen = 8
)

// Serialized sizes, without the discriminator
const (
	busSize      = 8 + 8
	proofSize    = 32 + 8 + 32 + 8 + 8
	treasurySize = 8 + 32 + 32 + 8 + 8 + 8
)

// Bus is a reward pool miners draw from
type Bus struct {
	ID      uint64
	Rewards uint64
}

// Proof tracks a miner's current challenge and unclaimed rewards
type Proof struct {
	Authority        solana.PublicKey
	ClaimableRewards uint64
	Hash             [32]byte
	TotalHashes      uint64
	TotalRewards     uint64
}

// Treasury holds the global difficulty and reward rate
type Treasury struct {
	Bump                uint64
	Admin               solana.PublicKey
	Difficulty          [32]byte
	LastResetAt         int64
	RewardRate          uint64
	TotalClaimedRewards uint64
}

// Target returns the difficulty as a comparable target
func (t *Treasury) Target() types.Target {
	return types.Target(t.Difficulty)
}

// NeedsReset reports whether the current epoch has ended at now
func (t *Treasury) NeedsReset(now time.Time) bool {
	return !now.Before(time.Unix(t.LastResetAt, 0).Add(EpochDuration))
}

// DecodeBus parses bus account data
func DecodeBus(data []byte) (*Bus, error) {
	var b Bus
	if err := decode(data, DiscriminatorBus, busSize, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DecodeProof parses proof account data
func DecodeProof(data []byte) (*Proof, error) {
	var p Proof
	if err := decode(data, DiscriminatorProof, proofSize, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeTreasury parses treasury account data
func DecodeTreasury(data []byte) (*Treasury, error) {
	var t Treasury
	if err := decode(data, DiscriminatorTreasury, treasurySize, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeAccount serializes v behind the given discriminator
func EncodeAccount(discriminator byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write([]byte{discriminator, 0, 0, 0, 0, 0, 0, 0})
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, discriminator byte, size int, v interface{}) error {
	if len(data) < discriminatorLen+size {
		return fmt.Errorf("account data too short: got %d bytes, want %d", len(data), discriminatorLen+size)
	}
	if data[0] != discriminator {
		return fmt.Errorf("unexpected account discriminator %d, want %d", data[0], discriminator)
	}
	return bin.NewBorshDecoder(data[discriminatorLen : discriminatorLen+size]).Decode(v)
}
