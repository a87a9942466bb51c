package ore

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ProgramID   = solana.MustPublicKeyFromBase58("mineRHF5r6S7HyD9SppBfVMXMavDkJsxwGesEvxZr2A")
	MintAddress = solana.MustPublicKeyFromBase58("oreoN2tQbHXVaZsr3pf66A48miqcBXCDJozganhEJgz")

	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SlotHashesSysvarID       = solana.MustPublicKeyFromBase58("SysvarS1otHashes111111111111111111111111111")
)

// PDA seeds
var (
	busSeed      = []byte("bus")
	proofSeed    = []byte("proof")
	treasurySeed = []byte("treasury")
)

const (
	BusCount      = 8
	TokenDecimals = 9

	// Rewards can be reset once per epoch
	EpochDuration = 60 * time.Second
)

// Compute-unit limits per instruction, measured on mainnet with headroom
const (
	ComputeLimitMine     = 3_200
	ComputeLimitClaim    = 11_000
	ComputeLimitRegister = 7_660
	ComputeLimitReset    = 12_200
	ComputeLimitCreateTA = 24_000
)

var (
	treasuryAddress       = mustFind(treasurySeed)
	treasuryTokensAddress = mustATA(treasuryAddress, MintAddress)
	busAddresses          = func() [BusCount]solana.PublicKey {
		var out [BusCount]solana.PublicKey
		for i := range out {
			out[i] = mustFind(busSeed, []byte{byte(i)})
		}
		return out
	}()
)

// TreasuryAddress returns the treasury PDA
func TreasuryAddress() solana.PublicKey {
	return treasuryAddress
}

// TreasuryTokensAddress returns the treasury's token account for the mint
func TreasuryTokensAddress() solana.PublicKey {
	return treasuryTokensAddress
}

// BusAddress returns the PDA of bus id. id must be below BusCount.
func BusAddress(id uint64) solana.PublicKey {
	return busAddresses[id]
}

// BusAddresses returns every bus PDA in id order
func BusAddresses() []solana.PublicKey {
	out := make([]solana.PublicKey, BusCount)
	copy(out, busAddresses[:])
	return out
}

// ProofAddress returns the proof PDA of authority and its bump
func ProofAddress(authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{proofSeed, authority[:]}, ProgramID)
}

// TokenAddress returns owner's associated token account for the mint
func TokenAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, MintAddress)
	return addr, err
}

func mustFind(seeds ...[]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic("ore: derive address: " + err.Error())
	}
	return addr
}

func mustATA(owner, mint solana.PublicKey) solana.PublicKey {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		panic("ore: derive token address: " + err.Error())
	}
	return addr
}
