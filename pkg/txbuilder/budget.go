package txbuilder

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the native program that sets per-transaction
// compute limits and prices
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Compute budget instruction tags
const (
	setComputeUnitLimit byte = 2
	setComputeUnitPrice byte = 3
)

// NewComputeUnitLimitInstruction caps the compute units the transaction may use
func NewComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 1+4)
	data[0] = setComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// NewComputeUnitPriceInstruction sets the priority fee in micro-lamports per
// compute unit
func NewComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 1+8)
	data[0] = setComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}
