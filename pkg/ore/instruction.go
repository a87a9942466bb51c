package ore

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/screa/ore-miner/pkg/types"
)

// Instruction tags
const (
	InstructionReset    byte = 0
	InstructionRegister byte = 1
	InstructionMine     byte = 2
	InstructionClaim    byte = 3
)

// createIdempotent is the associated token program tag that tolerates an
// existing account
const createIdempotent byte = 1

// NewMineInstruction submits a hash and the nonce that produced it
func NewMineInstruction(signer, bus solana.PublicKey, hash types.Hash, nonce uint64) (solana.Instruction, error) {
	proof, _, err := ProofAddress(signer)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 1+types.HashSize+8)
	data[0] = InstructionMine
	copy(data[1:], hash[:])
	binary.LittleEndian.PutUint64(data[1+types.HashSize:], nonce)

	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(bus).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(treasuryAddress),
		solana.Meta(SlotHashesSysvarID),
	}, data), nil
}

// NewClaimInstruction moves amount base units of rewards to beneficiary
func NewClaimInstruction(signer, beneficiary solana.PublicKey, amount uint64) (solana.Instruction, error) {
	proof, _, err := ProofAddress(signer)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 1+8)
	data[0] = InstructionClaim
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(beneficiary).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(treasuryAddress).WRITE(),
		solana.Meta(treasuryTokensAddress).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data), nil
}

// NewRegisterInstruction creates the signer's proof account
func NewRegisterInstruction(signer solana.PublicKey) (solana.Instruction, error) {
	proof, bump, err := ProofAddress(signer)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(proof).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, []byte{InstructionRegister, bump}), nil
}

// NewResetInstruction starts a new epoch and refills the busses
func NewResetInstruction(signer solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{solana.Meta(signer).WRITE().SIGNER()}
	for _, bus := range busAddresses {
		accounts = append(accounts, solana.Meta(bus).WRITE())
	}
	accounts = append(accounts,
		solana.Meta(MintAddress).WRITE(),
		solana.Meta(treasuryAddress).WRITE(),
		solana.Meta(treasuryTokensAddress).WRITE(),
		solana.Meta(solana.TokenProgramID),
	)
	return solana.NewInstruction(ProgramID, accounts, []byte{InstructionReset})
}

// NewCreateTokenAccountInstruction creates owner's token account for the
// mint if it does not exist yet
func NewCreateTokenAccountInstruction(payer, owner solana.PublicKey) (solana.Instruction, error) {
	ata, err := TokenAddress(owner)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(AssociatedTokenProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(MintAddress),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.TokenProgramID),
	}, []byte{createIdempotent}), nil
}
