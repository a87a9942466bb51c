package submit

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/screa/ore-miner/pkg/types"
)

// Blockhash is a recent blockhash and the last block height at which a
// transaction referencing it can still land
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// Status is the ledger's view of a submitted signature
type Status struct {
	Slot       uint64
	Commitment types.Commitment
	Err        interface{} // set when the transaction executed and failed
}

// Ledger is the submission endpoint. Implementations wrap transport
// failures with types.ErrNetwork and definitive refusals (for example a
// failed preflight simulation) with types.ErrRejected.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (Blockhash, error)
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// SignatureStatus returns nil, nil while the signature is unknown
	SignatureStatus(ctx context.Context, sig solana.Signature) (*Status, error)
	BlockHeight(ctx context.Context) (uint64, error)
}
