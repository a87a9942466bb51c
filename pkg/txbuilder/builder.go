package txbuilder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/types"
)

// Kind is the main instruction a transaction carries
type Kind interface {
	Name() string
}

// Mine submits a search result against the chosen bus
type Mine struct {
	Result types.SearchResult
	Bus    solana.PublicKey
}

// Claim redeems rewards. A nil Amount claims everything currently
// claimable; a nil Beneficiary pays the signer's token account.
type Claim struct {
	Amount      *uint64
	Beneficiary *solana.PublicKey
}

// Register creates the signer's proof account
type Register struct{}

// Reset starts a new reward epoch
type Reset struct{}

func (Mine) Name() string     { return "mine" }
func (Claim) Name() string    { return "claim" }
func (Register) Name() string { return "register" }
func (Reset) Name() string    { return "reset" }

// Request describes one transaction to build
type Request struct {
	Kind             Kind
	PriorityFee      uint64 // micro-lamports per compute unit
	ComputeUnitLimit uint32 // 0 selects the default for Kind
}

// RewardsReader returns the claimable rewards of a miner in base units
type RewardsReader interface {
	Rewards(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

// Builder assembles and signs transactions for one signer. Output depends
// only on the request, the blockhash, and for claim-all the claimable
// balance read at build time.
type Builder struct {
	signer  solana.PrivateKey
	rewards RewardsReader
}

// NewBuilder creates a builder signing with signer
func NewBuilder(signer solana.PrivateKey, rewards RewardsReader) *Builder {
	return &Builder{signer: signer, rewards: rewards}
}

// Signer returns the fee payer and signing authority
func (b *Builder) Signer() solana.PublicKey {
	return b.signer.PublicKey()
}

// Build returns the signed transaction for req anchored at blockhash
func (b *Builder) Build(ctx context.Context, req Request, blockhash solana.Hash) (*solana.Transaction, error) {
	signer := b.Signer()

	body, limit, err := b.instructions(ctx, req.Kind)
	if err != nil {
		return nil, err
	}
	if req.ComputeUnitLimit != 0 {
		limit = req.ComputeUnitLimit
	}

	ixs := []solana.Instruction{NewComputeUnitLimitInstruction(limit)}
	if req.PriorityFee > 0 {
		ixs = append(ixs, NewComputeUnitPriceInstruction(req.PriorityFee))
	}
	ixs = append(ixs, body...)

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(signer))
	if err != nil {
		return nil, fmt.Errorf("build %s transaction: %w", req.Kind.Name(), err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer) {
			return &b.signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign %s transaction: %w", req.Kind.Name(), err)
	}
	return tx, nil
}

// instructions returns the main instructions for kind and their default
// compute-unit limit
func (b *Builder) instructions(ctx context.Context, kind Kind) ([]solana.Instruction, uint32, error) {
	signer := b.Signer()

	switch k := kind.(type) {
	case Mine:
		ix, err := ore.NewMineInstruction(signer, k.Bus, k.Result.Hash, k.Result.Nonce)
		if err != nil {
			return nil, 0, err
		}
		return []solana.Instruction{ix}, ore.ComputeLimitMine, nil

	case Claim:
		amount, err := b.ResolveClaim(ctx, k.Amount)
		if err != nil {
			return nil, 0, err
		}

		var ixs []solana.Instruction
		limit := uint32(ore.ComputeLimitClaim)

		beneficiary := k.Beneficiary
		if beneficiary == nil {
			ata, err := ore.TokenAddress(signer)
			if err != nil {
				return nil, 0, err
			}
			create, err := ore.NewCreateTokenAccountInstruction(signer, signer)
			if err != nil {
				return nil, 0, err
			}
			ixs = append(ixs, create)
			limit += ore.ComputeLimitCreateTA
			beneficiary = &ata
		}

		ix, err := ore.NewClaimInstruction(signer, *beneficiary, amount)
		if err != nil {
			return nil, 0, err
		}
		return append(ixs, ix), limit, nil

	case Register:
		ix, err := ore.NewRegisterInstruction(signer)
		if err != nil {
			return nil, 0, err
		}
		return []solana.Instruction{ix}, ore.ComputeLimitRegister, nil

	case Reset:
		return []solana.Instruction{ore.NewResetInstruction(signer)}, ore.ComputeLimitReset, nil
	}
	return nil, 0, fmt.Errorf("%w: unknown transaction kind %T", types.ErrInvalidConfig, kind)
}

// ResolveClaim re-reads the claimable balance and returns the amount to
// claim: all of it when amount is nil, otherwise amount if still covered.
func (b *Builder) ResolveClaim(ctx context.Context, amount *uint64) (uint64, error) {
	claimable, err := b.rewards.Rewards(ctx, b.Signer())
	if err != nil {
		return 0, fmt.Errorf("read claimable rewards: %w", err)
	}
	if amount == nil {
		if claimable == 0 {
			return 0, fmt.Errorf("%w: nothing to claim", types.ErrInsufficientBalance)
		}
		return claimable, nil
	}
	if *amount > claimable {
		return 0, fmt.Errorf("%w: requested %s, claimable %s", types.ErrInsufficientBalance,
			ore.FormatAmount(*amount), ore.FormatAmount(claimable))
	}
	return *amount, nil
}
