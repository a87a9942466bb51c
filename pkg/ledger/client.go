package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/submit"
	"github.com/screa/ore-miner/pkg/types"
)

// SPL token account layout: mint (32) + owner (32) + amount (8) + ...
const (
	tokenAmountOffset = 64
	tokenAccountMin   = tokenAmountOffset + 8
)

// Client reads ORE accounts and submits transactions over one shared RPC
// connection. Every call waits on a rate limiter first.
type Client struct {
	rpc        *rpc.Client
	limiter    *rate.Limiter
	commitment rpc.CommitmentType
	logger     *logger.Logger
}

// New creates a client for endpoint allowing rps requests per second
func New(endpoint string, rps float64, commitment types.Commitment, log *logger.Logger) *Client {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		rpc:        rpc.New(endpoint),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		commitment: rpcCommitment(commitment),
		logger:     log,
	}
}

// Balance returns the token balance of owner's associated token account
func (c *Client) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	ata, err := ore.TokenAddress(owner)
	if err != nil {
		return 0, err
	}
	return c.tokenAmount(ctx, ata)
}

// Rewards returns owner's claimable rewards
func (c *Client) Rewards(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	proof, err := c.Proof(ctx, owner)
	if err != nil {
		return 0, err
	}
	return proof.ClaimableRewards, nil
}

// Proof fetches owner's proof account
func (c *Client) Proof(ctx context.Context, owner solana.PublicKey) (*ore.Proof, error) {
	addr, _, err := ore.ProofAddress(owner)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("proof %s: %w", addr, err)
	}
	return ore.DecodeProof(data)
}

// Treasury fetches the treasury account
func (c *Client) Treasury(ctx context.Context) (*ore.Treasury, error) {
	data, err := c.accountData(ctx, ore.TreasuryAddress())
	if err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}
	return ore.DecodeTreasury(data)
}

// TreasuryBalance returns the tokens held by the treasury
func (c *Client) TreasuryBalance(ctx context.Context) (uint64, error) {
	return c.tokenAmount(ctx, ore.TreasuryTokensAddress())
}

// Busses fetches every bus in one round-trip
func (c *Client) Busses(ctx context.Context) ([]ore.Bus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	addrs := ore.BusAddresses()
	out, err := c.rpc.GetMultipleAccountsWithOpts(ctx, addrs, &rpc.GetMultipleAccountsOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, readError(err)
	}
	if len(out.Value) != len(addrs) {
		return nil, fmt.Errorf("%w: got %d bus accounts, want %d", types.ErrNetwork, len(out.Value), len(addrs))
	}

	busses := make([]ore.Bus, 0, len(addrs))
	for i, acc := range out.Value {
		if acc == nil || acc.Data == nil {
			return nil, fmt.Errorf("bus %d: %w", i, types.ErrNotFound)
		}
		bus, err := ore.DecodeBus(acc.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("bus %d: %w", i, err)
		}
		busses = append(busses, *bus)
	}
	return busses, nil
}

// LatestBlockhash implements submit.Ledger
func (c *Client) LatestBlockhash(ctx context.Context) (submit.Blockhash, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return submit.Blockhash{}, err
	}
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return submit.Blockhash{}, readError(err)
	}
	return submit.Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// Send implements submit.Ledger. Preflight simulation runs at the client's
// commitment; see sendError for how refusals are classified.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			c.logger.Debug("send refused", zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
			return solana.Signature{}, sendError(rpcErr)
		}
		return solana.Signature{}, networkError(err)
	}
	return sig, nil
}

// SignatureStatus implements submit.Ledger
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*submit.Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, readError(err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	st := out.Value[0]
	return &submit.Status{
		Slot:       st.Slot,
		Commitment: confirmationLevel(st.ConfirmationStatus),
		Err:        st.Err,
	}, nil
}

// BlockHeight implements submit.Ledger
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, readError(err)
	}
	return height, nil
}

func (c *Client) accountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, readError(err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, types.ErrNotFound
	}
	return out.Value.Data.GetBinary(), nil
}

func (c *Client) tokenAmount(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	data, err := c.accountData(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("token account %s: %w", addr, err)
	}
	if len(data) < tokenAccountMin {
		return 0, fmt.Errorf("token account %s: data too short", addr)
	}
	return binary.LittleEndian.Uint64(data[tokenAmountOffset:]), nil
}

// JSON-RPC error codes returned by sendTransaction
const (
	codeInvalidParams         = -32602
	codePreflightFailure      = -32002
	codeSignatureVerification = -32003
	codeSignatureLenMismatch  = -32013
	codeUnsupportedVersion    = -32015
)

// sendError maps a sendTransaction refusal. A missing blockhash needs a
// rebuild; malformed or failing transactions are definitive; anything else
// (rate limits, unhealthy or lagging nodes, internal errors) is transient.
func sendError(e *jsonrpc.RPCError) error {
	if strings.Contains(strings.ToLower(e.Message), "blockhash not found") {
		return fmt.Errorf("%w: %s", types.ErrBlockhashNotFound, e.Message)
	}
	switch e.Code {
	case codePreflightFailure, codeSignatureVerification, codeSignatureLenMismatch,
		codeUnsupportedVersion, codeInvalidParams:
		return fmt.Errorf("%w: %s", types.ErrRejected, e.Message)
	}
	return fmt.Errorf("%w: rpc error %d: %s", types.ErrNetwork, e.Code, e.Message)
}

func readError(err error) error {
	if errors.Is(err, rpc.ErrNotFound) {
		return types.ErrNotFound
	}
	return networkError(err)
}

func networkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrNetwork, err)
}

func rpcCommitment(c types.Commitment) rpc.CommitmentType {
	switch c {
	case types.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case types.CommitmentFinalized:
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}

func confirmationLevel(s rpc.ConfirmationStatusType) types.Commitment {
	switch s {
	case rpc.ConfirmationStatusFinalized:
		return types.CommitmentFinalized
	case rpc.ConfirmationStatusConfirmed:
		return types.CommitmentConfirmed
	}
	return types.CommitmentProcessed
}
