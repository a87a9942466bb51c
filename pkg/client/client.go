package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/screa/ore-miner/internal/config"
	"github.com/screa/ore-miner/internal/journal"
	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/miner"
	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/submit"
	"github.com/screa/ore-miner/pkg/txbuilder"
	"github.com/screa/ore-miner/pkg/types"
)

// Errors
var (
	ErrAlreadyRegistered = errors.New("proof account already exists")
	ErrStaleChallenge    = errors.New("proof challenge changed since the search")
)

// AccountReader is the read side of the ledger
type AccountReader interface {
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Rewards(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Proof(ctx context.Context, owner solana.PublicKey) (*ore.Proof, error)
	Treasury(ctx context.Context) (*ore.Treasury, error)
	TreasuryBalance(ctx context.Context) (uint64, error)
	Busses(ctx context.Context) ([]ore.Bus, error)
}

// Recorder keeps a history of confirmed transactions
type Recorder interface {
	Record(e journal.Entry) error
}

// Client mines and claims for a single signer
type Client struct {
	config    *config.Config
	logger    *logger.Logger
	accounts  AccountReader
	miner     *miner.Miner
	builder   *txbuilder.Builder
	submitter *submit.Submitter
	journal   Recorder

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. rec may be nil.
func New(cfg *config.Config, log *logger.Logger, accounts AccountReader, ledger submit.Ledger, signer solana.PrivateKey, rec Recorder) *Client {
	return &Client{
		config:    cfg,
		logger:    log,
		accounts:  accounts,
		miner:     miner.NewMiner(cfg, log),
		builder:   txbuilder.NewBuilder(signer, accounts),
		submitter: submit.NewSubmitter(ledger, log),
		journal:   rec,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Signer returns the mining authority
func (c *Client) Signer() solana.PublicKey {
	return c.builder.Signer()
}

// Register creates the signer's proof account
func (c *Client) Register(ctx context.Context) (submit.Outcome, error) {
	_, err := c.accounts.Proof(ctx, c.Signer())
	if err == nil {
		return submit.Outcome{}, ErrAlreadyRegistered
	}
	if !errors.Is(err, types.ErrNotFound) {
		return submit.Outcome{}, err
	}

	c.logger.Info("registering", zap.String("authority", c.Signer().String()))
	return c.send(ctx, txbuilder.Register{}, nil, journal.Entry{Kind: journal.KindRegister})
}

// Reset starts a new reward epoch
func (c *Client) Reset(ctx context.Context) (submit.Outcome, error) {
	return c.send(ctx, txbuilder.Reset{}, nil, journal.Entry{Kind: journal.KindReset})
}

// Claim transfers amount of claimable rewards to beneficiary. A nil amount
// claims everything; a nil beneficiary pays the signer's token account.
func (c *Client) Claim(ctx context.Context, amount *uint64, beneficiary *solana.PublicKey) (submit.Outcome, error) {
	resolved, err := c.builder.ResolveClaim(ctx, amount)
	if err != nil {
		return submit.Outcome{}, err
	}

	// rebuilt attempts must still be covered by the claimable balance
	precheck := func(ctx context.Context) error {
		_, err := c.builder.ResolveClaim(ctx, &resolved)
		return err
	}

	c.logger.Info("claiming", zap.String("amount", ore.FormatAmount(resolved)))
	return c.send(ctx, txbuilder.Claim{Amount: &resolved, Beneficiary: beneficiary}, precheck,
		journal.Entry{Kind: journal.KindClaim, Amount: resolved})
}

// send submits one transaction of kind and journals it once it lands
func (c *Client) send(ctx context.Context, kind txbuilder.Kind, precheck func(context.Context) error, entry journal.Entry) (submit.Outcome, error) {
	req := txbuilder.Request{Kind: kind, PriorityFee: c.config.PriorityFee}
	build := func(ctx context.Context, blockhash solana.Hash) (*solana.Transaction, error) {
		return c.builder.Build(ctx, req, blockhash)
	}

	out, err := c.submitter.Submit(ctx, build, c.options(precheck))
	if err != nil {
		return out, fmt.Errorf("%s: %w", kind.Name(), err)
	}

	c.logger.Info("transaction confirmed",
		zap.String("kind", kind.Name()),
		zap.String("signature", out.Signature.String()),
		zap.Uint64("slot", out.Slot),
		zap.Int("attempts", out.Attempts),
	)

	if c.journal != nil {
		entry.Signature = out.Signature.String()
		entry.Slot = out.Slot
		entry.Time = c.now()
		entry.Attempts = out.Attempts
		if err := c.journal.Record(entry); err != nil {
			c.logger.Warn("journal write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (c *Client) options(precheck func(context.Context) error) submit.Options {
	return submit.Options{
		Commitment:    c.config.GetCommitment(),
		MaxRetries:    c.config.MaxRetries,
		RetryInterval: c.config.RetryInterval,
		MaxPolls:      c.config.MaxPolls,
		NetRetries:    c.config.NetRetries,
		Precheck:      precheck,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
