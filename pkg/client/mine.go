package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/screa/ore-miner/internal/crypto"
	"github.com/screa/ore-miner/internal/journal"
	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/txbuilder"
	"github.com/screa/ore-miner/pkg/types"
)

// ErrBussesDrained means no bus can pay a reward until the next epoch
var ErrBussesDrained = fmt.Errorf("%w: every bus is below the reward rate", types.ErrInsufficientBalance)

// Mine runs rounds until ctx is cancelled. Expected failures such as
// expired or rejected submissions are logged and the loop continues with
// freshly read state. Configuration errors and worker failures stop it.
func (c *Client) Mine(ctx context.Context, threads int) error {
	c.logger.Info("mining started",
		zap.String("authority", c.Signer().String()),
		zap.Int("threads", threads),
		zap.Duration("round_time", c.config.RoundTime),
	)

	for round := 1; ; round++ {
		if ctx.Err() != nil {
			break
		}

		err := c.mineRound(ctx, threads)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, types.ErrInvalidConfig) || errors.Is(err, types.ErrWorkerFailure) {
			return err
		}

		c.logger.Warn("round failed", zap.Int("round", round), zap.Error(err))
		if err := c.sleep(ctx, c.config.RetryInterval); err != nil {
			break
		}
	}

	c.logger.Info("mining stopped", zap.Int64("hashes", c.miner.Attempts()))
	return nil
}

// mineRound reads fresh state, searches one round and submits a qualifying
// result
func (c *Client) mineRound(ctx context.Context, threads int) error {
	signer := c.Signer()

	proof, err := c.ensureProof(ctx)
	if err != nil {
		return err
	}

	treasury, err := c.accounts.Treasury(ctx)
	if err != nil {
		return err
	}
	if treasury.NeedsReset(c.now()) {
		// another miner may win the race; either way the epoch moves on
		if _, err := c.Reset(ctx); err != nil {
			c.logger.Debug("reset not applied", zap.Error(err))
		}
		if treasury, err = c.accounts.Treasury(ctx); err != nil {
			return err
		}
	}

	busses, err := c.accounts.Busses(ctx)
	if err != nil {
		return err
	}
	bus, err := ChooseBus(busses, treasury.RewardRate)
	if err != nil {
		return err
	}

	seed := crypto.NewSeed(proof.Hash, signer)
	target := treasury.Target()
	c.logger.Debug("round start",
		zap.Uint64("bus", bus.ID),
		zap.String("challenge", crypto.FormatHash(proof.Hash)),
		zap.String("target", target.String()),
	)

	result, err := c.miner.RunRound(ctx, threads, target, seed, c.config.RoundTime)
	if err != nil {
		return err
	}

	hashRate := 0.0
	if secs := result.Duration.Seconds(); secs > 0 {
		hashRate = float64(result.Attempts) / secs
	}
	if !result.Satisfies {
		c.logger.Info("no qualifying hash this round",
			zap.Int64("attempts", result.Attempts),
			zap.Float64("hash_rate", hashRate),
			zap.String("best", crypto.FormatHash(result.Hash)),
		)
		return nil
	}

	c.logger.Info("found qualifying hash",
		zap.Uint64("nonce", result.Nonce),
		zap.String("hash", crypto.FormatHash(result.Hash)),
		zap.Int64("attempts", result.Attempts),
		zap.Float64("hash_rate", hashRate),
	)

	// a landed mine rotates the challenge; rebuilding on a new one would fail on chain
	precheck := func(ctx context.Context) error {
		current, err := c.accounts.Proof(ctx, signer)
		if err != nil {
			return err
		}
		if current.Hash != proof.Hash {
			return ErrStaleChallenge
		}
		return nil
	}

	kind := txbuilder.Mine{Result: result, Bus: ore.BusAddress(bus.ID)}
	_, err = c.send(ctx, kind, precheck, journal.Entry{
		Kind:   journal.KindMine,
		Nonce:  result.Nonce,
		Hash:   crypto.FormatHash(result.Hash),
		Amount: treasury.RewardRate,
	})
	return err
}

// ensureProof returns the signer's proof, registering it first if missing
func (c *Client) ensureProof(ctx context.Context) (*ore.Proof, error) {
	proof, err := c.accounts.Proof(ctx, c.Signer())
	if err == nil {
		return proof, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	if _, err := c.Register(ctx); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return nil, err
	}
	return c.accounts.Proof(ctx, c.Signer())
}

// ChooseBus picks the bus with the most remaining rewards among those that
// can still pay rewardRate. Ties go to the lower id.
func ChooseBus(busses []ore.Bus, rewardRate uint64) (ore.Bus, error) {
	var best *ore.Bus
	for i := range busses {
		b := &busses[i]
		if b.Rewards < rewardRate || b.ID >= ore.BusCount {
			continue
		}
		if best == nil || b.Rewards > best.Rewards || (b.Rewards == best.Rewards && b.ID < best.ID) {
			best = b
		}
	}
	if best == nil {
		return ore.Bus{}, ErrBussesDrained
	}
	return *best, nil
}
