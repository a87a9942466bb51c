package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/types"
)

// State of one submission
type State int

const (
	StateBuilding State = iota
	StateSent
	StateConfirmed
	StateExpired
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSent:
		return "sent"
	case StateConfirmed:
		return "confirmed"
	case StateExpired:
		return "expired"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// BuildFunc returns a signed transaction anchored at blockhash
type BuildFunc func(ctx context.Context, blockhash solana.Hash) (*solana.Transaction, error)

// Options control confirmation and retries
type Options struct {
	Commitment    types.Commitment
	MaxRetries    int           // rebuilds after an expired attempt
	RetryInterval time.Duration // poll interval and base network backoff
	MaxPolls      int           // polls before an attempt counts as expired; 0 = block height only
	NetRetries    int           // retries of a single ledger call on network errors

	// Precheck runs before every rebuild after the first attempt. An error
	// aborts the submission.
	Precheck func(ctx context.Context) error
}

// Outcome describes a finished submission
type Outcome struct {
	State     State
	Signature solana.Signature
	Blockhash solana.Hash
	Slot      uint64
	Attempts  int // number of transactions sent
}

// Submitter drives transactions through Building -> Sent -> {Confirmed,
// Expired, Rejected}. Only Expired loops back to Building.
type Submitter struct {
	ledger Ledger
	logger *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSubmitter creates a submitter over ledger
func NewSubmitter(ledger Ledger, log *logger.Logger) *Submitter {
	return &Submitter{ledger: ledger, logger: log, sleep: sleepCtx}
}

// run is the per-submission state shared across steps
type run struct {
	opts      Options
	build     BuildFunc
	out       Outcome
	lastValid uint64
	retries   int
	err       error
}

// Submit builds, sends and confirms a transaction. It returns the outcome
// and a nil error only when the transaction reached opts.Commitment.
func (s *Submitter) Submit(ctx context.Context, build BuildFunc, opts Options) (Outcome, error) {
	if opts.Commitment == types.CommitmentProcessed {
		return Outcome{}, fmt.Errorf("%w: processed is not a durable commitment", types.ErrInvalidConfig)
	}
	if opts.RetryInterval <= 0 {
		return Outcome{}, fmt.Errorf("%w: retry interval must be positive", types.ErrInvalidConfig)
	}

	r := &run{opts: opts, build: build}
	state := StateBuilding
	for {
		r.out.State = state

		var err error
		switch state {
		case StateBuilding:
			state, err = s.send(ctx, r)
		case StateSent:
			state, err = s.confirm(ctx, r)
		case StateExpired:
			if r.retries >= opts.MaxRetries {
				return r.out, fmt.Errorf("%w: gave up after %d attempts", types.ErrExpired, r.out.Attempts)
			}
			r.retries++
			s.logger.Warn("transaction expired, rebuilding",
				zap.String("signature", r.out.Signature.String()),
				zap.Int("retry", r.retries),
			)
			state = StateBuilding
		case StateConfirmed:
			return r.out, nil
		case StateRejected:
			return r.out, r.err
		}
		if err != nil {
			return r.out, err
		}
	}
}

// send fetches a fresh blockhash, builds and dispatches one attempt
func (s *Submitter) send(ctx context.Context, r *run) (State, error) {
	if r.out.Attempts > 0 && r.opts.Precheck != nil {
		if err := r.opts.Precheck(ctx); err != nil {
			return StateBuilding, err
		}
	}

	var bh Blockhash
	err := s.withRetry(ctx, r.opts, func() (err error) {
		bh, err = s.ledger.LatestBlockhash(ctx)
		return err
	})
	if err != nil {
		return StateBuilding, err
	}

	tx, err := r.build(ctx, bh.Hash)
	if err != nil {
		return StateBuilding, err
	}

	var sig solana.Signature
	err = s.withRetry(ctx, r.opts, func() (err error) {
		sig, err = s.ledger.Send(ctx, tx)
		return err
	})
	r.out.Attempts++
	r.out.Blockhash = bh.Hash
	if errors.Is(err, types.ErrBlockhashNotFound) {
		s.logger.Debug("blockhash unknown to ledger", zap.String("blockhash", bh.Hash.String()), zap.Error(err))
		return StateExpired, nil
	}
	if errors.Is(err, types.ErrRejected) {
		r.err = err
		return StateRejected, nil
	}
	if err != nil {
		return StateBuilding, err
	}

	r.out.Signature = sig
	r.lastValid = bh.LastValidBlockHeight
	s.logger.Debug("transaction sent",
		zap.String("signature", sig.String()),
		zap.String("blockhash", bh.Hash.String()),
		zap.Uint64("last_valid_height", bh.LastValidBlockHeight),
	)
	return StateSent, nil
}

// confirm polls the signature until it reaches the wanted commitment,
// fails, or its blockhash leaves the validity window
func (s *Submitter) confirm(ctx context.Context, r *run) (State, error) {
	for polls := 1; ; polls++ {
		if err := s.sleep(ctx, r.opts.RetryInterval); err != nil {
			return StateSent, err
		}

		var status *Status
		err := s.withRetry(ctx, r.opts, func() (err error) {
			status, err = s.ledger.SignatureStatus(ctx, r.out.Signature)
			return err
		})
		if err != nil {
			return StateSent, err
		}

		if status != nil {
			if status.Err != nil {
				r.err = fmt.Errorf("%w: %v", types.ErrRejected, status.Err)
				return StateRejected, nil
			}
			if status.Commitment.Reaches(r.opts.Commitment) {
				r.out.Slot = status.Slot
				return StateConfirmed, nil
			}
		}

		var height uint64
		err = s.withRetry(ctx, r.opts, func() (err error) {
			height, err = s.ledger.BlockHeight(ctx)
			return err
		})
		if err != nil {
			return StateSent, err
		}
		if height > r.lastValid {
			return StateExpired, nil
		}
		if r.opts.MaxPolls > 0 && polls >= r.opts.MaxPolls {
			return StateExpired, nil
		}
	}
}

// withRetry retries fn on network errors with exponential backoff
func (s *Submitter) withRetry(ctx context.Context, opts Options, fn func() error) error {
	delay := opts.RetryInterval
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, types.ErrNetwork) || attempt >= opts.NetRetries {
			return err
		}
		s.logger.Debug("ledger call failed, retrying", zap.Error(err), zap.Duration("backoff", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
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
