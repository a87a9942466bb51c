package miner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/screa/ore-miner/internal/config"
	"github.com/screa/ore-miner/internal/crypto"
	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/types"
	"github.com/screa/ore-miner/pkg/worker"
)

// Searcher is the per-worker search routine
type Searcher interface {
	Search(ctx context.Context, seed []byte, target types.Target, r types.NonceRange, deadline time.Time) types.SearchResult
}

// Miner coordinates one search round at a time across parallel workers.
// Workers of the same round never share a nonce; consecutive rounds over the
// same seed resume where the previous round stopped.
type Miner struct {
	config   *config.Config
	logger   *logger.Logger
	attempts int64

	newSearcher func(id int, attempts *int64) Searcher

	mu     sync.Mutex
	resume *cursor
}

// cursor remembers how far each range got for the last seed and target
// searched
type cursor struct {
	seed   []byte
	target types.Target
	next   []uint64
}

// NewMiner creates a new miner instance
func NewMiner(cfg *config.Config, log *logger.Logger) *Miner {
	return &Miner{
		config: cfg,
		logger: log,
		newSearcher: func(id int, attempts *int64) Searcher {
			return worker.NewWorker(id, attempts)
		},
	}
}

// Attempts returns the total number of hashes computed by this miner
func (m *Miner) Attempts() int64 {
	return atomic.LoadInt64(&m.attempts)
}

// Partition splits [0, MaxUint64) into threads contiguous equal-width
// ranges. The last range absorbs the remainder.
func Partition(threads int) ([]types.NonceRange, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("%w: thread count must be at least 1, got %d", types.ErrInvalidConfig, threads)
	}

	width := uint64(math.MaxUint64) / uint64(threads)
	ranges := make([]types.NonceRange, threads)
	for i := range ranges {
		start := uint64(i) * width
		ranges[i] = types.NonceRange{Start: start, End: start + width}
	}
	ranges[threads-1].End = math.MaxUint64
	return ranges, nil
}

// Select picks the round winner: qualifying results first, then the
// smallest hash, then the smallest nonce. The order of results does not
// affect the choice.
func Select(results []types.SearchResult) types.SearchResult {
	best := types.SearchResult{Hash: types.MaxHash}
	for i, r := range results {
		if i == 0 || isBetter(r, best) {
			best = r
		}
	}
	return best
}

func isBetter(a, b types.SearchResult) bool {
	if a.Satisfies != b.Satisfies {
		return a.Satisfies
	}
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	return a.Nonce < b.Nonce
}

// RunRound searches seed against target on threads workers until every
// worker has returned. Workers stop at the shared deadline or on their own
// qualifying hash; a hit does not cancel its siblings.
func (m *Miner) RunRound(ctx context.Context, threads int, target types.Target, seed []byte, budget time.Duration) (types.SearchResult, error) {
	ranges, err := m.rangesFor(threads, seed, target)
	if err != nil {
		return types.SearchResult{}, err
	}

	start := time.Now()
	deadline := start.Add(budget)
	roundStart := m.Attempts()

	results := make([]types.SearchResult, threads)
	failures := make([]error, threads)

	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(id int, r types.NonceRange) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					failures[id] = fmt.Errorf("%w: worker %d: %v", types.ErrWorkerFailure, id, p)
				}
			}()
			results[id] = m.newSearcher(id, &m.attempts).Search(ctx, seed, target, r, deadline)
		}(i, r)
	}

	// Start periodic logging if verbose mode is enabled
	var logDone chan struct{}
	if m.config.Verbose && m.config.LogInterval > 0 {
		logDone = make(chan struct{})
		ticker := time.NewTicker(time.Duration(m.config.LogInterval) * time.Second)
		go m.periodicLogger(ticker, logDone, start, roundStart)
	}

	wg.Wait()

	if logDone != nil {
		close(logDone)
	}

	if err := errors.Join(failures...); err != nil {
		// a failed range was not searched; nothing from this round is trusted
		m.forget()
		return types.SearchResult{}, err
	}

	m.advance(seed, target, ranges, results)

	best := Select(results)
	best.Attempts = 0
	for _, r := range results {
		best.Attempts += r.Attempts
	}
	best.Duration = time.Since(start)

	m.logger.Debug("round complete",
		zap.Int("threads", threads),
		zap.Int64("attempts", best.Attempts),
		zap.Bool("satisfies", best.Satisfies),
		zap.Uint64("nonce", best.Nonce),
		zap.String("hash", crypto.FormatHash(best.Hash)),
	)
	return best, nil
}

// rangesFor partitions the nonce space and, when seed, target and thread
// count all match the previous round, skips the nonces that round already
// covered. A new target means earlier nonces must be checked again.
func (m *Miner) rangesFor(threads int, seed []byte, target types.Target) ([]types.NonceRange, error) {
	ranges, err := Partition(threads)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resume != nil && bytes.Equal(m.resume.seed, seed) && m.resume.target == target && len(m.resume.next) == threads {
		for i := range ranges {
			if next := m.resume.next[i]; next > ranges[i].Start && next <= ranges[i].End {
				ranges[i].Start = next
			}
		}
	}
	return ranges, nil
}

func (m *Miner) advance(seed []byte, target types.Target, ranges []types.NonceRange, results []types.SearchResult) {
	next := make([]uint64, len(ranges))
	for i, r := range ranges {
		next[i] = r.Start + uint64(results[i].Attempts)
	}

	m.mu.Lock()
	m.resume = &cursor{seed: append([]byte(nil), seed...), target: target, next: next}
	m.mu.Unlock()
}

func (m *Miner) forget() {
	m.mu.Lock()
	m.resume = nil
	m.mu.Unlock()
}

// periodicLogger logs mining progress at regular intervals
func (m *Miner) periodicLogger(ticker *time.Ticker, done chan struct{}, start time.Time, roundStart int64) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			attempts := m.Attempts() - roundStart
			elapsed := time.Since(start)

			// Calculate rate safely
			rate := 0.0
			if elapsed.Seconds() > 0 {
				rate = float64(attempts) / elapsed.Seconds()
			}

			m.logger.Info("progress",
				zap.Int64("attempts", attempts),
				zap.String("rate", fmt.Sprintf("%.2f hashes/sec", rate)),
			)
		case <-done:
			return
		}
	}
}
