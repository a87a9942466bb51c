package worker

import (
	"context"
	"hash"
	"sync/atomic"
	"time"

	"github.com/screa/ore-miner/internal/crypto"
	"github.com/screa/ore-miner/pkg/types"
)

// deadlineCheckInterval is the number of hashes between deadline reads.
// Power of two so the check compiles to a mask.
const deadlineCheckInterval = 64

// Worker searches one exclusive nonce range per round
type Worker struct {
	id       int
	attempts *int64 // shared progress counter, updated once per check interval

	// Pre-allocated for the hot loop
	hasher  hash.Hash
	hashBuf types.Hash
}

// NewWorker creates a new worker instance. attempts may be nil.
func NewWorker(id int, attempts *int64) *Worker {
	if attempts == nil {
		attempts = new(int64)
	}
	return &Worker{
		id:       id,
		attempts: attempts,
		hasher:   crypto.NewHasher(),
	}
}

// ID returns the worker index assigned by the coordinator
func (w *Worker) ID() int {
	return w.id
}

// Search hashes seed||nonce for every nonce in r until a hash meets target,
// the deadline passes, ctx is cancelled, or the range is exhausted. It
// returns the lowest hash seen; Satisfies is set when that hash qualifies.
func (w *Worker) Search(ctx context.Context, seed []byte, target types.Target, r types.NonceRange, deadline time.Time) types.SearchResult {
	start := time.Now()

	input := make([]byte, len(seed)+crypto.NonceLen)
	copy(input, seed)

	best := types.SearchResult{Nonce: r.Start, Hash: types.MaxHash}
	var count, unflushed int64

	for nonce := r.Start; nonce < r.End; nonce++ {
		if count&(deadlineCheckInterval-1) == 0 {
			atomic.AddInt64(w.attempts, unflushed)
			unflushed = 0
			if expired(ctx, deadline) {
				break
			}
		}

		crypto.PutNonce(input, nonce)
		crypto.HashInto(w.hasher, input, &w.hashBuf)
		count++
		unflushed++

		if w.hashBuf.Less(best.Hash) {
			best.Nonce = nonce
			best.Hash = w.hashBuf
		}

		// Any earlier qualifying hash would have exited already, so the
		// first hit is also the best hash of this range.
		if crypto.MeetsDifficulty(w.hashBuf, target) {
			best.Satisfies = true
			break
		}
	}

	atomic.AddInt64(w.attempts, unflushed)
	best.Attempts = count
	best.Duration = time.Since(start)
	return best
}

func expired(ctx context.Context, deadline time.Time) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	return !time.Now().Before(deadline)
}
