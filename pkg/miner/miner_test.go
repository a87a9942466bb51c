package miner

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/ore-miner/internal/config"
	"github.com/screa/ore-miner/internal/crypto"
	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/types"
)

func newTestMiner() *Miner {
	return NewMiner(config.NewConfig(), logger.Nop())
}

func TestNewMiner(t *testing.T) {
	cfg := config.NewConfig()
	miner := NewMiner(cfg, logger.Nop())
	if miner == nil {
		t.Fatal("NewMiner returned nil")
	}

	if miner.config != cfg {
		t.Error("Config not set correctly")
	}
}

func TestPartitionCoversSpace(t *testing.T) {
	for _, threads := range []int{1, 2, 3, 4, 7, 8, 16, 17, 64, 1000} {
		ranges, err := Partition(threads)
		require.NoError(t, err)
		require.Len(t, ranges, threads)

		assert.Equal(t, uint64(0), ranges[0].Start, "threads=%d", threads)
		assert.Equal(t, uint64(math.MaxUint64), ranges[threads-1].End, "threads=%d", threads)

		var total uint64
		for i, r := range ranges {
			assert.Less(t, r.Start, r.End, "threads=%d range=%d", threads, i)
			if i > 0 {
				// contiguous: no gap and no overlap
				assert.Equal(t, ranges[i-1].End, r.Start, "threads=%d range=%d", threads, i)
			}
			total += r.Len()
		}
		assert.Equal(t, uint64(math.MaxUint64), total, "threads=%d", threads)
	}
}

func TestPartitionRejectsZero(t *testing.T) {
	_, err := Partition(0)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = Partition(-2)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRunRoundZeroThreads(t *testing.T) {
	_, err := newTestMiner().RunRound(context.Background(), 0, types.Target{}, []byte("test"), time.Second)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestSelectIsOrderIndependent(t *testing.T) {
	low := types.Hash{0x00, 0x01}
	mid := types.Hash{0x00, 0x02}
	high := types.Hash{0x10}

	results := []types.SearchResult{
		{Nonce: 5, Hash: high},
		{Nonce: 9, Hash: mid, Satisfies: true},
		{Nonce: 3, Hash: low, Satisfies: true},
		{Nonce: 1, Hash: low, Satisfies: true},
		{Nonce: 2, Hash: types.Hash{}},
	}

	expected := types.SearchResult{Nonce: 1, Hash: low, Satisfies: true}
	permute(results, 0, func(p []types.SearchResult) {
		assert.Equal(t, expected, Select(p))
	})
}

func TestSelectPrefersQualifying(t *testing.T) {
	tests := []struct {
		name     string
		results  []types.SearchResult
		expected types.SearchResult
	}{
		{
			name: "qualifying beats smaller non-qualifying",
			results: []types.SearchResult{
				{Nonce: 1, Hash: types.Hash{0x00}},
				{Nonce: 2, Hash: types.Hash{0x05}, Satisfies: true},
			},
			expected: types.SearchResult{Nonce: 2, Hash: types.Hash{0x05}, Satisfies: true},
		},
		{
			name: "best effort when none qualify",
			results: []types.SearchResult{
				{Nonce: 1, Hash: types.Hash{0x09}},
				{Nonce: 2, Hash: types.Hash{0x03}},
				{Nonce: 3, Hash: types.Hash{0x07}},
			},
			expected: types.SearchResult{Nonce: 2, Hash: types.Hash{0x03}},
		},
		{
			name:     "single result",
			results:  []types.SearchResult{{Nonce: 4, Hash: types.MaxHash}},
			expected: types.SearchResult{Nonce: 4, Hash: types.MaxHash},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Select(tt.results))
		})
	}
}

func TestRunRoundEasyTarget(t *testing.T) {
	target, err := crypto.ParseTarget("0x0000ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	m := newTestMiner()
	result, err := m.RunRound(context.Background(), 4, target, []byte("test"), time.Second)
	require.NoError(t, err)

	assert.True(t, result.Satisfies)
	assert.True(t, crypto.MeetsDifficulty(result.Hash, target))
	assert.Equal(t, crypto.Hash([]byte("test"), result.Nonce), result.Hash)
	assert.Greater(t, result.Attempts, int64(0))
	assert.Equal(t, result.Attempts, m.Attempts())
}

func TestRunRoundBestEffort(t *testing.T) {
	m := newTestMiner()
	result, err := m.RunRound(context.Background(), 2, types.Target{}, []byte("hard"), 50*time.Millisecond)
	require.NoError(t, err)

	assert.False(t, result.Satisfies)
	assert.Greater(t, result.Attempts, int64(0))
	assert.Equal(t, crypto.Hash([]byte("hard"), result.Nonce), result.Hash)
}

func TestRunRoundResumesSameSeed(t *testing.T) {
	m := newTestMiner()
	seed := []byte("resume")

	first, err := m.RunRound(context.Background(), 2, types.Target{}, seed, 20*time.Millisecond)
	require.NoError(t, err)
	firstRanges := append([]uint64(nil), m.resume.next...)

	ranges, err := m.rangesFor(2, seed, types.Target{})
	require.NoError(t, err)
	assert.Equal(t, firstRanges[0], ranges[0].Start)
	assert.Equal(t, firstRanges[1], ranges[1].Start)
	assert.Greater(t, first.Attempts, int64(0))

	fresh, err := m.rangesFor(2, []byte("other"), types.Target{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fresh[0].Start)
}

func TestRunRoundRestartsWhenTargetChanges(t *testing.T) {
	m := newTestMiner()
	seed := []byte("retarget")

	_, err := m.RunRound(context.Background(), 2, types.Target{}, seed, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, m.resume)
	assert.Greater(t, m.resume.next[0], uint64(0))

	easier := crypto.TargetFromLeadingZeros(8)
	ranges, err := m.rangesFor(2, seed, easier)
	require.NoError(t, err)
	full, err := Partition(2)
	require.NoError(t, err)
	assert.Equal(t, full, ranges)

	// the first range stops at its lowest qualifying nonce even though the
	// previous round already hashed it
	first := uint64(0)
	for !crypto.MeetsDifficulty(crypto.Hash(seed, first), easier) {
		first++
	}
	result, err := m.RunRound(context.Background(), 2, easier, seed, time.Second)
	require.NoError(t, err)
	require.True(t, result.Satisfies)
	assert.Equal(t, first+1, m.resume.next[0])
}

type panicSearcher struct{}

func (panicSearcher) Search(context.Context, []byte, types.Target, types.NonceRange, time.Time) types.SearchResult {
	panic("boom")
}

func TestRunRoundWorkerFailure(t *testing.T) {
	m := newTestMiner()
	base := m.newSearcher
	m.newSearcher = func(id int, attempts *int64) Searcher {
		if id == 2 {
			return panicSearcher{}
		}
		return base(id, attempts)
	}

	_, err := m.RunRound(context.Background(), 4, types.Target{}, []byte("test"), 20*time.Millisecond)
	assert.ErrorIs(t, err, types.ErrWorkerFailure)
	assert.Nil(t, m.resume)
}

func permute(s []types.SearchResult, k int, visit func([]types.SearchResult)) {
	if k == len(s) {
		visit(s)
		return
	}
	for i := k; i < len(s); i++ {
		s[k], s[i] = s[i], s[k]
		permute(s, k+1, visit)
		s[k], s[i] = s[i], s[k]
	}
}
