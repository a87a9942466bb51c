package client

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/ore-miner/internal/config"
	"github.com/screa/ore-miner/internal/journal"
	"github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/submit"
	"github.com/screa/ore-miner/pkg/types"
)

// fakeChain serves accounts and applies the ORE instructions it receives
type fakeChain struct {
	mu sync.Mutex

	now      time.Time
	proof    *ore.Proof // nil until registered
	treasury ore.Treasury
	busses   []ore.Bus

	sent    []byte // ORE instruction tag of every landed transaction
	mineBus solana.PublicKey
}

func newFakeChain(now time.Time) *fakeChain {
	chain := &fakeChain{
		now: now,
		treasury: ore.Treasury{
			Difficulty:  [32]byte(types.MaxHash),
			LastResetAt: now.Unix(),
			RewardRate:  1_000,
		},
	}
	for i := 0; i < ore.BusCount; i++ {
		chain.busses = append(chain.busses, ore.Bus{ID: uint64(i), Rewards: 10_000})
	}
	return chain
}

func (f *fakeChain) Balance(context.Context, solana.PublicKey) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) Rewards(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	proof, err := f.Proof(ctx, owner)
	if err != nil {
		return 0, err
	}
	return proof.ClaimableRewards, nil
}

func (f *fakeChain) Proof(context.Context, solana.PublicKey) (*ore.Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proof == nil {
		return nil, types.ErrNotFound
	}
	p := *f.proof
	return &p, nil
}

func (f *fakeChain) Treasury(context.Context) (*ore.Treasury, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.treasury
	return &t, nil
}

func (f *fakeChain) TreasuryBalance(context.Context) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) Busses(context.Context) ([]ore.Bus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ore.Bus(nil), f.busses...), nil
}

func (f *fakeChain) LatestBlockhash(context.Context) (submit.Blockhash, error) {
	return submit.Blockhash{Hash: solana.Hash{1}, LastValidBlockHeight: 1000}, nil
}

func (f *fakeChain) Send(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ix := range tx.Message.Instructions {
		if !tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(ore.ProgramID) {
			continue
		}
		tag := ix.Data[0]
		switch tag {
		case ore.InstructionRegister:
			f.proof = &ore.Proof{Authority: tx.Message.AccountKeys[0], Hash: [32]byte{1}}
		case ore.InstructionReset:
			f.treasury.LastResetAt = f.now.Unix()
		case ore.InstructionMine:
			f.mineBus = tx.Message.AccountKeys[ix.Accounts[1]]
			f.proof.Hash[0]++
			f.proof.ClaimableRewards += f.treasury.RewardRate
		case ore.InstructionClaim:
			f.proof.ClaimableRewards -= binary.LittleEndian.Uint64(ix.Data[1:])
		}
		f.sent = append(f.sent, tag)
	}
	return solana.Signature{byte(len(f.sent))}, nil
}

func (f *fakeChain) SignatureStatus(context.Context, solana.Signature) (*submit.Status, error) {
	return &submit.Status{Slot: 42, Commitment: types.CommitmentConfirmed}, nil
}

func (f *fakeChain) BlockHeight(context.Context) (uint64, error) {
	return 10, nil
}

func (f *fakeChain) sentTags() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.sent...)
}

type memJournal struct {
	entries []journal.Entry
}

func (m *memJournal) Record(e journal.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) kinds() []journal.Kind {
	var out []journal.Kind
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

func testSigner() solana.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
}

func newTestClient(chain *fakeChain) (*Client, *memJournal) {
	cfg := config.NewConfig()
	cfg.RoundTime = 50 * time.Millisecond
	cfg.RetryInterval = time.Millisecond

	j := &memJournal{}
	c := New(cfg, logger.Nop(), chain, chain, testSigner(), j)
	c.now = func() time.Time { return chain.now }
	return c, j
}

func registered(chain *fakeChain, claimable uint64) {
	chain.proof = &ore.Proof{Authority: testSigner().PublicKey(), ClaimableRewards: claimable, Hash: [32]byte{5}}
}

func TestChooseBus(t *testing.T) {
	tests := []struct {
		name     string
		busses   []ore.Bus
		rate     uint64
		expected uint64
		err      error
	}{
		{
			name:     "most rewards",
			busses:   []ore.Bus{{ID: 0, Rewards: 10}, {ID: 1, Rewards: 30}, {ID: 2, Rewards: 20}},
			rate:     5,
			expected: 1,
		},
		{
			name:     "tie goes to lower id",
			busses:   []ore.Bus{{ID: 4, Rewards: 30}, {ID: 2, Rewards: 30}},
			rate:     5,
			expected: 2,
		},
		{
			name:     "rate exactly covered",
			busses:   []ore.Bus{{ID: 6, Rewards: 5}, {ID: 7, Rewards: 4}},
			rate:     5,
			expected: 6,
		},
		{
			name:   "all drained",
			busses: []ore.Bus{{ID: 0, Rewards: 4}, {ID: 1, Rewards: 0}},
			rate:   5,
			err:    types.ErrInsufficientBalance,
		},
		{
			name:   "no busses",
			busses: nil,
			rate:   0,
			err:    ErrBussesDrained,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := ChooseBus(tt.busses, tt.rate)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bus.ID)
		})
	}
}

func TestClaimAll(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 12_500_000_000)
	c, j := newTestClient(chain)

	out, err := c.Claim(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, submit.StateConfirmed, out.State)
	assert.Equal(t, []byte{ore.InstructionClaim}, chain.sentTags())

	rewards, err := chain.Rewards(context.Background(), c.Signer())
	require.NoError(t, err)
	assert.Zero(t, rewards)

	require.Len(t, j.entries, 1)
	assert.Equal(t, journal.KindClaim, j.entries[0].Kind)
	assert.Equal(t, uint64(12_500_000_000), j.entries[0].Amount)
	assert.Equal(t, uint64(42), j.entries[0].Slot)
	assert.Equal(t, out.Signature.String(), j.entries[0].Signature)
}

func TestClaimInsufficient(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 12_500_000_000)
	c, j := newTestClient(chain)

	amount := uint64(20_000_000_000)
	_, err := c.Claim(context.Background(), &amount, nil)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Empty(t, chain.sentTags())
	assert.Empty(t, j.entries)
}

func TestRegister(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	c, j := newTestClient(chain)

	_, err := c.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{ore.InstructionRegister}, chain.sentTags())
	assert.Equal(t, []journal.Kind{journal.KindRegister}, j.kinds())

	_, err = c.Register(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Len(t, chain.sentTags(), 1)
}

func TestMineRoundRegistersResetsAndMines(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	chain := newFakeChain(now)
	chain.treasury.LastResetAt = now.Add(-2 * time.Minute).Unix()
	chain.busses[3].Rewards = 50_000
	c, j := newTestClient(chain)

	require.NoError(t, c.mineRound(context.Background(), 2))

	assert.Equal(t, []byte{ore.InstructionRegister, ore.InstructionReset, ore.InstructionMine}, chain.sentTags())
	assert.Equal(t, []journal.Kind{journal.KindRegister, journal.KindReset, journal.KindMine}, j.kinds())
	assert.Equal(t, ore.BusAddress(3), chain.mineBus)

	mined := j.entries[2]
	assert.NotEmpty(t, mined.Hash)
	assert.Equal(t, uint64(1_000), mined.Amount)

	rewards, err := chain.Rewards(context.Background(), c.Signer())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), rewards)
}

func TestMineRoundWithoutQualifyingHash(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 0)
	chain.treasury.Difficulty = [32]byte{}
	c, j := newTestClient(chain)

	require.NoError(t, c.mineRound(context.Background(), 2))
	assert.Empty(t, chain.sentTags())
	assert.Empty(t, j.entries)
	assert.Greater(t, c.miner.Attempts(), int64(0))
}

func TestMineRoundBussesDrained(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 0)
	chain.treasury.RewardRate = 1_000_000
	c, _ := newTestClient(chain)

	err := c.mineRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBussesDrained)
	assert.Empty(t, chain.sentTags())
}

func TestMineStopsOnCancel(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 0)
	chain.treasury.Difficulty = [32]byte{}
	c, _ := newTestClient(chain)
	c.config.RoundTime = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, c.Mine(ctx, 2))
	assert.Empty(t, chain.sentTags())
}

func TestMineContinuesAfterExpectedFailure(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 0)
	chain.treasury.RewardRate = 1_000_000
	c, _ := newTestClient(chain)

	failures := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.sleep = func(ctx context.Context, d time.Duration) error {
		failures++
		if failures == 3 {
			cancel()
		}
		return ctx.Err()
	}

	assert.NoError(t, c.Mine(ctx, 1))
	assert.Equal(t, 3, failures)
}

func TestMineStopsOnConfigError(t *testing.T) {
	chain := newFakeChain(time.Unix(1_700_000_000, 0))
	registered(chain, 0)
	c, _ := newTestClient(chain)

	err := c.Mine(context.Background(), 0)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
