package config

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/ore-miner/pkg/types"
)

func testKey() solana.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
}

func TestNewConfigIsValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.CommitmentConfirmed, cfg.GetCommitment())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{name: "missing rpc", modify: func(c *Config) { c.RPCURL = "" }, err: ErrNoRPCSpecified},
		{name: "zero threads", modify: func(c *Config) { c.Threads = 0 }, err: types.ErrInvalidConfig},
		{name: "zero round time", modify: func(c *Config) { c.RoundTime = 0 }, err: types.ErrInvalidConfig},
		{name: "negative retries", modify: func(c *Config) { c.MaxRetries = -1 }, err: types.ErrInvalidConfig},
		{name: "zero retry interval", modify: func(c *Config) { c.RetryInterval = 0 }, err: types.ErrInvalidConfig},
		{name: "zero rpc rate", modify: func(c *Config) { c.RPCRate = 0 }, err: types.ErrInvalidConfig},
		{name: "processed commitment", modify: func(c *Config) { c.Commitment = "processed" }, err: types.ErrInvalidConfig},
		{name: "unknown commitment", modify: func(c *Config) { c.Commitment = "rooted" }, err: types.ErrInvalidConfig},
		{name: "finalized commitment", modify: func(c *Config) { c.Commitment = "finalized" }},
		{name: "many threads", modify: func(c *Config) { c.Threads = 64; c.RoundTime = time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGetSigner(t *testing.T) {
	cfg := NewConfig()
	_, err := cfg.GetSigner()
	assert.ErrorIs(t, err, ErrNoSignerSpecified)

	key := testKey()
	cfg.PrivateKey = " " + key.String() + "\n"
	signer, err := cfg.GetSigner()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), signer.PublicKey())

	cfg.PrivateKey = "not-base58-0OIl"
	_, err = cfg.GetSigner()
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestGetAddress(t *testing.T) {
	cfg := NewConfig()
	key := testKey()

	addr, err := cfg.GetAddress(key.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), addr)

	_, err = cfg.GetAddress("")
	assert.ErrorIs(t, err, ErrNoSignerSpecified)

	cfg.PrivateKey = key.String()
	addr, err = cfg.GetAddress("")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), addr)

	_, err = cfg.GetAddress("bogus")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ORE_RPC_URL", "http://localhost:8899")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := NewConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}
