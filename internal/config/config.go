package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/screa/ore-miner/pkg/types"
)

// Errors
var (
	ErrNoRPCSpecified    = errors.New("must specify --rpc or ORE_RPC_URL")
	ErrNoSignerSpecified = errors.New("must specify --private-key or --keypair")
)

// Default mainnet endpoint
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config holds the application configuration
type Config struct {
	RPCURL      string
	PrivateKey  string // base58 secret key
	KeypairPath string // solana-keygen JSON file
	PriorityFee uint64 // micro-lamports per compute unit

	Threads     int
	RoundTime   time.Duration
	Verbose     bool
	LogInterval int // progress interval in seconds

	Commitment    string
	MaxRetries    int
	RetryInterval time.Duration
	MaxPolls      int // polls per attempt before treating it as expired; 0 = block height only
	NetRetries    int
	RPCRate       float64 // requests per second

	LogLevel    string
	LogFile     string
	JournalPath string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		RPCURL:        DefaultRPCURL,
		Threads:       1,
		RoundTime:     10 * time.Second,
		LogInterval:   5,
		Commitment:    "confirmed",
		MaxRetries:    4,
		RetryInterval: 2 * time.Second,
		NetRetries:    3,
		RPCRate:       10,
		LogLevel:      "info",
		JournalPath:   defaultJournalPath(),
	}
}

// ApplyEnv overrides unset values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ORE_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("ORE_PRIVATE_KEY"); v != "" && c.PrivateKey == "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("ORE_KEYPAIR"); v != "" && c.KeypairPath == "" {
		c.KeypairPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return ErrNoRPCSpecified
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1", types.ErrInvalidConfig)
	}
	if c.RoundTime <= 0 {
		return fmt.Errorf("%w: round time must be positive", types.ErrInvalidConfig)
	}
	if c.MaxRetries < 0 || c.NetRetries < 0 || c.MaxPolls < 0 {
		return fmt.Errorf("%w: retry counts must not be negative", types.ErrInvalidConfig)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry interval must be positive", types.ErrInvalidConfig)
	}
	if c.RPCRate <= 0 {
		return fmt.Errorf("%w: rpc rate must be positive", types.ErrInvalidConfig)
	}
	commitment, err := types.ParseCommitment(c.Commitment)
	if err != nil {
		return err
	}
	if commitment == types.CommitmentProcessed {
		return fmt.Errorf("%w: processed is not a durable commitment", types.ErrInvalidConfig)
	}
	return nil
}

// GetCommitment returns the parsed confirmation commitment
func (c *Config) GetCommitment() types.Commitment {
	commitment, _ := types.ParseCommitment(c.Commitment)
	return commitment
}

// GetSigner loads the signing key from --private-key or --keypair
func (c *Config) GetSigner() (solana.PrivateKey, error) {
	if key := strings.TrimSpace(c.PrivateKey); key != "" {
		pk, err := solana.PrivateKeyFromBase58(key)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key: %v", types.ErrInvalidConfig, err)
		}
		return pk, nil
	}
	if c.KeypairPath != "" {
		pk, err := solana.PrivateKeyFromSolanaKeygenFile(c.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read keypair: %v", types.ErrInvalidConfig, err)
		}
		return pk, nil
	}
	return nil, ErrNoSignerSpecified
}

// GetAddress resolves an optional address argument, falling back to the signer
func (c *Config) GetAddress(arg string) (solana.PublicKey, error) {
	if arg != "" {
		pub, err := solana.PublicKeyFromBase58(arg)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("%w: invalid address %q: %v", types.ErrInvalidConfig, arg, err)
		}
		return pub, nil
	}
	signer, err := c.GetSigner()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return signer.PublicKey(), nil
}

func defaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ore-journal.db"
	}
	return filepath.Join(home, ".config", "ore", "journal.db")
}
