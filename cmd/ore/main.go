package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/screa/ore-miner/internal/config"
	"github.com/screa/ore-miner/internal/journal"
	logpkg "github.com/screa/ore-miner/internal/logger"
	"github.com/screa/ore-miner/pkg/client"
	"github.com/screa/ore-miner/pkg/ledger"
)

var (
	cfg    = config.NewConfig()
	logger = logpkg.Nop()
)

func main() {
	// Ctrl+C stops mining between rounds and abandons pending confirmations
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logger.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ore",
		Short: "ORE miner and wallet client",
		Long: `A command line client for the ORE proof-of-work token on Solana.
It mines with all requested CPU threads and submits mine and claim
transactions with automatic retries.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.RPCURL, "rpc", config.DefaultRPCURL, "Solana RPC endpoint (env ORE_RPC_URL)")
	flags.StringVar(&cfg.PrivateKey, "private-key", "", "Base58 secret key of the signer (env ORE_PRIVATE_KEY)")
	flags.StringVar(&cfg.KeypairPath, "keypair", "", "Path to a solana-keygen keypair file (env ORE_KEYPAIR)")
	flags.Uint64Var(&cfg.PriorityFee, "priority-fee", 0, "Priority fee in micro-lamports per compute unit")
	flags.StringVar(&cfg.Commitment, "commitment", cfg.Commitment, "Confirmation level: confirmed or finalized")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Rebuilds of an expired transaction")
	flags.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "Confirmation poll interval")
	flags.IntVar(&cfg.MaxPolls, "max-polls", cfg.MaxPolls, "Polls before an attempt counts as expired (0: block height only)")
	flags.IntVar(&cfg.NetRetries, "net-retries", cfg.NetRetries, "Retries of a failed RPC call")
	flags.Float64Var(&cfg.RPCRate, "rpc-rate", cfg.RPCRate, "Maximum RPC requests per second")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.StringVarP(&cfg.LogFile, "log-file", "l", "", "Rotating log file (default: stderr)")
	flags.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "Transaction history database")

	rootCmd.AddCommand(
		newBalanceCmd(),
		newBussesCmd(),
		newMineCmd(),
		newClaimCmd(),
		newRewardsCmd(),
		newTreasuryCmd(),
		newRegisterCmd(),
		newHistoryCmd(),
	)
	return rootCmd
}

func newMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine ORE until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runMine,
	}
	cmd.Flags().IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, fmt.Sprintf("Number of hashing threads (this machine has %d CPUs)", runtime.NumCPU()))
	cmd.Flags().DurationVar(&cfg.RoundTime, "round-time", cfg.RoundTime, "Search time per round")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log hashing progress during rounds")
	cmd.Flags().IntVarP(&cfg.LogInterval, "log-interval", "i", cfg.LogInterval, "Progress interval in seconds")
	return cmd
}

func runMine(cmd *cobra.Command, args []string) error {
	c, closeJournal, err := newClient()
	if err != nil {
		return err
	}
	defer closeJournal()

	return c.Mine(cmd.Context(), cfg.Threads)
}

// setup applies environment overrides, validates the configuration and
// installs the logger
func setup(cmd *cobra.Command, args []string) error {
	rpcURL, level := cfg.RPCURL, cfg.LogLevel
	cfg.ApplyEnv()
	if cmd.Flags().Changed("rpc") {
		cfg.RPCURL = rpcURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogFile != "" {
		fileLogger, err := logpkg.NewFile(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logger = fileLogger
	} else {
		logger = logpkg.New(cfg.LogLevel)
	}
	return nil
}

func newReader() *ledger.Client {
	return ledger.New(cfg.RPCURL, cfg.RPCRate, cfg.GetCommitment(), logger)
}

// newClient loads the signer and wires a client with the journal attached.
// A journal that cannot be opened only disables history.
func newClient() (*client.Client, func(), error) {
	signer, err := cfg.GetSigner()
	if err != nil {
		return nil, nil, err
	}

	rpcClient := newReader()

	var recorder client.Recorder
	closeJournal := func() {}
	if j, err := journal.Open(cfg.JournalPath); err != nil {
		logger.Warn("journal disabled", zap.String("path", cfg.JournalPath), zap.Error(err))
	} else {
		recorder = j
		closeJournal = func() { closeLogged("journal", j) }
	}

	return client.New(cfg, logger, rpcClient, rpcClient, signer, recorder), closeJournal, nil
}

// closeLogged closes c and logs a failure instead of returning it
func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close "+name, zap.Error(err))
	}
}
