package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/screa/ore-miner/internal/crypto"
	"github.com/screa/ore-miner/internal/journal"
	"github.com/screa/ore-miner/pkg/ore"
	"github.com/screa/ore-miner/pkg/types"
)

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the ORE token balance of an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := cfg.GetAddress(optionalArg(args, 0))
			if err != nil {
				return err
			}
			balance, err := newReader().Balance(cmd.Context(), owner)
			if errors.Is(err, types.ErrNotFound) {
				balance, err = 0, nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Balance: %s ORE\n", ore.FormatAmount(balance))
			return nil
		},
	}
}

func newRewardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rewards [address]",
		Short: "Show the claimable rewards of an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := cfg.GetAddress(optionalArg(args, 0))
			if err != nil {
				return err
			}
			rewards, err := newReader().Rewards(cmd.Context(), owner)
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%s has not registered a proof account", owner)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Rewards: %s ORE\n", ore.FormatAmount(rewards))
			return nil
		},
	}
}

func newBussesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "busses",
		Short: "Show the remaining rewards of every bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			busses, err := newReader().Busses(cmd.Context())
			if err != nil {
				return err
			}
			for _, bus := range busses {
				fmt.Printf("Bus %d: %s ORE\n", bus.ID, ore.FormatAmount(bus.Rewards))
			}
			return nil
		},
	}
}

func newTreasuryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "treasury",
		Short: "Show the treasury state and difficulty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := newReader()
			treasury, err := reader.Treasury(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := reader.TreasuryBalance(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Address: %s\n", ore.TreasuryAddress())
			fmt.Printf("Balance: %s ORE\n", ore.FormatAmount(balance))
			fmt.Printf("Admin: %s\n", treasury.Admin)
			fmt.Printf("Difficulty: %s\n", crypto.FormatHash(treasury.Difficulty))
			fmt.Printf("Last reset at: %s\n", time.Unix(treasury.LastResetAt, 0).UTC().Format(time.RFC3339))
			fmt.Printf("Reward rate: %s ORE\n", ore.FormatAmount(treasury.RewardRate))
			fmt.Printf("Total claimed rewards: %s ORE\n", ore.FormatAmount(treasury.TotalClaimedRewards))
			return nil
		},
	}
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim [amount] [beneficiary]",
		Short: "Claim mining rewards",
		Long: `Claim mining rewards. Without an amount every claimable token is claimed.
Without a beneficiary the signer's token account receives the rewards and is
created first if needed.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount *uint64
			if arg := optionalArg(args, 0); arg != "" {
				value, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("%w: invalid amount %q", types.ErrInvalidConfig, arg)
				}
				units, err := ore.ToUnits(value)
				if err != nil {
					return err
				}
				amount = &units
			}

			var beneficiary *solana.PublicKey
			if arg := optionalArg(args, 1); arg != "" {
				pub, err := solana.PublicKeyFromBase58(arg)
				if err != nil {
					return fmt.Errorf("%w: invalid beneficiary %q: %v", types.ErrInvalidConfig, arg, err)
				}
				beneficiary = &pub
			}

			c, closeJournal, err := newClient()
			if err != nil {
				return err
			}
			defer closeJournal()

			out, err := c.Claim(cmd.Context(), amount, beneficiary)
			if err != nil {
				return err
			}
			fmt.Printf("Claimed: %s\n", out.Signature)
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create the signer's proof account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeJournal, err := newClient()
			if err != nil {
				return err
			}
			defer closeJournal()

			out, err := c.Register(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Registered: %s\n", out.Signature)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List confirmed transactions recorded by this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer closeLogged("journal", j)

			entries, err := j.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No transactions recorded.")
				return nil
			}
			for _, e := range entries {
				fmt.Println(formatEntry(e))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries (0: all)")
	return cmd
}

func formatEntry(e journal.Entry) string {
	line := fmt.Sprintf("%s  %-8s  slot %-10d  %s", e.Time.Local().Format(time.DateTime), e.Kind, e.Slot, e.Signature)
	switch e.Kind {
	case journal.KindMine:
		line += fmt.Sprintf("  nonce %d  hash %s", e.Nonce, e.Hash)
	case journal.KindClaim:
		line += fmt.Sprintf("  amount %s ORE", ore.FormatAmount(e.Amount))
	}
	return line
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
