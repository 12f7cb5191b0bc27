package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/types"
)

var skipRate bool

var tokensCmd = &cobra.Command{
	Use:     "pool",
	Aliases: []string{"tokens", "info"},
	Short:   "Show the pool, its tokens and the current rate",
	Long: `Show the configured pool contract, both tokens with their addresses and
decimals, the royalty and the exchange rate currently reported by the pool.

Examples:
  bltm-swap pool
  bltm-swap tokens --no-rate
  bltm-swap pool --json`,
	Args: cobra.NoArgs,
	RunE: runPoolInfo,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().BoolVar(&skipRate, "no-rate", false, "Do not query the pool for its rate")
}

// poolInfo is the JSON form of the pool description
type poolInfo struct {
	Pool       string              `json:"pool"`
	ChainID    int64               `json:"chain_id"`
	Tokens     []types.Token       `json:"tokens"`
	RoyaltyBps uint32              `json:"royalty_bps"`
	Rate       *types.ExchangeRate `json:"rate,omitempty"`
}

func runPoolInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	info := poolInfo{
		Pool:       a.cfg.PoolAddress().Hex(),
		ChainID:    a.cfg.ChainID,
		Tokens:     []types.Token{a.pair.Base, a.pair.Counter},
		RoyaltyBps: a.oracle.RoyaltyBps(),
	}

	if !skipRate {
		a.startSpinner("Fetching rate...")
		rate, err := a.oracle.Refresh(cmd.Context())
		a.stopSpinner()
		if err != nil {
			a.log.Warn().Err(err).Msg("rate unavailable")
		} else {
			info.Rate = &rate
		}
	}

	if a.jsonOutput {
		return printJSON(info)
	}
	displayPoolInfo(info, a.pair)
	return nil
}

func displayPoolInfo(info poolInfo, pair types.Pair) {
	fmt.Println("\n" + rule(80))
	color.Green("                                 POOL")
	fmt.Println(rule(80))

	fmt.Printf("\n  Contract:  %s\n", color.CyanString(info.Pool))
	fmt.Printf("  Chain ID:  %d\n", info.ChainID)
	fmt.Printf("  Royalty:   %s%%\n\n", decimal.New(int64(info.RoyaltyBps), -2).StringFixed(2))

	fmt.Printf("  %-8s %-20s %-44s %s\n", "SYMBOL", "NAME", "ADDRESS", "DECIMALS")
	fmt.Println("  " + rule(78))
	for _, t := range info.Tokens {
		fmt.Printf("  %-8s %-20s %-44s %d\n", color.YellowString(t.Symbol), t.Name, t.Address.Hex(), t.Decimals)
	}

	fmt.Println()
	if info.Rate == nil {
		color.Yellow("  Rate:      unavailable")
	} else {
		fmt.Printf("  Rate:      1 %s = %s %s (block %d)\n",
			pair.Base.Symbol, info.Rate.Rat().FloatString(6), pair.Counter.Symbol, info.Rate.BlockNumber)
	}

	fmt.Println("\n" + rule(80) + "\n")
}
