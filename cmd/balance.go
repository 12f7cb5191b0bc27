package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/types"
)

var balanceCmd = &cobra.Command{
	Use:     "balance",
	Aliases: []string{"balances"},
	Short:   "Show the account's balance of both tokens",
	Long: `Read the configured account's balance of both pool tokens.

Examples:
  bltm-swap balance
  bltm-swap balance --json`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.cfg.AccountAddress(); err != nil {
		return err
	}

	a.startSpinner("Fetching balances...")
	balances, err := refreshBalances(cmd.Context(), a)
	a.stopSpinner()
	if err != nil {
		return err
	}

	if a.jsonOutput {
		return printJSON(balances)
	}
	printBalances(a, balances)
	return nil
}

// refreshBalances reads both balances in parallel
func refreshBalances(ctx context.Context, a *app) ([]types.Balance, error) {
	tokens := []types.Token{a.pair.Base, a.pair.Counter}
	balances := make([]types.Balance, len(tokens))

	g, ctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			b, err := a.balances.Refresh(ctx, token, a.account)
			if err != nil {
				return err
			}
			balances[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return balances, nil
}

// displayBalances prints cached balances, reading any that are missing
func displayBalances(a *app) {
	var balances []types.Balance
	for _, token := range []types.Token{a.pair.Base, a.pair.Counter} {
		b, err := a.balances.Load(context.Background(), token, a.account)
		if err != nil {
			color.Yellow("  %s balance unavailable: %v", token.Symbol, err)
			continue
		}
		balances = append(balances, b)
	}
	printBalances(a, balances)
}

func printBalances(a *app, balances []types.Balance) {
	fmt.Println("\n" + rule(60))
	color.Green("                       BALANCES")
	fmt.Println(rule(60))
	fmt.Printf("\n  Account:  %s\n\n", color.CyanString(a.account.Hex()))
	for _, b := range balances {
		fmt.Printf("  %-8s  %s\n", color.YellowString(b.Token.Symbol), parser.FormatFixed(b.Amount, b.Token, 6))
	}
	fmt.Println("\n" + rule(60) + "\n")
}
