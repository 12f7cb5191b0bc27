package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/types"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token>",
	Short: "Show what an exchange would return",
	Long: `Quote an exchange at the pool's current rate. The royalty is taken from the
input before conversion. Nothing is signed or sent.

Examples:
  bltm-swap quote 100 USDC
  bltm-swap quote 2.5 BLTM`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	command, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	from, err := a.pair.BySymbol(command.SourceToken)
	if err != nil {
		return err
	}
	dir := types.DirectionFrom(a.pair, from)

	amount, err := parser.ParseAmount(command.Amount, from)
	if err != nil {
		return err
	}

	a.startSpinner("Fetching rate...")
	_, err = a.oracle.Refresh(cmd.Context())
	a.stopSpinner()
	if err != nil {
		return err
	}

	quote := a.oracle.Quote(dir, amount)
	if quote == nil {
		return fmt.Errorf("rate unavailable")
	}

	if a.jsonOutput {
		return printJSON(quote)
	}
	displayQuote(quote, a.pair, a.oracle.RoyaltyBps())
	return nil
}

func displayQuote(q *types.SwapQuote, pair types.Pair, royaltyBps uint32) {
	fmt.Println("\n" + rule(60))
	if q.Direction == types.CounterToBase {
		color.Green("                     REDEEM QUOTE")
	} else {
		color.Green("                      SWAP QUOTE")
	}
	fmt.Println(rule(60))

	royalty := decimal.New(int64(royaltyBps), -2).StringFixed(2)
	fmt.Printf("\n  From:              %s %s\n", parser.FormatAmount(q.InputAmount, q.From), color.YellowString(q.From.Symbol))
	fmt.Printf("  Royalty (%s%%):    %s %s\n", royalty, parser.FormatAmount(q.RoyaltyAmount, q.From), q.From.Symbol)
	fmt.Printf("  Converted:         %s %s\n", parser.FormatAmount(q.NetInputAmount, q.From), q.From.Symbol)
	fmt.Printf("  To:                ~%s %s\n", parser.FormatAmount(q.OutputAmount, q.To), color.YellowString(q.To.Symbol))
	fmt.Printf("  Rate:              %s %s per %s (block %d)\n", q.Rate.Rat().FloatString(6), pair.Counter.Symbol, pair.Base.Symbol, q.Rate.BlockNumber)

	fmt.Println("\n" + rule(60) + "\n")
}
