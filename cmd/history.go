package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/history"
	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/parser"
)

var (
	historyOnchain bool
	historyAll     bool
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past approvals, swaps and redeems",
	Long: `List the transactions recorded in the local journal. With --onchain the pool's
TokensSwapped and TokensRedeemed events are read as well and matched to the
journal by transaction hash.

Examples:
  bltm-swap history
  bltm-swap history --onchain
  bltm-swap history --onchain --all --limit 50`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyOnchain, "onchain", false, "Include the pool's on-chain events")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Include events of every account, not only the configured one")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	var events []ledger.PoolEvent
	if historyOnchain {
		a.startSpinner("Reading pool events...")
		all, err := a.client.PoolEvents(cmd.Context(), a.cfg.Pool.EventsFromBlock)
		a.stopSpinner()
		if err != nil {
			return err
		}
		for _, ev := range all {
			if historyAll || ev.User == a.account {
				events = append(events, ev)
			}
		}
	}

	entries := history.Merge(a.journal.List(), events)
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if a.jsonOutput {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo transactions found.")
		return nil
	}
	displayHistory(a, entries)
	return nil
}

func displayHistory(a *app, entries []history.Entry) {
	fmt.Println("\n" + rule(100))
	color.Green("                                         HISTORY")
	fmt.Println(rule(100))

	fmt.Printf("\n  %-10s %-12s %-22s %-22s %-10s %s\n", "BLOCK", "ACTION", a.pair.Base.Symbol, a.pair.Counter.Symbol, "STATUS", "HASH")
	fmt.Println("  " + rule(98))

	for _, e := range entries {
		block := "-"
		if e.Block > 0 {
			block = fmt.Sprintf("%d", e.Block)
		}

		base, counter := "", ""
		status := color.HiBlackString("on-chain")
		if e.Event != nil {
			base = parser.FormatAmount(e.Event.BaseAmount, a.pair.Base)
			counter = parser.FormatAmount(e.Event.CounterAmount, a.pair.Counter)
		}
		if e.Journal != nil {
			status = coloredStatus(e.Journal.Status)
			if e.Event == nil {
				if amount := e.Journal.AmountInt(); amount != nil {
					tok := e.Journal.TokenInfo()
					switch tok.Address {
					case a.pair.Base.Address:
						base = parser.FormatAmount(amount, tok)
					case a.pair.Counter.Address:
						counter = parser.FormatAmount(amount, tok)
					}
				}
			}
		}

		fmt.Printf("  %-10s %-12s %-22s %-22s %-10s %s\n",
			block, e.Action(), base, counter, status, shortHash(e.Hash.Hex()))
	}

	fmt.Println("\n" + rule(100))
	fmt.Printf("  %d entries  |  journal: %s\n\n", len(entries), a.journal.Path())
}

func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "..." + h[len(h)-6:]
}
