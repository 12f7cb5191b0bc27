package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/swap"
	"bltm-swap/pkg/types"
)

var swapCmd = &cobra.Command{
	Use:     "swap <amount> <token> [to <token>]",
	Aliases: []string{"redeem"},
	Short:   "Exchange one token of the pool for the other",
	Long: `Exchange tokens against the liquidity pool. If the pool is not yet allowed to
spend the amount, an approval is sent first; the exchange is sent once the
approval is confirmed. Each transaction is shown before it is signed.

Spending the base token is a swap, spending the counter token a redeem.

Examples:
  bltm-swap swap 100 USDC to BLTM
  bltm-swap swap 50 BLTM
  bltm-swap redeem 50 BLTM for USDC

  # Sign without prompting
  bltm-swap swap 100 USDC --yes`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)
}

func runSwap(cmd *cobra.Command, args []string) error {
	command, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	from, err := a.pair.BySymbol(command.SourceToken)
	if err != nil {
		return err
	}
	if command.DestToken != "" {
		to, err := a.pair.BySymbol(command.DestToken)
		if err != nil {
			return err
		}
		if to.Address == from.Address {
			return fmt.Errorf("source and destination token are both %s", from.Symbol)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	orch := a.orchestrator(types.DirectionFrom(a.pair, from))

	a.startSpinner("Fetching quote...")
	err = orch.SetAmount(ctx, command.Amount)
	a.stopSpinner()
	if err != nil {
		return err
	}

	snap := orch.Snapshot()
	if !a.jsonOutput && snap.Quote != nil {
		displayQuote(snap.Quote, a.pair, a.oracle.RoyaltyBps())
	}

	if err := drive(ctx, a, orch); err != nil {
		if a.jsonOutput {
			_ = printJSON(snapshotView(orch.Snapshot()))
		}
		return err
	}

	snap = orch.Snapshot()
	if a.jsonOutput {
		return printJSON(snapshotView(snap))
	}

	done := "✓ Swap confirmed"
	if snap.Direction == types.CounterToBase {
		done = "✓ Redeem confirmed"
	}
	printSuccess(done)
	displayBalances(a)
	return nil
}

// drive performs actions until the exchange is confirmed. At most one
// approval is sent per run.
func drive(ctx context.Context, a *app, orch *swap.Orchestrator) error {
	approved := false
	for {
		snap := orch.Snapshot()
		switch snap.State {
		case swap.StateNeedsApproval:
			if approved {
				return fmt.Errorf("allowance still does not cover %s %s after approval", snap.FromAmount, snap.FromToken.Symbol)
			}
			approved = true
		case swap.StateReady:
		case swap.StateWaitingForRate:
			return fmt.Errorf("exchange rate unavailable, try again later")
		default:
			if snap.LastError != nil {
				return snap.LastError
			}
			return fmt.Errorf("nothing to do (%s)", snap.State)
		}

		if !a.jsonOutput {
			fmt.Printf("\n%s %s %s\n", color.CyanString("→"), snap.ActionLabel, color.HiBlackString("(%s %s)", snap.FromAmount, snap.FromToken.Symbol))
		}

		pending := "Approving..."
		if snap.State == swap.StateReady {
			pending = "Swapping..."
			if snap.Direction == types.CounterToBase {
				pending = "Redeeming..."
			}
		}
		a.startSpinner(pending)
		err := orch.PerformAction(ctx)
		a.stopSpinner()

		after := orch.Snapshot()
		if after.LastTx != nil && !a.jsonOutput {
			displayTxLine(*after.LastTx)
		}
		if err != nil {
			return err
		}

		if after.LastTx != nil && after.LastTx.Kind != types.KindApprove && after.LastTx.Status == types.TxConfirmed {
			return nil
		}
	}
}

// swapView is the JSON form of a snapshot
type swapView struct {
	swap.Snapshot
	Error string `json:"error,omitempty"`
}

func snapshotView(s swap.Snapshot) swapView {
	v := swapView{Snapshot: s}
	if s.LastError != nil {
		v.Error = s.LastError.Error()
	}
	return v
}

func displayTxLine(tx types.PendingTransaction) {
	fmt.Printf("  %-8s %s  %s", tx.Kind, color.HiBlackString(tx.Hash.Hex()), coloredStatus(tx.Status))
	if tx.BlockNumber > 0 {
		fmt.Printf("  block %d", tx.BlockNumber)
	}
	fmt.Println()
}
