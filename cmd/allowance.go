package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/types"
)

var approveAmount string

var allowanceCmd = &cobra.Command{
	Use:   "allowance [token]",
	Short: "Show or set how much the pool may spend",
	Long: `Show the pool's allowance for a token (the base token by default), or send an
approval with --approve. The allowance is read again once the approval is
confirmed.

Examples:
  bltm-swap allowance
  bltm-swap allowance BLTM
  bltm-swap allowance USDC --approve 250`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAllowance,
}

func init() {
	rootCmd.AddCommand(allowanceCmd)

	allowanceCmd.Flags().StringVar(&approveAmount, "approve", "", "Approve the pool to spend this amount")
}

func runAllowance(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, approveAmount != "")
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.cfg.AccountAddress(); err != nil {
		return err
	}

	token := a.pair.Base
	if len(args) == 1 {
		if token, err = a.pair.BySymbol(args[0]); err != nil {
			return err
		}
	}
	ctx := cmd.Context()

	if approveAmount == "" {
		a.startSpinner("Fetching allowance...")
		allowance, err := a.allowances.Refresh(ctx, token, a.account)
		a.stopSpinner()
		if err != nil {
			return err
		}
		if a.jsonOutput {
			return printJSON(allowance)
		}
		displayAllowance(allowance)
		return nil
	}

	amount, err := parser.ParseAmount(approveAmount, token)
	if err != nil {
		return err
	}

	a.startSpinner("Simulating approval...")
	h, err := a.allowances.Approve(ctx, token, a.account, amount)
	if h != nil {
		if recErr := a.journal.Record(h.Transaction()); recErr != nil {
			a.log.Warn().Err(recErr).Msg("failed to record approval")
		}
	}
	if err != nil {
		a.stopSpinner()
		return err
	}

	a.startSpinner("Approving...")
	allowance, err := a.allowances.Await(ctx, h)
	a.stopSpinner()

	tx := h.Transaction()
	if recErr := a.journal.Record(tx); recErr != nil {
		a.log.Warn().Err(recErr).Msg("failed to record approval")
	}
	if err != nil {
		return err
	}

	if a.jsonOutput {
		return printJSON(map[string]interface{}{
			"transaction": tx,
			"allowance":   allowance,
		})
	}
	displayTxLine(tx)
	displayAllowance(allowance)
	return nil
}

func displayAllowance(al types.Allowance) {
	fmt.Println("\n" + rule(60))
	color.Green("                      ALLOWANCE")
	fmt.Println(rule(60))
	fmt.Printf("\n  Token:    %s\n", color.YellowString(al.Token.Symbol))
	fmt.Printf("  Owner:    %s\n", al.Owner.Hex())
	fmt.Printf("  Spender:  %s\n", color.CyanString(al.Spender.Hex()))
	fmt.Printf("  Amount:   %s\n", parser.FormatAmount(al.CurrentAmount, al.Token))
	fmt.Println("\n" + rule(60) + "\n")
}
