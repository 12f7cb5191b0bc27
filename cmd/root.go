package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "bltm-swap",
	Short: "A CLI for swapping USDC and BLTM against the liquidity pool",
	Long: `bltm-swap quotes, approves and executes exchanges between the two tokens
of a liquidity pool. The pool takes a royalty from the input amount; approvals
are submitted only when the current allowance does not cover the amount.

Examples:
  bltm-swap quote 100 USDC
  bltm-swap swap 100 USDC to BLTM
  bltm-swap swap 50 BLTM
  bltm-swap balance
  bltm-swap status 0xabc...`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return err
	}
	return nil
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Sign without asking for confirmation")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")
}

func printError(err error) {
	color.Red("\nError: %v\n", err)
	switch types.KindOf(err) {
	case types.ErrUserDeclined:
		fmt.Println("The transaction was not signed. Run the command again to retry.")
	case types.ErrNetworkTimeout:
		fmt.Println("No receipt yet. Check later with: bltm-swap status")
	}
	fmt.Println()
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func rule(width int) string {
	return strings.Repeat("=", width)
}

func coloredStatus(status types.TxStatus) string {
	s := strings.ToUpper(string(status))
	switch status {
	case types.TxConfirmed:
		return color.GreenString(s)
	case types.TxSubmitted, types.TxConfirming:
		return color.YellowString(s)
	case types.TxFailed:
		return color.RedString(s)
	case types.TxTimedOut:
		return color.MagentaString(s)
	default:
		return s
	}
}
