package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bltm-swap/pkg/history"
	"bltm-swap/pkg/parser"
	"bltm-swap/pkg/types"
)

var watchStatus bool

var statusCmd = &cobra.Command{
	Use:   "status [tx-hash]",
	Short: "Check the status of a transaction",
	Long: `Check whether a transaction has been mined. Without a hash, every journaled
transaction that never reached a final state is checked.

With --watch the receipt is polled until the transaction is confirmed, fails
or the poll window closes; the journal is updated with the outcome.

Examples:
  bltm-swap status 0x1234...abcd
  bltm-swap status 0x1234...abcd --watch
  bltm-swap status --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transaction is final")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	var records []*history.Record
	if len(args) == 1 {
		if !strings.HasPrefix(args[0], "0x") || len(args[0]) != 66 {
			return fmt.Errorf("invalid transaction hash: %s", args[0])
		}
		hash := common.HexToHash(args[0])
		r, ok := a.journal.ByHash(hash)
		if !ok {
			r = &history.Record{Hash: hash, Status: types.TxSubmitted}
		}
		records = append(records, r)
	} else {
		records = a.journal.Unresolved()
		if len(records) == 0 {
			if a.jsonOutput {
				return printJSON([]types.PendingTransaction{})
			}
			fmt.Println("\nNo pending transactions.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results := make([]types.PendingTransaction, 0, len(records))
	for _, r := range records {
		var tx types.PendingTransaction
		if watchStatus {
			tx, err = watchTx(ctx, a, r)
		} else {
			tx, err = checkTx(ctx, a, r)
		}
		if err != nil && !tx.Status.Terminal() {
			return err
		}
		results = append(results, tx)
		if r.ID != "" && tx.Status.Terminal() {
			tx.ID = r.ID
			if recErr := a.journal.Record(tx); recErr != nil {
				a.log.Warn().Err(recErr).Msg("failed to update journal")
			}
		}
	}

	if a.jsonOutput {
		return printJSON(results)
	}
	for _, tx := range results {
		displayStatus(tx)
	}
	return nil
}

func recordTx(r *history.Record) types.PendingTransaction {
	tx := types.PendingTransaction{
		ID:          r.ID,
		Hash:        r.Hash,
		Kind:        r.Kind,
		Token:       r.TokenInfo(),
		Owner:       r.Owner,
		Amount:      r.AmountInt(),
		Status:      r.Status,
		BlockNumber: r.BlockNumber,
		Error:       r.Error,
		SubmittedAt: r.SubmittedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	return tx
}

// checkTx looks the receipt up once
func checkTx(ctx context.Context, a *app, r *history.Record) (types.PendingTransaction, error) {
	tx := recordTx(r)

	a.startSpinner("Checking transaction...")
	receipt, err := a.client.GetReceipt(ctx, r.Hash)
	a.stopSpinner()
	if err != nil {
		return tx, types.Classify("get receipt", err)
	}

	switch {
	case receipt == nil:
		if !tx.Status.Terminal() {
			tx.Status = types.TxConfirming
		}
	case receipt.Status == 1:
		tx.Status = types.TxConfirmed
		tx.BlockNumber = receipt.BlockNumber.Uint64()
		tx.Error = ""
	default:
		tx.Status = types.TxFailed
		tx.BlockNumber = receipt.BlockNumber.Uint64()
		tx.Error = types.ErrTransactionReverted.Error()
	}
	return tx, nil
}

// watchTx follows the transaction through the coordinator until it is final
func watchTx(ctx context.Context, a *app, r *history.Record) (types.PendingTransaction, error) {
	if !a.jsonOutput {
		fmt.Printf("\nWatching %s. Press Ctrl+C to stop.\n", color.CyanString(r.Hash.Hex()))
	}

	h := a.coord.Track(r.Hash, r.Kind, r.TokenInfo(), r.Owner)
	a.startSpinner("Waiting for receipt...")
	tx, err := h.Wait(ctx)
	a.stopSpinner()

	tx.ID = r.ID
	if tx.Amount == nil {
		tx.Amount = r.AmountInt()
	}
	tx.SubmittedAt = r.SubmittedAt
	return tx, err
}

func displayStatus(tx types.PendingTransaction) {
	fmt.Println("\n" + rule(70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(rule(70))

	fmt.Printf("\n  Hash:         %s\n", color.CyanString(tx.Hash.Hex()))
	fmt.Printf("  Status:       %s\n", coloredStatus(tx.Status))
	if tx.Kind != "" {
		fmt.Printf("  Kind:         %s\n", tx.Kind)
	}
	if tx.Amount != nil && tx.Token.Symbol != "" {
		fmt.Printf("  Amount:       %s %s\n", parser.FormatAmount(tx.Amount, tx.Token), tx.Token.Symbol)
	}
	if tx.BlockNumber > 0 {
		fmt.Printf("  Block:        %d\n", tx.BlockNumber)
	}
	if !tx.SubmittedAt.IsZero() {
		fmt.Printf("  Submitted:    %s\n", tx.SubmittedAt.Format("2006-01-02 15:04:05"))
	}
	if tx.Error != "" {
		fmt.Printf("  Error:        %s\n", color.RedString(tx.Error))
	}

	fmt.Println("\n" + rule(70) + "\n")
}
