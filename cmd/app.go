package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bltm-swap/config"
	"bltm-swap/pkg/allowance"
	"bltm-swap/pkg/balance"
	"bltm-swap/pkg/history"
	"bltm-swap/pkg/ledger"
	"bltm-swap/pkg/logging"
	"bltm-swap/pkg/metrics"
	"bltm-swap/pkg/oracle"
	"bltm-swap/pkg/swap"
	"bltm-swap/pkg/txn"
	"bltm-swap/pkg/types"
)

// app wires the swap core for one command invocation
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	pair    types.Pair
	account common.Address

	client     *ledger.EVMClient
	oracle     *oracle.Oracle
	balances   *balance.Tracker
	allowances *allowance.Manager
	coord      *txn.Coordinator
	journal    *history.Journal

	jsonOutput  bool
	verbose     bool
	yes         bool
	metricsFile string

	spinMu sync.Mutex
	spin   *spinner.Spinner
}

var _ swap.Recorder = (*history.Journal)(nil)

// newApp loads configuration and builds the components. needSigner requires a
// private key; otherwise a configured account is enough.
func newApp(cmd *cobra.Command, needSigner bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pair: cfg.Pair()}
	a.verbose, _ = cmd.Flags().GetBool("verbose")
	a.jsonOutput, _ = cmd.Flags().GetBool("json")
	a.yes, _ = cmd.Flags().GetBool("yes")
	a.metricsFile, _ = cmd.Flags().GetString("metrics-file")

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	// JSON output must stay clean on stdout; console logs only when verbose
	a.log = logging.New(logging.Options{Level: level, File: cfg.Log.File, Quiet: !a.verbose})
	a.metrics = metrics.New()

	if needSigner && !cfg.CanSign() {
		return nil, fmt.Errorf("private key not configured. Please set BLTM_SWAP_PRIVATE_KEY")
	}
	account, err := cfg.AccountAddress()
	if err != nil && needSigner {
		return nil, err
	}
	a.account = account

	a.client, err = ledger.NewEVMClient(ledger.EVMConfig{
		RPCUrl:         cfg.RPCURL,
		ChainID:        cfg.ChainID,
		PrivateKey:     cfg.PrivateKey,
		Account:        account,
		Pool:           cfg.PoolAddress(),
		SwapFunction:   cfg.Pool.SwapFunction,
		RedeemFunction: cfg.Pool.RedeemFunction,
		GasLimit:       cfg.GasLimit(),
		GasPrice:       cfg.GasPrice(),
		Prompt:         a.confirmSign,
		Logger:         a.log,
	})
	if err != nil {
		return nil, err
	}

	scale, err := cfg.Scale()
	if err != nil {
		a.client.Close()
		return nil, err
	}
	a.oracle, err = oracle.New(a.client, a.pair, cfg.RoyaltyBps, scale, oracle.WithLogger(a.log), oracle.WithMetrics(a.metrics))
	if err != nil {
		a.client.Close()
		return nil, err
	}

	a.balances = balance.NewTracker(a.client, balance.WithLogger(a.log), balance.WithMetrics(a.metrics))
	a.coord = txn.New(a.client,
		txn.WithPolling(cfg.Poll.Interval, cfg.Poll.Timeout),
		txn.WithLogger(a.log),
		txn.WithMetrics(a.metrics),
	)
	a.allowances = allowance.NewManager(a.client, a.coord, cfg.PoolAddress(),
		allowance.WithLogger(a.log),
		allowance.WithMetrics(a.metrics),
	)

	a.journal, err = history.NewJournal(cfg.HistoryFile)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// orchestrator builds the exchange state machine for dir
func (a *app) orchestrator(dir types.Direction) *swap.Orchestrator {
	return swap.New(swap.Config{
		Account:        a.account,
		Pool:           a.cfg.PoolAddress(),
		SwapFunction:   a.cfg.Pool.SwapFunction,
		RedeemFunction: a.cfg.Pool.RedeemFunction,
		Direction:      dir,
	}, a.oracle, a.balances, a.allowances, a.coord, a.client,
		swap.WithLogger(a.log),
		swap.WithRecorder(a.journal),
	)
}

func (a *app) close() {
	a.stopSpinner()
	if a.coord != nil {
		a.coord.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.metricsFile != "" {
		if err := a.metrics.WriteFile(a.metricsFile); err != nil {
			color.Yellow("Warning: could not write metrics: %v", err)
		}
	}
}

// startSpinner shows a spinner with suffix unless output is JSON
func (a *app) startSpinner(suffix string) {
	if a.jsonOutput {
		return
	}
	a.spinMu.Lock()
	defer a.spinMu.Unlock()
	if a.spin == nil {
		a.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	}
	a.spin.Suffix = " " + suffix
	a.spin.Start()
}

func (a *app) stopSpinner() {
	a.spinMu.Lock()
	defer a.spinMu.Unlock()
	if a.spin != nil {
		a.spin.Stop()
	}
}

// confirmSign plays the wallet: it shows the request and asks before signing
func (a *app) confirmSign(req *ledger.PreparedRequest) bool {
	if a.yes {
		return true
	}
	if a.jsonOutput {
		// nobody to ask
		return false
	}

	a.stopSpinner()
	fmt.Println()
	fmt.Printf("  Sign:      %s\n", color.YellowString(req.Function))
	fmt.Printf("  Contract:  %s\n", color.CyanString(req.To.Hex()))
	fmt.Printf("  From:      %s\n", req.From.Hex())
	fmt.Printf("  Gas limit: %d\n", req.Gas)
	ok := confirm("Proceed?")
	if ok {
		a.startSpinner("Waiting for confirmation...")
	}
	return ok
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
