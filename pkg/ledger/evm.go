package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"bltm-swap/pkg/types"
)

// ERC20 balanceOf/allowance/approve ABI
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// Liquidity pool ABI; the swap and redeem function names come from configuration.
const poolABITemplate = `[
	{"inputs":[],"name":"exchangeRate","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amount","type":"uint256"}],"name":"%s","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amount","type":"uint256"}],"name":"%s","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"usdcAmount","type":"uint256"},{"indexed":false,"name":"bltmAmount","type":"uint256"}],"name":"TokensSwapped","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"bltmAmount","type":"uint256"},{"indexed":false,"name":"usdcAmount","type":"uint256"}],"name":"TokensRedeemed","type":"event"}
]`

// SignPrompt is asked before a transaction is signed. Returning false declines.
type SignPrompt func(req *PreparedRequest) bool

// EVMConfig configures an EVM ledger client
type EVMConfig struct {
	RPCUrl         string
	ChainID        int64
	PrivateKey     string         // empty for a read-only client
	Account        common.Address // used when no private key is set
	Pool           common.Address
	SwapFunction   string
	RedeemFunction string
	GasLimit       *uint64
	GasPrice       *int64
	Prompt         SignPrompt
	Logger         zerolog.Logger
}

// EVMClient talks to an EVM-compatible chain over JSON-RPC
type EVMClient struct {
	config     EVMConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	account    common.Address
	erc20ABI   abi.ABI
	poolABI    abi.ABI
	log        zerolog.Logger
}

// NewEVMClient dials the RPC endpoint and loads the signing key
func NewEVMClient(cfg EVMConfig) (*EVMClient, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	var privateKey *ecdsa.PrivateKey
	account := cfg.Account
	if cfg.PrivateKey != "" {
		privateKey, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		account = crypto.PubkeyToAddress(privateKey.PublicKey)
	}

	tokenABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	poolABI, err := PoolABI(cfg.SwapFunction, cfg.RedeemFunction)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &EVMClient{
		config:     cfg,
		client:     client,
		privateKey: privateKey,
		account:    account,
		erc20ABI:   tokenABI,
		poolABI:    poolABI,
		log:        cfg.Logger.With().Str("component", "ledger").Logger(),
	}, nil
}

// PoolABI builds the liquidity pool ABI for the given swap and redeem function names
func PoolABI(swapFunction, redeemFunction string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(fmt.Sprintf(poolABITemplate, swapFunction, redeemFunction)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return parsed, nil
}

// Account returns the signing address
func (e *EVMClient) Account() common.Address {
	return e.account
}

// BalanceOf reads token.balanceOf(owner)
func (e *EVMClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return e.callUint(ctx, e.erc20ABI, token, nil, "balanceOf", owner)
}

// Allowance reads token.allowance(owner, spender)
func (e *EVMClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return e.callUint(ctx, e.erc20ABI, token, nil, "allowance", owner, spender)
}

// ExchangeRate reads pool.exchangeRate() pinned to the latest block
func (e *EVMClient) ExchangeRate(ctx context.Context) (*big.Int, uint64, error) {
	block, err := e.client.BlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get block number: %w", err)
	}
	rate, err := e.callUint(ctx, e.poolABI, e.config.Pool, new(big.Int).SetUint64(block), "exchangeRate")
	if err != nil {
		return nil, 0, err
	}
	return rate, block, nil
}

func (e *EVMClient) callUint(ctx context.Context, contract abi.ABI, to common.Address, block *big.Int, method string, args ...interface{}) (*big.Int, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var value *big.Int
	if err := contract.UnpackIntoInterface(&value, method, result); err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return value, nil
}

// IsRevert reports whether err is the node rejecting a call because it would
// revert, as opposed to a transport or RPC failure. Nodes report reverts with
// error code 3 and the revert data, or with an "execution reverted" message.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// Simulate dry-runs a state-changing call and estimates its gas. Only a revert
// is reported as types.ErrSimulation; other failures are returned as is.
func (e *EVMClient) Simulate(ctx context.Context, target common.Address, function string, args ...interface{}) (*PreparedRequest, error) {
	contract := e.erc20ABI
	if target == e.config.Pool {
		contract = e.poolABI
	}

	data, err := contract.Pack(function, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", function, err)
	}

	msg := ethereum.CallMsg{
		From: e.account,
		To:   &target,
		Data: data,
	}
	if _, err := e.client.CallContract(ctx, msg, nil); err != nil {
		if IsRevert(err) {
			return nil, types.NewError(types.ErrSimulation, function, err)
		}
		return nil, fmt.Errorf("failed to simulate %s: %w", function, err)
	}

	// Estimate gas limit if not provided
	gasLimit := uint64(100000)
	if e.config.GasLimit != nil {
		gasLimit = *e.config.GasLimit
	} else {
		estimatedGas, err := e.client.EstimateGas(ctx, msg)
		if err != nil {
			if IsRevert(err) {
				return nil, types.NewError(types.ErrSimulation, function, err)
			}
			return nil, fmt.Errorf("%s gas estimation failed: %w", function, err)
		}
		gasLimit = estimatedGas * 120 / 100 // Add 20% buffer
	}

	e.log.Debug().
		Str("function", function).
		Str("target", target.Hex()).
		Uint64("gas", gasLimit).
		Msg("simulation succeeded")

	return &PreparedRequest{
		From:     e.account,
		To:       target,
		Function: function,
		Args:     args,
		Data:     data,
		Gas:      gasLimit,
	}, nil
}

// SubmitTransaction signs and broadcasts a prepared request
func (e *EVMClient) SubmitTransaction(ctx context.Context, req *PreparedRequest) (common.Hash, error) {
	if e.privateKey == nil {
		return common.Hash{}, fmt.Errorf("read-only client: private key not configured")
	}
	if e.config.Prompt != nil && !e.config.Prompt(req) {
		return common.Hash{}, types.ErrUserDeclined
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.account)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := e.getGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := ethtypes.NewTransaction(
		nonce,
		req.To,
		big.NewInt(0), // No native value for token and pool calls
		req.Gas,
		gasPrice,
		req.Data,
	)

	chainID := big.NewInt(e.config.ChainID)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	e.log.Info().
		Str("function", req.Function).
		Str("hash", signedTx.Hash().Hex()).
		Uint64("nonce", nonce).
		Msg("transaction sent")

	return signedTx.Hash(), nil
}

// GetReceipt returns the receipt, or nil while the transaction is pending
func (e *EVMClient) GetReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := e.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return receipt, nil
}

// PoolEvents lists TokensSwapped and TokensRedeemed logs emitted since fromBlock
func (e *EVMClient) PoolEvents(ctx context.Context, fromBlock uint64) ([]PoolEvent, error) {
	swapped := e.poolABI.Events["TokensSwapped"]
	redeemed := e.poolABI.Events["TokensRedeemed"]

	logs, err := e.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{e.config.Pool},
		Topics:    [][]common.Hash{{swapped.ID, redeemed.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter pool logs: %w", err)
	}

	return DecodePoolEvents(e.poolABI, logs)
}

// DecodePoolEvents turns raw pool logs into PoolEvents, skipping unknown topics
func DecodePoolEvents(poolABI abi.ABI, logs []ethtypes.Log) ([]PoolEvent, error) {
	swapped := poolABI.Events["TokensSwapped"]
	redeemed := poolABI.Events["TokensRedeemed"]

	events := make([]PoolEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}

		var name string
		var action PoolEventKind
		switch lg.Topics[0] {
		case swapped.ID:
			name, action = swapped.Name, EventMint
		case redeemed.ID:
			name, action = redeemed.Name, EventBurn
		default:
			continue
		}

		values := make(map[string]interface{})
		if err := poolABI.UnpackIntoMap(values, name, lg.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s log: %w", name, err)
		}
		usdc, _ := values["usdcAmount"].(*big.Int)
		bltm, _ := values["bltmAmount"].(*big.Int)

		event := PoolEvent{
			ID:            fmt.Sprintf("%s-%d", lg.TxHash.Hex(), lg.Index),
			Action:        action,
			BaseAmount:    usdc,
			CounterAmount: bltm,
			BlockNumber:   lg.BlockNumber,
			TxHash:        lg.TxHash,
		}
		if len(lg.Topics) > 1 {
			event.User = common.BytesToAddress(lg.Topics[1].Bytes())
		}
		events = append(events, event)
	}

	return events, nil
}

// getGasPrice returns the gas price to use for transactions
func (e *EVMClient) getGasPrice(ctx context.Context) (*big.Int, error) {
	if e.config.GasPrice != nil {
		return big.NewInt(*e.config.GasPrice), nil
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	return gasPrice, nil
}

// Close closes the client connection
func (e *EVMClient) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
