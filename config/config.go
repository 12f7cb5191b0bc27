package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"bltm-swap/pkg/types"
)

// TokenConfig describes one token of the pool
type TokenConfig struct {
	Symbol   string
	Name     string
	Address  string
	Decimals uint8
}

// PoolConfig describes the liquidity pool contract
type PoolConfig struct {
	Address         string
	SwapFunction    string
	RedeemFunction  string
	EventsFromBlock uint64
}

// PollConfig bounds receipt polling
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// GasConfig overrides gas estimation. Zero values mean estimate.
type GasConfig struct {
	Limit uint64
	Price int64
}

// LogConfig configures the diagnostic log
type LogConfig struct {
	Level string
	File  string
}

// Config holds the application configuration
type Config struct {
	RPCURL      string
	ChainID     int64
	PrivateKey  string
	Account     string
	Pool        PoolConfig
	RoyaltyBps  uint32
	RateScale   string
	Base        TokenConfig
	Counter     TokenConfig
	Poll        PollConfig
	Gas         GasConfig
	Log         LogConfig
	HistoryFile string
}

var globalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", "https://sepolia.base.org")
	v.SetDefault("chain_id", 84532)
	v.SetDefault("pool.swap_function", "swapUsdcForBltm")
	v.SetDefault("pool.redeem_function", "redeemBltmForUsdc")
	v.SetDefault("pool.events_from_block", 18315855)
	v.SetDefault("royalty_bps", 200)
	v.SetDefault("rate_scale", "1")
	v.SetDefault("tokens.base.symbol", "USDC")
	v.SetDefault("tokens.base.name", "USD Coin")
	v.SetDefault("tokens.base.decimals", 6)
	v.SetDefault("tokens.counter.symbol", "BLTM")
	v.SetDefault("tokens.counter.name", "BLTM")
	v.SetDefault("tokens.counter.decimals", 6)
	v.SetDefault("poll.interval", "2s")
	v.SetDefault("poll.timeout", "3m")
	v.SetDefault("log.level", "info")
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigName(".bltm-swap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	// BLTM_SWAP_POOL_ADDRESS -> pool.address
	v.SetEnvPrefix("BLTM_SWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	_ = v.ReadInConfig()

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// FromViper builds and validates a Config from v, applying defaults
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		RPCURL:     v.GetString("rpc_url"),
		ChainID:    v.GetInt64("chain_id"),
		PrivateKey: strings.TrimPrefix(v.GetString("private_key"), "0x"),
		Account:    v.GetString("account"),
		Pool: PoolConfig{
			Address:         v.GetString("pool.address"),
			SwapFunction:    v.GetString("pool.swap_function"),
			RedeemFunction:  v.GetString("pool.redeem_function"),
			EventsFromBlock: v.GetUint64("pool.events_from_block"),
		},
		RoyaltyBps: v.GetUint32("royalty_bps"),
		RateScale:  v.GetString("rate_scale"),
		Base:       tokenFrom(v, "tokens.base"),
		Counter:    tokenFrom(v, "tokens.counter"),
		Poll: PollConfig{
			Interval: v.GetDuration("poll.interval"),
			Timeout:  v.GetDuration("poll.timeout"),
		},
		Gas: GasConfig{
			Limit: v.GetUint64("gas.limit"),
			Price: v.GetInt64("gas.price"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		HistoryFile: v.GetString("history_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func tokenFrom(v *viper.Viper, prefix string) TokenConfig {
	return TokenConfig{
		Symbol:   v.GetString(prefix + ".symbol"),
		Name:     v.GetString(prefix + ".name"),
		Address:  v.GetString(prefix + ".address"),
		Decimals: uint8(v.GetUint(prefix + ".decimals")),
	}
}

// Validate checks the configuration for values the client cannot work with
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL not found. Please set BLTM_SWAP_RPC_URL or rpc_url in .bltm-swap.yaml")
	}
	if !common.IsHexAddress(c.Pool.Address) {
		return fmt.Errorf("pool address %q is not a valid address. Please set BLTM_SWAP_POOL_ADDRESS", c.Pool.Address)
	}
	for _, t := range []struct {
		key string
		tok TokenConfig
	}{{"tokens.base", c.Base}, {"tokens.counter", c.Counter}} {
		if !common.IsHexAddress(t.tok.Address) {
			return fmt.Errorf("%s.address %q is not a valid address", t.key, t.tok.Address)
		}
		if t.tok.Symbol == "" {
			return fmt.Errorf("%s.symbol is required", t.key)
		}
		// 10^78 no longer fits a uint256
		if t.tok.Decimals > 77 {
			return fmt.Errorf("%s.decimals %d is out of range", t.key, t.tok.Decimals)
		}
	}
	if strings.EqualFold(c.Base.Symbol, c.Counter.Symbol) {
		return fmt.Errorf("base and counter token must differ")
	}
	if c.RoyaltyBps >= 10000 {
		return fmt.Errorf("royalty_bps %d must be below 10000", c.RoyaltyBps)
	}
	if _, err := c.Scale(); err != nil {
		return err
	}
	if c.Account != "" && !common.IsHexAddress(c.Account) {
		return fmt.Errorf("account %q is not a valid address", c.Account)
	}
	if c.Poll.Interval <= 0 || c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.interval and poll.timeout must be positive")
	}
	return nil
}

// Scale returns rate_scale as an integer
func (c *Config) Scale() (*big.Int, error) {
	scale, ok := new(big.Int).SetString(c.RateScale, 10)
	if !ok || scale.Sign() <= 0 {
		return nil, fmt.Errorf("rate_scale %q must be a positive integer", c.RateScale)
	}
	return scale, nil
}

// Pair returns the configured token pair
func (c *Config) Pair() types.Pair {
	return types.Pair{Base: c.Base.token(), Counter: c.Counter.token()}
}

func (t TokenConfig) token() types.Token {
	return types.Token{
		Symbol:   strings.ToUpper(t.Symbol),
		Name:     t.Name,
		Address:  common.HexToAddress(t.Address),
		Decimals: t.Decimals,
	}
}

// PoolAddress returns the pool (spender) address
func (c *Config) PoolAddress() common.Address {
	return common.HexToAddress(c.Pool.Address)
}

// AccountAddress is the configured account, or the address of the private key
func (c *Config) AccountAddress() (common.Address, error) {
	if c.PrivateKey != "" {
		key, err := crypto.HexToECDSA(c.PrivateKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid private key: %w", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey), nil
	}
	if c.Account != "" {
		return common.HexToAddress(c.Account), nil
	}
	return common.Address{}, fmt.Errorf("no account configured. Please set BLTM_SWAP_PRIVATE_KEY or BLTM_SWAP_ACCOUNT")
}

// CanSign reports whether a private key is configured
func (c *Config) CanSign() bool {
	return c.PrivateKey != ""
}

// GasLimit returns the gas limit override, nil to estimate
func (c *Config) GasLimit() *uint64 {
	if c.Gas.Limit == 0 {
		return nil
	}
	limit := c.Gas.Limit
	return &limit
}

// GasPrice returns the gas price override in wei, nil to use the suggested price
func (c *Config) GasPrice() *int64 {
	if c.Gas.Price == 0 {
		return nil
	}
	price := c.Gas.Price
	return &price
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
