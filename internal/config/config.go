// Package config loads service configuration from .env and the environment.
package config

import (
	"fmt"
	"log"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/joho/godotenv"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/policy"
	"sessionkeys/internal/session"
	"sessionkeys/internal/utils"
)

const (
	EnvHost            = "SESSIONKEYS_HOST"
	EnvPort            = "PORT"
	EnvProviderURL     = "WALLET_PROVIDER_URL"
	EnvProviderToken   = "WALLET_PROVIDER_TOKEN"
	EnvProviderTimeout = "PROVIDER_TIMEOUT"
	EnvRPCURL          = "CHAIN_RPC_URL"
	EnvChainID         = "CHAIN_ID"
	EnvExplorerURL     = "EXPLORER_URL"
	EnvToken           = "TOKEN_ADDRESS"
	EnvPaymaster       = "PAYMASTER_ADDRESS"
	EnvMintAmount      = "MINT_AMOUNT"
	EnvStore           = "SESSION_STORE"
	EnvRedisHost       = "REDIS_HOST"
	EnvRedisPort       = "REDIS_PORT"
	EnvRedisUser       = "REDIS_USERNAME"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRedisPrefix     = "REDIS_KEY_PREFIX"
	EnvSQLitePath      = "SQLITE_PATH"
	EnvSealSecret      = "SESSION_SEAL_SECRET"
	EnvExpiryTimers    = "SESSION_EXPIRY_TIMERS"
	EnvTransferPolicy  = "SESSION_TRANSFER_POLICY"
	EnvPolicyFile      = "SESSION_POLICY_FILE"
	EnvJournalDir      = "JOURNAL_DIR"
	EnvAPIToken        = "API_TOKEN"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
)

type Config struct {
	Host string
	Port int

	ProviderURL     string
	ProviderToken   string
	ProviderTimeout time.Duration

	// RPCURL may be empty; balance and receipt endpoints are then disabled.
	RPCURL      string
	ChainID     uint64
	ExplorerURL string
	Token       common.Address
	Paymaster   common.Address
	MintAmount  *big.Int

	Store        session.StoreConfig
	SealSecret   string
	ExpiryTimers bool
	Template     policy.Template

	JournalDir     string
	APIToken       string
	AllowedOrigins []string
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("📄 Loaded .env")
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the environment alone.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:            utils.GetEnv(EnvHost, "0.0.0.0"),
		Port:            utils.GetEnvInt(EnvPort, 8080),
		ProviderURL:     utils.GetEnv(EnvProviderURL, ""),
		ProviderToken:   utils.GetEnv(EnvProviderToken, ""),
		ProviderTimeout: utils.GetEnvDuration(EnvProviderTimeout, constants.ProviderTimeout),
		RPCURL:          utils.GetEnv(EnvRPCURL, constants.DefaultRPCURL),
		ChainID:         uint64(utils.GetEnvInt(EnvChainID, constants.ChainID)),
		ExplorerURL:     strings.TrimRight(utils.GetEnv(EnvExplorerURL, constants.ExplorerURL), "/"),
		Store: session.StoreConfig{
			Backend:       strings.ToLower(utils.GetEnv(EnvStore, "")),
			RedisHost:     utils.GetEnv(EnvRedisHost, ""),
			RedisPort:     utils.GetEnv(EnvRedisPort, "6379"),
			RedisUser:     utils.GetEnv(EnvRedisUser, ""),
			RedisPassword: utils.GetEnv(EnvRedisPassword, ""),
			RedisPrefix:   utils.GetEnv(EnvRedisPrefix, constants.AppName+":"),
			SQLitePath:    utils.GetEnv(EnvSQLitePath, "data/sessions.db"),
		},
		SealSecret:     utils.GetEnv(EnvSealSecret, ""),
		ExpiryTimers:   utils.GetEnvBool(EnvExpiryTimers, true),
		JournalDir:     utils.GetEnv(EnvJournalDir, ""),
		APIToken:       utils.GetEnv(EnvAPIToken, ""),
		AllowedOrigins: splitList(utils.GetEnv(EnvAllowedOrigins, "")),
	}
	if cfg.RPCURL == "none" {
		cfg.RPCURL = ""
	}

	var err error
	if cfg.Token, err = envAddress(EnvToken, constants.TokenAddress); err != nil {
		return nil, err
	}
	if cfg.Paymaster, err = envAddress(EnvPaymaster, constants.PaymasterAddress); err != nil {
		return nil, err
	}
	mint := utils.GetEnv(EnvMintAmount, constants.MintAmount)
	var ok bool
	if cfg.MintAmount, ok = math.ParseBig256(mint); !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", EnvMintAmount, mint)
	}

	if path := utils.GetEnv(EnvPolicyFile, ""); path != "" {
		if cfg.Template, err = LoadPolicyFile(path); err != nil {
			return nil, err
		}
	} else {
		cfg.Template = policy.MintTemplate(cfg.Token)
		if utils.GetEnvBool(EnvTransferPolicy, false) {
			cfg.Template = cfg.Template.WithOwnerTransfer()
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", EnvPort, c.Port)
	}
	if c.ProviderURL == "" {
		return fmt.Errorf("%s must not be empty", EnvProviderURL)
	}
	if u, err := url.Parse(c.ProviderURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", EnvProviderURL, c.ProviderURL)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvProviderTimeout)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%s must be non-zero", EnvChainID)
	}
	if c.MintAmount.Sign() <= 0 {
		return fmt.Errorf("%s must be positive", EnvMintAmount)
	}
	switch c.Store.Backend {
	case "", constants.StoreMemory, constants.StoreRedis, constants.StoreSQLite:
	default:
		return fmt.Errorf("%s must be memory, redis or sqlite, got %q", EnvStore, c.Store.Backend)
	}
	if c.Store.Backend == constants.StoreRedis && c.Store.RedisHost == "" {
		return fmt.Errorf("%s=redis needs %s", EnvStore, EnvRedisHost)
	}
	if c.Store.Backend == constants.StoreSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("%s=sqlite needs %s", EnvStore, EnvSQLitePath)
	}
	return c.Template.Validate()
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreName names the effective store backend for health output.
func (c *Config) StoreName() string {
	if c.Store.Backend != "" {
		return c.Store.Backend
	}
	if c.Store.RedisHost != "" {
		return constants.StoreRedis
	}
	return constants.StoreMemory
}

func envAddress(key, fallback string) (common.Address, error) {
	v := utils.GetEnv(key, fallback)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, v)
	}
	return common.HexToAddress(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
