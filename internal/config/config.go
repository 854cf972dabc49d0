package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"escrowrails/internal/network"
)

// ChainEntry models one chain in chains.json. The decimal precision and
// contract addresses here are the injected source of truth for every amount
// conversion; nothing in the engine hard-codes either.
type ChainEntry struct {
	ChainID        int64  `json:"chainId"`
	Name           string `json:"name"`
	RPCURL         string `json:"rpcUrl"`
	NativeCurrency struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"nativeCurrency"`
	CoingeckoID string `json:"coingeckoId"`
	Contracts   struct {
		EscrowCore          string `json:"escrowCore"`
		SubscriptionManager string `json:"subscriptionManager"`
	} `json:"contracts"`
}

// ChainsConfig represents chains.json.
type ChainsConfig struct {
	Chains []ChainEntry `json:"chains"`
}

// AppConfig ties together chain data and service settings.
type AppConfig struct {
	Chains  ChainsConfig
	Service ServiceConfig
	Signer  SignerConfig
}

type ServiceConfig struct {
	HTTPPort             int
	HMACSecret           string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	PostgresDSN          string // when set, idempotency records go to Postgres
	RedisAddr            string // when set, prices are cached in Redis
	PriceCacheTTL        time.Duration
	CoinGeckoBaseURL     string
	CoinGeckoAPIKey      string
	DefaultChainID       int64
	LogLevel             string
}

type SignerConfig struct {
	PrivateKey string
}

const defaultChainsPath = "./chains.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	chainsPath := envOr("CHAINS_PATH", defaultChainsPath)

	chains, err := loadChains(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:           envOr("API_HMAC_SECRET", ""),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 600)) * time.Second,
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "escrowrails-idem.json")),
		PostgresDSN:          envOr("POSTGRES_DSN", ""),
		RedisAddr:            envOr("REDIS_ADDR", ""),
		PriceCacheTTL:        time.Duration(envOrInt("PRICE_CACHE_TTL_SECONDS", 60)) * time.Second,
		CoinGeckoBaseURL:     envOr("COINGECKO_BASE_URL", ""),
		CoinGeckoAPIKey:      envOr("COINGECKO_API_KEY", ""),
		DefaultChainID:       int64(envOrInt("DEFAULT_CHAIN_ID", 0)),
		LogLevel:             envOr("LOG_LEVEL", "info"),
	}

	signerCfg := SignerConfig{
		PrivateKey: envOr("CHAIN_PRIVATE_KEY", ""),
	}

	return &AppConfig{
		Chains:  *chains,
		Service: serviceCfg,
		Signer:  signerCfg,
	}, nil
}

func loadChains(path string) (*ChainsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ChainsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("%s lists no chains", path)
	}
	return &cfg, nil
}

// Descriptors converts the chain entries into the registry's descriptor form.
func (c *ChainsConfig) Descriptors() []network.Descriptor {
	out := make([]network.Descriptor, 0, len(c.Chains))
	for _, entry := range c.Chains {
		out = append(out, network.Descriptor{
			ChainID:        entry.ChainID,
			Name:           entry.Name,
			NativeSymbol:   entry.NativeCurrency.Symbol,
			NativeDecimals: entry.NativeCurrency.Decimals,
			PriceID:        entry.CoingeckoID,
			Contracts: network.ContractSet{
				EscrowCore:          entry.Contracts.EscrowCore,
				SubscriptionManager: entry.Contracts.SubscriptionManager,
			},
		})
	}
	return out
}

// RPCURLFor returns the configured RPC endpoint for a chain, with a per-chain
// environment override (CHAIN_RPC_URL_<id>).
func (c *ChainsConfig) RPCURLFor(chainID int64) (string, error) {
	if url := os.Getenv(fmt.Sprintf("CHAIN_RPC_URL_%d", chainID)); url != "" {
		return url, nil
	}
	for _, entry := range c.Chains {
		if entry.ChainID == chainID {
			if entry.RPCURL == "" {
				return "", fmt.Errorf("chain %d has no rpc url", chainID)
			}
			return entry.RPCURL, nil
		}
	}
	return "", fmt.Errorf("chain %d not configured", chainID)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
