package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"escrowrails/internal/config"
	"escrowrails/internal/contracts"
	"escrowrails/internal/escrow"
	"escrowrails/internal/fee"
	"escrowrails/internal/idempotency"
	"escrowrails/internal/ledger"
	"escrowrails/internal/network"
	"escrowrails/internal/price"
	"escrowrails/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := fallbackLog()
		fallback.Fatal().Err(err).Msg("config error")
	}

	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	registry, err := network.NewRegistry(cfg.Chains.Descriptors())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid chain configuration")
	}

	ctx := context.Background()

	engines := make(map[int64]*server.Engine)
	for _, chainID := range registry.ChainIDs() {
		desc, _ := registry.ByChainID(chainID)
		if desc.Contracts.EscrowCore == "" || desc.Contracts.SubscriptionManager == "" {
			log.Warn().Int64("chain", chainID).Msg("skipping chain without deployed contracts")
			continue
		}

		rw, ping, err := buildLedger(ctx, cfg, desc)
		if err != nil {
			log.Fatal().Int64("chain", chainID).Err(err).Msg("ledger client error")
		}

		resolver, err := fee.NewResolver(rw, desc.Contracts, log)
		if err != nil {
			log.Fatal().Int64("chain", chainID).Err(err).Msg("fee resolver error")
		}
		escrows, err := escrow.NewService(resolver, desc, rw, log)
		if err != nil {
			log.Fatal().Int64("chain", chainID).Err(err).Msg("escrow service error")
		}

		engines[chainID] = &server.Engine{
			Net:      desc,
			Resolver: resolver,
			Gateway:  fee.NewGateway(resolver, desc),
			Escrows:  escrows,
			Ping:     ping,
		}
	}
	if len(engines) == 0 {
		log.Fatal().Msg("no usable chains configured")
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("idempotency store error")
	}

	apiServer := server.NewServer(cfg, engines, buildOracle(cfg), store, log)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Info().Err(err).Msg("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

// buildLedger connects a real chain client when an RPC endpoint is available,
// otherwise a scripted in-memory ledger for local development.
func buildLedger(ctx context.Context, cfg *config.AppConfig, desc network.Descriptor) (ledger.ReadWriter, func(context.Context) error, error) {
	rpcURL, err := cfg.Chains.RPCURLFor(desc.ChainID)
	if err != nil {
		return ledger.NewFakeLedger(), nil, nil
	}

	eth, err := ledger.NewEthClient(ctx, ledger.EthClientConfig{
		RPCURL:        rpcURL,
		PrivateKeyHex: cfg.Signer.PrivateKey,
		Contracts: []ledger.ContractBinding{
			{Address: desc.Contracts.EscrowCore, ABI: contracts.EscrowCoreABI},
			{Address: desc.Contracts.SubscriptionManager, ABI: contracts.SubscriptionManagerABI},
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return eth, eth.Ping, nil
}

func buildOracle(cfg *config.AppConfig) price.Oracle {
	upstream := price.NewCoinGeckoClient(price.CoinGeckoConfig{
		BaseURL: cfg.Service.CoinGeckoBaseURL,
		APIKey:  cfg.Service.CoinGeckoAPIKey,
	})

	var rdb *redis.Client
	if cfg.Service.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Service.RedisAddr})
	}
	return price.NewCachedOracle(upstream, rdb, cfg.Service.PriceCacheTTL)
}

func buildStore(ctx context.Context, cfg *config.AppConfig) (idempotency.Store, error) {
	if cfg.Service.PostgresDSN != "" {
		return idempotency.NewPostgresStore(ctx, cfg.Service.PostgresDSN)
	}
	return idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
}

func fallbackLog() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
