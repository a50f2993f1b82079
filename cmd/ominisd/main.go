package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ominis/config"
	"ominis/core/events"
	"ominis/core/types"
	"ominis/indexer"
	"ominis/native/market"
	"ominis/observability"
	"ominis/observability/logging"
	"ominis/rpc"
	"ominis/storage"

	marketstate "ominis/state"
)

const (
	envPrefix     = "OMINIS"
	jwtSecretEnv  = "OMINIS_VERIFIER_JWT_SECRET"
	defaultsVault = "0x00000000000000000000000000000000000000aa"
	defaultsPool  = "0x00000000000000000000000000000000000000fe"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envPrefix + "_ENV"))
	logger := logging.Setup("ominisd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	params, err := cfg.MarketParams()
	if err != nil {
		logger.Error("invalid protocol parameters", slog.Any("error", err))
		os.Exit(1)
	}
	schedule, err := cfg.TierSchedule()
	if err != nil {
		logger.Error("invalid tier schedule", slog.Any("error", err))
		os.Exit(1)
	}

	vault, treasury, verifier, err := resolveRoles(cfg)
	if err != nil {
		logger.Error("invalid role addresses", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		panic(fmt.Sprintf("Failed to create data dir: %v", err))
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "market"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	engine, err := market.NewEngine(market.EngineConfig{
		State:    marketstate.NewMarketState(db),
		Pricing:  schedule,
		Params:   params,
		Vault:    vault,
		Treasury: treasury,
		Verifier: verifier,
	})
	if err != nil {
		logger.Error("failed to build settlement engine", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBuffer := events.NewMemoryEmitter()
	engine.SetEmitter(eventBuffer)

	go refreshGauges(ctx, engine, treasury, 15*time.Second)

	if cfg.Indexer.Enabled {
		ix, err := indexer.Open(cfg.Indexer.DatabasePath, logger.With("component", "indexer"))
		if err != nil {
			logger.Error("failed to open indexer", slog.Any("error", err))
			os.Exit(1)
		}
		go ix.Run(ctx, eventBuffer, time.Second)
		go func() {
			logger.Info("starting indexer API", "addr", cfg.Indexer.ListenAddr)
			if err := serveHTTP(ctx, cfg.Indexer.ListenAddr, ix.Router()); err != nil {
				logger.Error("indexer API stopped", slog.Any("error", err))
			}
		}()
	}

	jwtSecret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	if jwtSecret == "" {
		jwtSecret = cfg.VerifierJWTSecret
	}
	server := rpc.NewServer(engine, logger.With("component", "rpc"), rpc.ServerConfig{
		VerifierJWTSecret: jwtSecret,
		RateLimitPerMin:   cfg.RateLimitPerMin,
		RateLimitBurst:    cfg.RateLimitBurst,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	logger.Info("ominisd started",
		"network", cfg.NetworkName,
		"rpc", cfg.RPCAddress,
		"verifier", verifier.Hex(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// refreshGauges keeps the fee-pool and open-order gauges current. Both are
// derived state, so polling is enough.
func refreshGauges(ctx context.Context, engine *market.Engine, treasury types.Address, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pool, err := engine.BalanceOf(treasury); err == nil {
				units, _ := new(big.Float).SetInt(pool).Float64()
				observability.MarketMetrics().SetFeePool(units)
			}
			if open, err := engine.OpenOrders(); err == nil {
				observability.MarketMetrics().SetOpenOrders(len(open))
			}
		}
	}
}

// resolveRoles parses the configured role addresses, falling back to fixed
// development addresses for vault and treasury on local networks. The
// verifier has no fallback: a node without a verifier cannot resolve
// disputes.
func resolveRoles(cfg *config.Config) (vault, treasury, verifier types.Address, err error) {
	vaultHex := cfg.VaultAddress
	if strings.TrimSpace(vaultHex) == "" {
		vaultHex = defaultsVault
	}
	if vault, err = types.ParseAddress(vaultHex); err != nil {
		return
	}
	treasuryHex := cfg.TreasuryAddress
	if strings.TrimSpace(treasuryHex) == "" {
		treasuryHex = defaultsPool
	}
	if treasury, err = types.ParseAddress(treasuryHex); err != nil {
		return
	}
	if strings.TrimSpace(cfg.VerifierAddress) == "" {
		err = fmt.Errorf("VerifierAddress is required")
		return
	}
	verifier, err = types.ParseAddress(cfg.VerifierAddress)
	return
}
