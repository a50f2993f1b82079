package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// TierConfig is one row of the tier schedule in the config file. Price is in
// six-decimal payment token units.
type TierConfig struct {
	Price           int64 `toml:"Price"`
	DurationSeconds int64 `toml:"DurationSeconds"`
}

// ProtocolConfig carries the economic constants. Bounds are enforced by
// Validate at load time; the settlement engine trusts a loaded value.
type ProtocolConfig struct {
	FeeBps                 uint32 `toml:"FeeBps"`
	BondBps                uint32 `toml:"BondBps"`
	ChallengeBps           uint32 `toml:"ChallengeBps"`
	MinRevealDelaySeconds  int64  `toml:"MinRevealDelaySeconds"`
	ChallengeWindowSeconds int64  `toml:"ChallengeWindowSeconds"`
}

// IndexerConfig configures the event indexer and its query API.
type IndexerConfig struct {
	Enabled      bool   `toml:"Enabled"`
	DatabasePath string `toml:"DatabasePath"`
	ListenAddr   string `toml:"ListenAddr"`
}

type Config struct {
	RPCAddress        string         `toml:"RPCAddress"`
	DataDir           string         `toml:"DataDir"`
	NetworkName       string         `toml:"NetworkName"`
	Env               string         `toml:"Env"`
	VerifierJWTSecret string         `toml:"VerifierJWTSecret"`
	VaultAddress      string         `toml:"VaultAddress"`
	TreasuryAddress   string         `toml:"TreasuryAddress"`
	VerifierAddress   string         `toml:"VerifierAddress"`
	RateLimitPerMin   float64        `toml:"RateLimitPerMin"`
	RateLimitBurst    int            `toml:"RateLimitBurst"`
	Protocol          ProtocolConfig `toml:"Protocol"`
	Tiers             map[string]TierConfig
	Indexer           IndexerConfig `toml:"Indexer"`
}

// Load reads the configuration from path, writing defaults on first run.
// Invalid parameter bounds are fatal here so they can never surface during
// settlement.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./ominis-data"
	}
	if cfg.NetworkName == "" {
		cfg.NetworkName = "ominis-local"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 300
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.Protocol == (ProtocolConfig{}) {
		cfg.Protocol = ProtocolConfig{
			FeeBps:                 500,
			BondBps:                5_000,
			ChallengeBps:           1_000,
			MinRevealDelaySeconds:  30,
			ChallengeWindowSeconds: 24 * 60 * 60,
		}
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = map[string]TierConfig{
			"T2min":  {Price: 990_000, DurationSeconds: 120},
			"T5min":  {Price: 490_000, DurationSeconds: 300},
			"T15min": {Price: 290_000, DurationSeconds: 900},
			"T1hour": {Price: 150_000, DurationSeconds: 3600},
		}
	}
	if cfg.Indexer.DatabasePath == "" {
		cfg.Indexer.DatabasePath = filepath.Join(cfg.DataDir, "indexer.db")
	}
	if cfg.Indexer.ListenAddr == "" {
		cfg.Indexer.ListenAddr = "127.0.0.1:8646"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}
