package config

import (
	"fmt"
	"strings"

	"ominis/core/types"
	"ominis/native/market"
)

var tierNames = map[string]market.TimeTier{
	"T2min":  market.TierT2min,
	"T5min":  market.TierT5min,
	"T15min": market.TierT15min,
	"T1hour": market.TierT1hour,
}

// Validate checks parameter bounds, addresses and the tier schedule. Every
// failure here is a setup-time fatal; nothing is deferred to call time.
func (c *Config) Validate() error {
	if _, err := c.MarketParams(); err != nil {
		return err
	}
	if _, err := c.TierSchedule(); err != nil {
		return err
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"VaultAddress", c.VaultAddress},
		{"TreasuryAddress", c.TreasuryAddress},
		{"VerifierAddress", c.VerifierAddress},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue // filled in by the daemon for dev networks
		}
		if _, err := types.ParseAddress(field.value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", field.name, err)
		}
	}
	return nil
}

// MarketParams converts and validates the protocol section.
func (c *Config) MarketParams() (market.Params, error) {
	params := market.Params{
		FeeBps:          c.Protocol.FeeBps,
		BondBps:         c.Protocol.BondBps,
		ChallengeBps:    c.Protocol.ChallengeBps,
		MinRevealDelay:  c.Protocol.MinRevealDelaySeconds,
		ChallengeWindow: c.Protocol.ChallengeWindowSeconds,
	}
	if err := params.Validate(); err != nil {
		return market.Params{}, err
	}
	return params, nil
}

// TierSchedule converts and validates the tier table.
func (c *Config) TierSchedule() (market.TierSchedule, error) {
	schedule := make(market.TierSchedule, len(c.Tiers))
	for name, tc := range c.Tiers {
		tier, ok := tierNames[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown tier %q", name)
		}
		schedule[tier] = market.TierRate{
			Price:    bigFromInt64(tc.Price),
			Duration: secondsToDuration(tc.DurationSeconds),
		}
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return schedule, nil
}
