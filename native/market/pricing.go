package market

import (
	"fmt"
	"math/big"
	"time"
)

// Pricing resolves a time tier into its reward price and deadline duration.
// The core treats the schedule as read-only configuration.
type Pricing interface {
	PriceForTier(tier TimeTier) (*big.Int, error)
	DurationForTier(tier TimeTier) (time.Duration, error)
}

// TierRate is one row of a tier schedule. Price is in six-decimal payment
// token units.
type TierRate struct {
	Price    *big.Int
	Duration time.Duration
}

// TierSchedule is a static tier -> rate table implementing Pricing.
type TierSchedule map[TimeTier]TierRate

// DefaultTierSchedule returns the launch pricing: faster tiers cost more.
func DefaultTierSchedule() TierSchedule {
	return TierSchedule{
		TierT2min:  {Price: big.NewInt(990_000), Duration: 2 * time.Minute},
		TierT5min:  {Price: big.NewInt(490_000), Duration: 5 * time.Minute},
		TierT15min: {Price: big.NewInt(290_000), Duration: 15 * time.Minute},
		TierT1hour: {Price: big.NewInt(150_000), Duration: time.Hour},
	}
}

// Validate ensures every supported tier carries a positive price and
// duration. Called once at configuration time.
func (s TierSchedule) Validate() error {
	for _, tier := range []TimeTier{TierT2min, TierT5min, TierT15min, TierT1hour} {
		rate, ok := s[tier]
		if !ok {
			return fmt.Errorf("tier schedule: missing tier %s", tier)
		}
		if rate.Price == nil || rate.Price.Sign() <= 0 {
			return fmt.Errorf("tier schedule: tier %s price must be positive", tier)
		}
		if rate.Duration <= 0 {
			return fmt.Errorf("tier schedule: tier %s duration must be positive", tier)
		}
	}
	return nil
}

// PriceForTier implements Pricing.
func (s TierSchedule) PriceForTier(tier TimeTier) (*big.Int, error) {
	rate, ok := s[tier]
	if !ok {
		return nil, fmt.Errorf("tier schedule: unknown tier %d", tier)
	}
	return cloneBigInt(rate.Price), nil
}

// DurationForTier implements Pricing.
func (s TierSchedule) DurationForTier(tier TimeTier) (time.Duration, error) {
	rate, ok := s[tier]
	if !ok {
		return 0, fmt.Errorf("tier schedule: unknown tier %d", tier)
	}
	return rate.Duration, nil
}
