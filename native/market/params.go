package market

import "fmt"

// Basis-point bounds enforced at configuration time. Operations never
// re-validate these; a loaded Params value is trusted.
const (
	MaxFeeBps       = 1_000 // 10%
	MaxBondBps      = 5_000 // 50%
	MaxChallengeBps = 5_000 // 50%
	bpsDenominator  = 10_000
)

// Params holds the protocol-wide economic constants. All durations are in
// seconds of the engine's time source.
type Params struct {
	// FeeBps is retained from the reward on release to the solver.
	FeeBps uint32
	// BondBps sizes the solver bond relative to the reward.
	BondBps uint32
	// ChallengeBps sizes the challenger stake relative to the reward.
	ChallengeBps uint32
	// MinRevealDelay is the minimum gap between commit and reveal. A zero
	// delay would allow same-instant commit+reveal and defeat the scheme.
	MinRevealDelay int64
	// ChallengeWindow is how long after reveal a dispute may be raised.
	ChallengeWindow int64
}

// DefaultParams mirrors the protocol deployment defaults: 5% fee, 50% bond,
// 10% challenge stake, 30s reveal delay, 24h challenge window.
func DefaultParams() Params {
	return Params{
		FeeBps:          500,
		BondBps:         5_000,
		ChallengeBps:    1_000,
		MinRevealDelay:  30,
		ChallengeWindow: 24 * 60 * 60,
	}
}

// Validate rejects out-of-bounds parameters. Misconfiguration is fatal at
// setup and must never surface at call time.
func (p Params) Validate() error {
	if p.FeeBps > MaxFeeBps {
		return fmt.Errorf("market params: fee bps %d exceeds %d", p.FeeBps, MaxFeeBps)
	}
	if p.BondBps > MaxBondBps {
		return fmt.Errorf("market params: bond bps %d exceeds %d", p.BondBps, MaxBondBps)
	}
	if p.ChallengeBps == 0 || p.ChallengeBps > MaxChallengeBps {
		return fmt.Errorf("market params: challenge bps %d out of range (0, %d]", p.ChallengeBps, MaxChallengeBps)
	}
	if p.MinRevealDelay <= 0 {
		return fmt.Errorf("market params: min reveal delay must be positive")
	}
	if p.ChallengeWindow <= 0 {
		return fmt.Errorf("market params: challenge window must be positive")
	}
	return nil
}
