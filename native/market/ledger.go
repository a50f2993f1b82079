package market

import (
	"fmt"
	"math/big"

	"ominis/core/types"
)

// Ledger tracks the three per-order balances (locked reward, solver bond,
// challenge stake) and moves value through the payment rail. Every balance
// transitions exactly once from locked to released, refunded or slashed;
// the balance-is-zero guards make double moves impossible rather than merely
// trusted away.
type Ledger struct {
	state    State
	rail     PaymentRail
	vault    types.Address
	treasury types.Address
	feeBps   uint32
}

// NewLedger constructs the escrow ledger. The fee percentage is validated by
// Params at configuration time and trusted here.
func NewLedger(state State, rail PaymentRail, vault, treasury types.Address, feeBps uint32) *Ledger {
	return &Ledger{state: state, rail: rail, vault: vault, treasury: treasury, feeBps: feeBps}
}

func (l *Ledger) loadEscrow(orderID uint64) *OrderEscrow {
	esc, ok := l.state.EscrowGet(orderID)
	if !ok {
		return &OrderEscrow{
			OrderID: orderID,
			Reward:  big.NewInt(0),
			Bond:    big.NewInt(0),
			Stake:   big.NewInt(0),
		}
	}
	return esc
}

// LockReward transfers the reward from the payer into the vault and records
// the lock. Fails if a reward is already locked for the order.
func (l *Ledger) LockReward(orderID uint64, payer types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("ledger: reward must be positive")
	}
	esc := l.loadEscrow(orderID)
	if esc.Reward.Sign() != 0 {
		return fmt.Errorf("ledger: reward already locked for order %d", orderID)
	}
	if err := l.rail.Transfer(payer, l.vault, amt); err != nil {
		return err
	}
	esc.Reward = amt
	esc.RewardPayer = payer
	return l.state.EscrowPut(esc)
}

// RecordLockedReward records a reward that was already moved into the vault
// by the caller. Posting charges the issuer before the order id exists, then
// attributes the lock here.
func (l *Ledger) RecordLockedReward(orderID uint64, payer types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("ledger: reward must be positive")
	}
	esc := l.loadEscrow(orderID)
	if esc.Reward.Sign() != 0 {
		return fmt.Errorf("ledger: reward already locked for order %d", orderID)
	}
	esc.Reward = amt
	esc.RewardPayer = payer
	return l.state.EscrowPut(esc)
}

// LockSolverBond transfers the solver bond into the vault. A zero bond is
// recorded without a transfer so slashing stays a no-op later.
func (l *Ledger) LockSolverBond(orderID uint64, payer types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("ledger: negative bond")
	}
	esc := l.loadEscrow(orderID)
	if esc.Bond.Sign() != 0 || !esc.BondPayer.IsZero() {
		return fmt.Errorf("ledger: bond already locked for order %d", orderID)
	}
	if amt.Sign() > 0 {
		if err := l.rail.Transfer(payer, l.vault, amt); err != nil {
			return err
		}
	}
	esc.Bond = amt
	esc.BondPayer = payer
	return l.state.EscrowPut(esc)
}

// LockChallengeStake transfers the challenger stake into the vault.
func (l *Ledger) LockChallengeStake(orderID uint64, payer types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("ledger: stake must be positive")
	}
	esc := l.loadEscrow(orderID)
	if esc.Stake.Sign() != 0 {
		return fmt.Errorf("ledger: stake already locked for order %d", orderID)
	}
	if err := l.rail.Transfer(payer, l.vault, amt); err != nil {
		return err
	}
	esc.Stake = amt
	esc.StakePayer = payer
	return l.state.EscrowPut(esc)
}

// ReleaseRewardToSolver pays the solver the reward minus the protocol fee
// plus the full bond, accruing the fee to the treasury. Both the reward and
// bond balances are zeroed.
func (l *Ledger) ReleaseRewardToSolver(orderID uint64, solver types.Address) error {
	esc := l.loadEscrow(orderID)
	if esc.Reward.Sign() == 0 {
		return fmt.Errorf("ledger: no locked reward for order %d", orderID)
	}
	fee := new(big.Int).Mul(esc.Reward, new(big.Int).SetUint64(uint64(l.feeBps)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	payout := new(big.Int).Sub(esc.Reward, fee)
	payout.Add(payout, esc.Bond)
	if payout.Sign() > 0 {
		if err := l.rail.Transfer(l.vault, solver, payout); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := l.rail.Transfer(l.vault, l.treasury, fee); err != nil {
			return err
		}
	}
	esc.Reward = big.NewInt(0)
	esc.Bond = big.NewInt(0)
	return l.state.EscrowPut(esc)
}

// RefundToIssuer returns the full locked reward to whoever paid it.
func (l *Ledger) RefundToIssuer(orderID uint64) error {
	esc := l.loadEscrow(orderID)
	if esc.Reward.Sign() == 0 {
		return fmt.Errorf("ledger: no locked reward for order %d", orderID)
	}
	if err := l.rail.Transfer(l.vault, esc.RewardPayer, esc.Reward); err != nil {
		return err
	}
	esc.Reward = big.NewInt(0)
	return l.state.EscrowPut(esc)
}

// SlashSolver forfeits the bond to the treasury. No-op when no bond is
// locked, which covers timeouts on orders nobody accepted.
func (l *Ledger) SlashSolver(orderID uint64) error {
	esc := l.loadEscrow(orderID)
	if esc.Bond.Sign() == 0 {
		return nil
	}
	if err := l.rail.Transfer(l.vault, l.treasury, esc.Bond); err != nil {
		return err
	}
	esc.Bond = big.NewInt(0)
	return l.state.EscrowPut(esc)
}

// RewardChallenger pays a winning challenger their stake back plus half the
// solver bond; the remaining bond goes to the treasury. Both balances are
// zeroed.
func (l *Ledger) RewardChallenger(orderID uint64) error {
	esc := l.loadEscrow(orderID)
	if esc.Stake.Sign() == 0 {
		return fmt.Errorf("ledger: no locked stake for order %d", orderID)
	}
	bondShare := new(big.Int).Div(esc.Bond, big.NewInt(2))
	bondRemainder := new(big.Int).Sub(esc.Bond, bondShare)
	payout := new(big.Int).Add(esc.Stake, bondShare)
	if err := l.rail.Transfer(l.vault, esc.StakePayer, payout); err != nil {
		return err
	}
	if bondRemainder.Sign() > 0 {
		if err := l.rail.Transfer(l.vault, l.treasury, bondRemainder); err != nil {
			return err
		}
	}
	esc.Stake = big.NewInt(0)
	esc.Bond = big.NewInt(0)
	return l.state.EscrowPut(esc)
}

// SlashChallenger forfeits a losing challenger's stake: half to the solver
// when one is assigned, the rest to the treasury. The stake is zeroed.
func (l *Ledger) SlashChallenger(orderID uint64, solver types.Address) error {
	esc := l.loadEscrow(orderID)
	if esc.Stake.Sign() == 0 {
		return fmt.Errorf("ledger: no locked stake for order %d", orderID)
	}
	if solver.IsZero() {
		if err := l.rail.Transfer(l.vault, l.treasury, esc.Stake); err != nil {
			return err
		}
	} else {
		solverShare := new(big.Int).Div(esc.Stake, big.NewInt(2))
		treasuryShare := new(big.Int).Sub(esc.Stake, solverShare)
		if solverShare.Sign() > 0 {
			if err := l.rail.Transfer(l.vault, solver, solverShare); err != nil {
				return err
			}
		}
		if treasuryShare.Sign() > 0 {
			if err := l.rail.Transfer(l.vault, l.treasury, treasuryShare); err != nil {
				return err
			}
		}
	}
	esc.Stake = big.NewInt(0)
	return l.state.EscrowPut(esc)
}

// LockedReward reports the currently locked reward for an order.
func (l *Ledger) LockedReward(orderID uint64) *big.Int {
	return l.loadEscrow(orderID).Reward
}

// SolverBond reports the currently locked bond for an order.
func (l *Ledger) SolverBond(orderID uint64) *big.Int {
	return l.loadEscrow(orderID).Bond
}

// ChallengeStake reports the currently locked stake for an order.
func (l *Ledger) ChallengeStake(orderID uint64) *big.Int {
	return l.loadEscrow(orderID).Stake
}
