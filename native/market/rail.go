package market

import (
	"fmt"
	"math/big"

	"ominis/core/types"
)

// PaymentRail moves value between identities. A failed transfer aborts the
// whole settlement operation that requested it; failures are always
// synchronous.
type PaymentRail interface {
	Transfer(from, to types.Address, amount *big.Int) error
	BalanceOf(addr types.Address) (*big.Int, error)
}

// AccountRail is the in-core payment rail over State-held accounts.
type AccountRail struct {
	state State
}

// NewAccountRail wraps the state backend in a PaymentRail.
func NewAccountRail(state State) *AccountRail {
	return &AccountRail{state: state}
}

// Transfer debits from and credits to. A zero amount is a no-op; a negative
// amount is rejected outright.
func (r *AccountRail) Transfer(from, to types.Address, amount *big.Int) error {
	if r == nil || r.state == nil {
		return fmt.Errorf("payment rail: state not configured")
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("payment rail: negative transfer amount")
	}
	fromAcc, err := r.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := r.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("payment rail: %w: %s has %s, needs %s", ErrInsufficientBalance, from, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := r.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return r.state.PutAccount(to, toAcc)
}

// BalanceOf reports the current balance of an identity.
func (r *AccountRail) BalanceOf(addr types.Address) (*big.Int, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("payment rail: state not configured")
	}
	acc, err := r.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(types.EnsureAccount(acc).Balance), nil
}
