package market

import (
	"math/big"
	"testing"

	"ominis/core/types"
)

func newTestLedger(t *testing.T) (*Ledger, *mockState) {
	t.Helper()
	state := newMockState()
	for _, addr := range []types.Address{issuerAddr, solverAddr, challengerAddr} {
		state.accounts[addr] = &types.Account{Balance: big.NewInt(initialBalance)}
	}
	rail := NewAccountRail(state)
	return NewLedger(state, rail, vaultAddr, treasuryAddr, 500), state
}

func TestLedgerRewardLocksOnce(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("LockReward: %v", err)
	}
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(1000)); err == nil {
		t.Fatalf("second lock must fail")
	}
	if err := ledger.RecordLockedReward(1, issuerAddr, big.NewInt(1000)); err == nil {
		t.Fatalf("recording over a locked reward must fail")
	}
	if got := ledger.LockedReward(1).Int64(); got != 1000 {
		t.Fatalf("locked reward = %d", got)
	}
}

func TestLedgerReleaseThenRefundFails(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(10_000)); err != nil {
		t.Fatalf("LockReward: %v", err)
	}
	if err := ledger.ReleaseRewardToSolver(1, solverAddr); err != nil {
		t.Fatalf("ReleaseRewardToSolver: %v", err)
	}
	if err := ledger.RefundToIssuer(1); err == nil {
		t.Fatalf("refund after release must fail, balance is spent")
	}
	if err := ledger.ReleaseRewardToSolver(1, solverAddr); err == nil {
		t.Fatalf("double release must fail")
	}
}

func TestLedgerReleaseSplitsFeeAndBond(t *testing.T) {
	ledger, state := newTestLedger(t)
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(10_000)); err != nil {
		t.Fatalf("LockReward: %v", err)
	}
	if err := ledger.LockSolverBond(1, solverAddr, big.NewInt(5_000)); err != nil {
		t.Fatalf("LockSolverBond: %v", err)
	}
	if err := ledger.ReleaseRewardToSolver(1, solverAddr); err != nil {
		t.Fatalf("ReleaseRewardToSolver: %v", err)
	}
	// fee = 10000 * 500 / 10000 = 500
	solverAcc, _ := state.GetAccount(solverAddr)
	if got := solverAcc.Balance.Int64(); got != initialBalance-5_000+(10_000-500)+5_000 {
		t.Fatalf("solver balance = %d", got)
	}
	treasuryAcc, _ := state.GetAccount(treasuryAddr)
	if got := treasuryAcc.Balance.Int64(); got != 500 {
		t.Fatalf("treasury balance = %d", got)
	}
	if ledger.SolverBond(1).Sign() != 0 {
		t.Fatalf("bond must be zero after release")
	}
}

func TestLedgerSlashSolverNoBondIsNoop(t *testing.T) {
	ledger, state := newTestLedger(t)
	if err := ledger.SlashSolver(1); err != nil {
		t.Fatalf("SlashSolver without bond: %v", err)
	}
	treasuryAcc, _ := state.GetAccount(treasuryAddr)
	if treasuryAcc.Balance.Sign() != 0 {
		t.Fatalf("treasury must stay empty")
	}
}

func TestLedgerZeroBondRecordedOnce(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.LockSolverBond(1, solverAddr, big.NewInt(0)); err != nil {
		t.Fatalf("zero bond lock: %v", err)
	}
	if err := ledger.LockSolverBond(1, solverAddr, big.NewInt(100)); err == nil {
		t.Fatalf("re-lock after zero bond must fail")
	}
	if err := ledger.SlashSolver(1); err != nil {
		t.Fatalf("slashing a zero bond: %v", err)
	}
}

func TestLedgerChallengerPayoutRounding(t *testing.T) {
	ledger, state := newTestLedger(t)
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(10_000)); err != nil {
		t.Fatalf("LockReward: %v", err)
	}
	// Odd bond: the challenger gets the rounded-down half, the treasury
	// keeps the remainder, nothing is lost.
	if err := ledger.LockSolverBond(1, solverAddr, big.NewInt(101)); err != nil {
		t.Fatalf("LockSolverBond: %v", err)
	}
	if err := ledger.LockChallengeStake(1, challengerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("LockChallengeStake: %v", err)
	}
	if err := ledger.RewardChallenger(1); err != nil {
		t.Fatalf("RewardChallenger: %v", err)
	}
	chAcc, _ := state.GetAccount(challengerAddr)
	if got := chAcc.Balance.Int64(); got != initialBalance+50 {
		t.Fatalf("challenger balance = %d, want +50", got)
	}
	treasuryAcc, _ := state.GetAccount(treasuryAddr)
	if got := treasuryAcc.Balance.Int64(); got != 51 {
		t.Fatalf("treasury balance = %d, want 51", got)
	}
	if err := ledger.RewardChallenger(1); err == nil {
		t.Fatalf("double challenger payout must fail")
	}
}

func TestLedgerSlashChallengerWithoutSolver(t *testing.T) {
	ledger, state := newTestLedger(t)
	if err := ledger.LockReward(1, issuerAddr, big.NewInt(10_000)); err != nil {
		t.Fatalf("LockReward: %v", err)
	}
	if err := ledger.LockChallengeStake(1, challengerAddr, big.NewInt(999)); err != nil {
		t.Fatalf("LockChallengeStake: %v", err)
	}
	var noSolver types.Address
	if err := ledger.SlashChallenger(1, noSolver); err != nil {
		t.Fatalf("SlashChallenger: %v", err)
	}
	treasuryAcc, _ := state.GetAccount(treasuryAddr)
	if got := treasuryAcc.Balance.Int64(); got != 999 {
		t.Fatalf("treasury should take the whole stake: %d", got)
	}
	if err := ledger.SlashChallenger(1, noSolver); err == nil {
		t.Fatalf("double slash must fail")
	}
}

func TestLedgerInsufficientBalanceSurfaces(t *testing.T) {
	ledger, state := newTestLedger(t)
	poor := newTestAddress(0x09)
	state.accounts[poor] = &types.Account{Balance: big.NewInt(1)}
	err := ledger.LockReward(1, poor, big.NewInt(1000))
	if err == nil {
		t.Fatalf("expected insufficient balance")
	}
	if ledger.LockedReward(1).Sign() != 0 {
		t.Fatalf("failed lock must not record a reward")
	}
}
