package state

import (
	"math/big"
	"testing"

	"ominis/core/types"
	"ominis/native/market"
	"ominis/storage"
)

func testAddress(fill byte) types.Address {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestState() *MarketState {
	return NewMarketState(storage.NewMemDB())
}

func TestNextOrderIDMonotonic(t *testing.T) {
	s := newTestState()
	for want := uint64(1); want <= 5; want++ {
		id, err := s.NextOrderID()
		if err != nil {
			t.Fatalf("NextOrderID: %v", err)
		}
		if id != want {
			t.Fatalf("id = %d, want %d", id, want)
		}
	}
}

func TestOrderRoundTripAndOpenIndex(t *testing.T) {
	s := newTestState()
	order := &market.Order{
		ID:          1,
		Issuer:      testAddress(0x11),
		ProblemHash: market.ProblemFingerprint("int x dx"),
		Kind:        market.ProblemIntegral,
		Tier:        market.TierT15min,
		Status:      market.StatusOpen,
		Reward:      big.NewInt(290_000),
		CreatedAt:   100,
		Deadline:    1000,
	}
	if err := s.OrderPut(order); err != nil {
		t.Fatalf("OrderPut: %v", err)
	}

	got, ok := s.OrderGet(1)
	if !ok {
		t.Fatalf("order not found after put")
	}
	if got.Issuer != order.Issuer || got.Kind != order.Kind || got.Reward.Cmp(order.Reward) != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ProblemHash != order.ProblemHash {
		t.Fatalf("fingerprint mismatch")
	}

	// Mutating the returned copy must not leak into the store.
	got.Reward.SetInt64(1)
	again, _ := s.OrderGet(1)
	if again.Reward.Int64() != 290_000 {
		t.Fatalf("stored reward mutated through returned copy")
	}

	ids, err := s.OpenOrderIDs()
	if err != nil {
		t.Fatalf("OpenOrderIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("open index = %v", ids)
	}

	// Leaving OPEN removes the id from the index.
	order.Status = market.StatusAccepted
	order.Solver = testAddress(0x22)
	if err := s.OrderPut(order); err != nil {
		t.Fatalf("OrderPut: %v", err)
	}
	ids, _ = s.OpenOrderIDs()
	if len(ids) != 0 {
		t.Fatalf("open index not cleared: %v", ids)
	}
}

func TestOrderPutRejectsInvalid(t *testing.T) {
	s := newTestState()
	bad := &market.Order{ID: 1, Reward: big.NewInt(0)}
	if err := s.OrderPut(bad); err == nil {
		t.Fatalf("invalid order must be rejected")
	}
	if _, ok := s.OrderGet(1); ok {
		t.Fatalf("rejected order must not be stored")
	}
}

func TestOpenIndexOrdering(t *testing.T) {
	s := newTestState()
	for _, id := range []uint64{3, 1, 2} {
		order := &market.Order{
			ID:          id,
			Issuer:      testAddress(0x11),
			ProblemHash: market.ProblemFingerprint("p"),
			Kind:        market.ProblemDerivative,
			Tier:        market.TierT2min,
			Status:      market.StatusOpen,
			Reward:      big.NewInt(990_000),
			CreatedAt:   100,
			Deadline:    220,
		}
		if err := s.OrderPut(order); err != nil {
			t.Fatalf("OrderPut(%d): %v", id, err)
		}
	}
	ids, err := s.OpenOrderIDs()
	if err != nil {
		t.Fatalf("OpenOrderIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("open index must sort ascending: %v", ids)
	}
}

func TestSubmissionAndChallengeRoundTrip(t *testing.T) {
	s := newTestState()
	salt := [32]byte{0x5a}
	sub := &market.SolutionSubmission{
		OrderID:     7,
		Solver:      testAddress(0x22),
		CommitHash:  market.CommitDigest("2x", salt),
		Payload:     "2x",
		Salt:        salt,
		CommittedAt: 50,
		RevealedAt:  90,
		Revealed:    true,
	}
	if err := s.SubmissionPut(sub); err != nil {
		t.Fatalf("SubmissionPut: %v", err)
	}
	gotSub, ok := s.SubmissionGet(7)
	if !ok || gotSub.Payload != "2x" || gotSub.Salt != salt || !gotSub.Revealed {
		t.Fatalf("submission round trip: %+v", gotSub)
	}

	ch := &market.Challenge{
		OrderID:    7,
		Challenger: testAddress(0x33),
		Stake:      big.NewInt(49_000),
		RaisedAt:   95,
		Reason:     "sign error",
	}
	if err := s.ChallengePut(ch); err != nil {
		t.Fatalf("ChallengePut: %v", err)
	}
	gotCh, ok := s.ChallengeGet(7)
	if !ok || gotCh.Stake.Int64() != 49_000 || gotCh.Reason != "sign error" {
		t.Fatalf("challenge round trip: %+v", gotCh)
	}
	if _, ok := s.ChallengeGet(8); ok {
		t.Fatalf("missing challenge must report absent")
	}
}

func TestVerificationPendingIndex(t *testing.T) {
	s := newTestState()
	if err := s.VerificationPut(&market.VerificationRequest{OrderID: 4, RequestedAt: 10}); err != nil {
		t.Fatalf("VerificationPut: %v", err)
	}
	if err := s.VerificationPut(&market.VerificationRequest{OrderID: 2, RequestedAt: 11}); err != nil {
		t.Fatalf("VerificationPut: %v", err)
	}
	ids, err := s.PendingVerificationIDs()
	if err != nil {
		t.Fatalf("PendingVerificationIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 4 {
		t.Fatalf("pending = %v", ids)
	}

	if err := s.VerificationPut(&market.VerificationRequest{OrderID: 4, RequestedAt: 10, Processed: true, Correct: true}); err != nil {
		t.Fatalf("VerificationPut: %v", err)
	}
	ids, _ = s.PendingVerificationIDs()
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("processed request must leave the index: %v", ids)
	}
}

func TestEscrowAndAccountRoundTrip(t *testing.T) {
	s := newTestState()
	esc := &market.OrderEscrow{
		OrderID:     9,
		Reward:      big.NewInt(490_000),
		RewardPayer: testAddress(0x11),
		Bond:        big.NewInt(245_000),
		BondPayer:   testAddress(0x22),
		Stake:       big.NewInt(0),
	}
	if err := s.EscrowPut(esc); err != nil {
		t.Fatalf("EscrowPut: %v", err)
	}
	got, ok := s.EscrowGet(9)
	if !ok || got.Reward.Int64() != 490_000 || got.Bond.Int64() != 245_000 {
		t.Fatalf("escrow round trip: %+v", got)
	}
	if got.RewardPayer != esc.RewardPayer || got.BondPayer != esc.BondPayer {
		t.Fatalf("payer attribution lost")
	}

	addr := testAddress(0x77)
	acc, err := s.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("fresh account must be zeroed")
	}
	acc.Balance = big.NewInt(123)
	if err := s.PutAccount(addr, acc); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	reloaded, _ := s.GetAccount(addr)
	if reloaded.Balance.Int64() != 123 {
		t.Fatalf("account round trip: %v", reloaded.Balance)
	}
}

func TestEngineOverPersistentState(t *testing.T) {
	s := newTestState()
	issuer := testAddress(0x11)
	solver := testAddress(0x22)
	if err := s.PutAccount(issuer, &types.Account{Balance: big.NewInt(10_000_000)}); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	if err := s.PutAccount(solver, &types.Account{Balance: big.NewInt(10_000_000)}); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	engine, err := market.NewEngine(market.EngineConfig{
		State:    s,
		Pricing:  market.DefaultTierSchedule(),
		Params:   market.DefaultParams(),
		Vault:    testAddress(0xAA),
		Treasury: testAddress(0xFE),
		Verifier: testAddress(0x44),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	order, err := engine.PostOrder(issuer, market.ProblemFingerprint("d/dx sin x"), market.ProblemDerivative, market.TierT1hour)
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	if _, err := engine.AcceptOrder(order.ID, solver); err != nil {
		t.Fatalf("AcceptOrder: %v", err)
	}

	// The whole record set must survive a round trip through the DB.
	reloaded, ok := s.OrderGet(order.ID)
	if !ok || reloaded.Status != market.StatusAccepted || reloaded.Solver != solver {
		t.Fatalf("persisted order: %+v", reloaded)
	}
	if esc, ok := s.EscrowGet(order.ID); !ok || esc.Reward.Int64() != 150_000 {
		t.Fatalf("persisted escrow: %+v", esc)
	}
}
