package market

import (
	"math/big"

	"ominis/core/types"
)

// DisputeTracker owns challenges and pending verification requests. A
// challenge is opened at most once per order and finalised exactly once by
// the privileged verifier.
type DisputeTracker struct {
	state State
}

// NewDisputeTracker wraps the state backend.
func NewDisputeTracker(state State) *DisputeTracker {
	return &DisputeTracker{state: state}
}

// Open records a new challenge. Fails if one already exists for the order.
func (t *DisputeTracker) Open(orderID uint64, challenger types.Address, stake *big.Int, raisedAt int64, reason string) (*Challenge, error) {
	if _, exists := t.state.ChallengeGet(orderID); exists {
		return nil, errState("order %d already challenged", orderID)
	}
	ch := &Challenge{
		OrderID:    orderID,
		Challenger: challenger,
		Stake:      cloneBigInt(stake),
		RaisedAt:   raisedAt,
		Reason:     reason,
	}
	if err := t.state.ChallengePut(ch); err != nil {
		return nil, err
	}
	return ch.Clone(), nil
}

// Get returns a copy of the challenge for an order.
func (t *DisputeTracker) Get(orderID uint64) (*Challenge, bool) {
	return t.state.ChallengeGet(orderID)
}

// Resolve records the binary outcome. A challenge resolves exactly once;
// afterwards it is immutable.
func (t *DisputeTracker) Resolve(orderID uint64, challengerWon bool) (*Challenge, error) {
	ch, exists := t.state.ChallengeGet(orderID)
	if !exists {
		return nil, errState("order %d has no challenge", orderID)
	}
	if ch.Resolved {
		return nil, errState("order %d challenge already resolved", orderID)
	}
	ch.Resolved = true
	ch.ChallengerWon = challengerWon
	if err := t.state.ChallengePut(ch); err != nil {
		return nil, err
	}
	return ch.Clone(), nil
}

// RequestVerification enqueues a primary verification for a revealed,
// unchallenged order. Idempotent per order.
func (t *DisputeTracker) RequestVerification(orderID uint64, now int64) error {
	if _, exists := t.state.VerificationGet(orderID); exists {
		return nil
	}
	return t.state.VerificationPut(&VerificationRequest{OrderID: orderID, RequestedAt: now})
}

// CompleteVerification marks a verification request processed with its
// outcome. Fails when no request exists or it was already processed.
func (t *DisputeTracker) CompleteVerification(orderID uint64, correct bool, reason string) (*VerificationRequest, error) {
	req, exists := t.state.VerificationGet(orderID)
	if !exists {
		return nil, errState("order %d has no verification request", orderID)
	}
	if req.Processed {
		return nil, errState("order %d verification already processed", orderID)
	}
	req.Processed = true
	req.Correct = correct
	req.Reason = reason
	if err := t.state.VerificationPut(req); err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// PendingVerifications lists order ids awaiting a verifier decision.
func (t *DisputeTracker) PendingVerifications() ([]uint64, error) {
	return t.state.PendingVerificationIDs()
}
