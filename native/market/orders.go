package market

import (
	"fmt"
	"math/big"

	"ominis/core/types"
)

// OrderStore is the authoritative record of orders. All mutation funnels
// through Create and Transition; the append-only log is never compacted.
type OrderStore struct {
	state State
}

// NewOrderStore wraps the state backend.
func NewOrderStore(state State) *OrderStore {
	return &OrderStore{state: state}
}

// Create assigns the next order id and persists a new OPEN order.
func (s *OrderStore) Create(issuer types.Address, problemHash [32]byte, kind ProblemKind, tier TimeTier, reward *big.Int, createdAt, deadline int64) (*Order, error) {
	id, err := s.state.NextOrderID()
	if err != nil {
		return nil, err
	}
	order := &Order{
		ID:          id,
		Issuer:      issuer,
		ProblemHash: problemHash,
		Kind:        kind,
		Tier:        tier,
		Status:      StatusOpen,
		Reward:      cloneBigInt(reward),
		CreatedAt:   createdAt,
		Deadline:    deadline,
	}
	if err := s.state.OrderPut(order); err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// Get returns a copy of the order or ErrOrderNotFound.
func (s *OrderStore) Get(id uint64) (*Order, error) {
	order, ok := s.state.OrderGet(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// OpenIDs lists the ids of all orders currently open, ascending.
func (s *OrderStore) OpenIDs() ([]uint64, error) {
	return s.state.OpenOrderIDs()
}

// Transition re-reads the order, verifies it still holds the expected status
// and applies the mutation atomically from the caller's point of view. The
// re-read defends against stale-status transitions from concurrent or
// re-entered calls on the same id.
func (s *OrderStore) Transition(id uint64, from, to OrderStatus, mutate func(*Order)) (*Order, error) {
	order, ok := s.state.OrderGet(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status != from {
		return nil, errState("order %d is %s, expected %s", id, order.Status, from)
	}
	if order.Status.Terminal() {
		return nil, errState("order %d is terminal (%s)", id, order.Status)
	}
	if !validTransition(from, to) {
		return nil, fmt.Errorf("market: illegal transition %s -> %s", from, to)
	}
	order.Status = to
	if mutate != nil {
		mutate(order)
	}
	if err := s.state.OrderPut(order); err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// validTransition encodes the §state-machine edges. Kept as a function rather
// than a table so the zero value of OrderStatus stays inert.
func validTransition(from, to OrderStatus) bool {
	switch from {
	case StatusOpen:
		return to == StatusAccepted || to == StatusCancelled || to == StatusExpired
	case StatusAccepted:
		return to == StatusCommitted || to == StatusExpired
	case StatusCommitted:
		return to == StatusRevealed || to == StatusExpired
	case StatusRevealed:
		return to == StatusVerified || to == StatusChallenged || to == StatusRejected
	case StatusChallenged:
		return to == StatusVerified || to == StatusRejected
	default:
		return false
	}
}
