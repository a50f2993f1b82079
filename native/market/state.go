package market

import (
	"ominis/core/types"
)

// State is the persistence backend shared by the market components. Every
// accessor returns defensive copies; components never hold aliases into each
// other's records. Implementations live in the state package (KV-backed) and
// in test fixtures.
type State interface {
	// NextOrderID reserves and returns the next monotonic order id. Ids
	// are never reused.
	NextOrderID() (uint64, error)

	OrderPut(*Order) error
	OrderGet(id uint64) (*Order, bool)
	// OpenOrderIDs lists ids of orders currently in StatusOpen, ascending.
	OpenOrderIDs() ([]uint64, error)

	SubmissionPut(*SolutionSubmission) error
	SubmissionGet(orderID uint64) (*SolutionSubmission, bool)

	ChallengePut(*Challenge) error
	ChallengeGet(orderID uint64) (*Challenge, bool)

	VerificationPut(*VerificationRequest) error
	VerificationGet(orderID uint64) (*VerificationRequest, bool)
	// PendingVerificationIDs lists order ids with an unprocessed
	// verification request, ascending.
	PendingVerificationIDs() ([]uint64, error)

	EscrowPut(*OrderEscrow) error
	EscrowGet(orderID uint64) (*OrderEscrow, bool)

	GetAccount(addr types.Address) (*types.Account, error)
	PutAccount(addr types.Address, acc *types.Account) error
}
