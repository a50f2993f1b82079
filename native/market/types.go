package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ominis/core/types"
)

// OrderStatus enumerates the lifecycle states of a work order. The numeric
// values are part of the wire format consumed by indexers and must not be
// reordered.
type OrderStatus uint8

const (
	StatusOpen OrderStatus = iota
	StatusAccepted
	StatusCommitted
	StatusRevealed
	StatusVerified
	StatusChallenged
	StatusExpired
	StatusCancelled
	StatusRejected
)

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	return s <= StatusRejected
}

// Terminal reports whether no further transition may leave this status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusExpired, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusCommitted:
		return "COMMITTED"
	case StatusRevealed:
		return "REVEALED"
	case StatusVerified:
		return "VERIFIED"
	case StatusChallenged:
		return "CHALLENGED"
	case StatusExpired:
		return "EXPIRED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
}

// ProblemKind enumerates the supported problem categories.
type ProblemKind uint8

const (
	ProblemDerivative ProblemKind = iota
	ProblemIntegral
	ProblemLimit
	ProblemDifferentialEq
	ProblemSeries
)

// Valid reports whether the kind is part of the closed set.
func (k ProblemKind) Valid() bool {
	return k <= ProblemSeries
}

func (k ProblemKind) String() string {
	switch k {
	case ProblemDerivative:
		return "derivative"
	case ProblemIntegral:
		return "integral"
	case ProblemLimit:
		return "limit"
	case ProblemDifferentialEq:
		return "differential_eq"
	case ProblemSeries:
		return "series"
	default:
		return fmt.Sprintf("ProblemKind(%d)", uint8(k))
	}
}

// TimeTier enumerates the deadline tiers. Each tier fixes both the reward
// price and the time the solver has to deliver.
type TimeTier uint8

const (
	TierT2min TimeTier = iota
	TierT5min
	TierT15min
	TierT1hour
)

// Valid reports whether the tier is part of the closed set.
func (t TimeTier) Valid() bool {
	return t <= TierT1hour
}

func (t TimeTier) String() string {
	switch t {
	case TierT2min:
		return "T2min"
	case TierT5min:
		return "T5min"
	case TierT15min:
		return "T15min"
	case TierT1hour:
		return "T1hour"
	default:
		return fmt.Sprintf("TimeTier(%d)", uint8(t))
	}
}

// Order is one unit of work for sale. Orders are an append-only log keyed by
// a monotonically increasing id; they are never deleted, only transitioned.
type Order struct {
	ID          uint64
	Issuer      types.Address
	Solver      types.Address
	ProblemHash [32]byte
	Kind        ProblemKind
	Tier        TimeTier
	Status      OrderStatus
	Reward      *big.Int
	CreatedAt   int64
	Deadline    int64
	RevealedAt  int64
}

// Clone returns a deep copy so callers can mutate without affecting the
// stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Reward != nil {
		clone.Reward = new(big.Int).Set(o.Reward)
	} else {
		clone.Reward = big.NewInt(0)
	}
	return &clone
}

// SanitizeOrder validates and normalises an order record, returning a cloned
// instance with a non-nil reward.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("nil order")
	}
	clone := o.Clone()
	if clone.ProblemHash == ([32]byte{}) {
		return nil, fmt.Errorf("order %d: empty problem fingerprint", clone.ID)
	}
	if !clone.Kind.Valid() {
		return nil, fmt.Errorf("order %d: invalid problem kind %d", clone.ID, clone.Kind)
	}
	if !clone.Tier.Valid() {
		return nil, fmt.Errorf("order %d: invalid time tier %d", clone.ID, clone.Tier)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("order %d: invalid status %d", clone.ID, clone.Status)
	}
	if clone.Reward.Sign() <= 0 {
		return nil, fmt.Errorf("order %d: reward must be positive", clone.ID)
	}
	if clone.Deadline <= clone.CreatedAt {
		return nil, fmt.Errorf("order %d: deadline before creation", clone.ID)
	}
	if !clone.Solver.IsZero() && clone.Solver == clone.Issuer {
		return nil, fmt.Errorf("order %d: issuer may not be solver", clone.ID)
	}
	return clone, nil
}

// SolutionSubmission is the commit-reveal record for one order. Exactly one
// commit may exist per order; once revealed the record is immutable.
type SolutionSubmission struct {
	OrderID     uint64
	Solver      types.Address
	CommitHash  [32]byte
	Payload     string
	Salt        [32]byte
	CommittedAt int64
	RevealedAt  int64
	Revealed    bool
}

// Clone returns a copy of the submission.
func (s *SolutionSubmission) Clone() *SolutionSubmission {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// CommitDigest computes the canonical commitment for a payload and salt:
// keccak256(payload || salt). The salt keeps the commitment unguessable even
// for low-entropy payloads.
func CommitDigest(payload string, salt [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(payload), salt[:])
}

// ProblemFingerprint derives the fixed-size fingerprint stored on an order
// from the off-core problem text.
func ProblemFingerprint(problem string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(problem))
}

// Challenge is a dispute raised against a revealed solution. At most one
// challenge exists per order and it is immutable once resolved.
type Challenge struct {
	OrderID       uint64
	Challenger    types.Address
	Stake         *big.Int
	RaisedAt      int64
	Reason        string
	Resolved      bool
	ChallengerWon bool
}

// Clone returns a deep copy of the challenge.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Stake != nil {
		clone.Stake = new(big.Int).Set(c.Stake)
	} else {
		clone.Stake = big.NewInt(0)
	}
	return &clone
}

// VerificationRequest tracks a pending primary verification for a revealed,
// unchallenged order. The privileged verifier drains these and settles each
// exactly once.
type VerificationRequest struct {
	OrderID     uint64
	RequestedAt int64
	Processed   bool
	Correct     bool
	Reason      string
}

// Clone returns a copy of the request.
func (v *VerificationRequest) Clone() *VerificationRequest {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// OrderEscrow tracks the three per-order balances held by the vault: the
// locked reward, the solver bond and the challenge stake. Each balance makes
// a single move (release, refund or slash) and is zero thereafter.
type OrderEscrow struct {
	OrderID     uint64
	Reward      *big.Int
	RewardPayer types.Address
	Bond        *big.Int
	BondPayer   types.Address
	Stake       *big.Int
	StakePayer  types.Address
}

// Clone returns a deep copy of the escrow record.
func (e *OrderEscrow) Clone() *OrderEscrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Reward = cloneBigInt(e.Reward)
	clone.Bond = cloneBigInt(e.Bond)
	clone.Stake = cloneBigInt(e.Stake)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
