package indexer

import (
	"time"

	"github.com/google/uuid"
)

// OrderRecord is the indexed projection of an order, updated as settlement
// events arrive. The settlement core stays authoritative; this table exists
// for queries only.
type OrderRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Issuer      string `gorm:"size:42;index"`
	Solver      string `gorm:"size:42;index"`
	ProblemHash string `gorm:"size:64"`
	Kind        string `gorm:"size:32;index"`
	Tier        string `gorm:"size:16"`
	Status      string `gorm:"size:16;index"`
	Reward      string `gorm:"size:78"`
	Deadline    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SolutionRecord tracks the commit-reveal trail of an order.
type SolutionRecord struct {
	OrderID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Solver      string `gorm:"size:42;index"`
	CommitHash  string `gorm:"size:64"`
	RevealedAt  int64
	CommittedAt time.Time
	UpdatedAt   time.Time
}

// ChallengeRecord tracks disputes and their outcomes.
type ChallengeRecord struct {
	OrderID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	Challenger    string `gorm:"size:42;index"`
	Stake         string `gorm:"size:78"`
	Reason        string `gorm:"size:512"`
	Resolved      bool
	ChallengerWon bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EventRecord is the append-only raw event log.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	OrderID    uint64    `gorm:"index"`
	Attributes string    `gorm:"size:2048"`
	CreatedAt  time.Time
}

// SolverStats is the per-solver aggregate served by the stats endpoint.
type SolverStats struct {
	Solver      string `json:"solver"`
	Accepted    int64  `json:"accepted"`
	Verified    int64  `json:"verified"`
	Rejected    int64  `json:"rejected"`
	TotalEarned string `json:"totalEarned"`
}
