package market

import (
	"ominis/core/types"
)

// CommitRevealStore holds the two-phase solution submissions. Publishing the
// digest first prevents an observer from copying a pending answer; the
// minimum delay prevents committing and revealing in the same instant, which
// would defeat the scheme entirely.
type CommitRevealStore struct {
	state          State
	minRevealDelay int64
}

// NewCommitRevealStore wraps the state backend with the configured minimum
// commit-to-reveal delay (seconds).
func NewCommitRevealStore(state State, minRevealDelay int64) *CommitRevealStore {
	return &CommitRevealStore{state: state, minRevealDelay: minRevealDelay}
}

// Commit records the solution digest for an order. Exactly one commit may
// exist per order; a second attempt fails regardless of caller.
func (s *CommitRevealStore) Commit(orderID uint64, solver types.Address, commitHash [32]byte, now int64) error {
	if commitHash == ([32]byte{}) {
		return errValidation("empty commit hash for order %d", orderID)
	}
	if _, exists := s.state.SubmissionGet(orderID); exists {
		return errState("order %d already has a commit", orderID)
	}
	sub := &SolutionSubmission{
		OrderID:     orderID,
		Solver:      solver,
		CommitHash:  commitHash,
		CommittedAt: now,
	}
	return s.state.SubmissionPut(sub)
}

// Reveal completes the submission. The boolean result distinguishes a digest
// mismatch (a wrong guess, reported as invalid without touching state) from
// protocol misuse, which is returned as an error. On success the submission
// is immutable.
func (s *CommitRevealStore) Reveal(orderID uint64, solver types.Address, payload string, salt [32]byte, now int64) (bool, *SolutionSubmission, error) {
	sub, exists := s.state.SubmissionGet(orderID)
	if !exists {
		return false, nil, errState("order %d has no commit", orderID)
	}
	if sub.Revealed {
		return false, nil, errState("order %d already revealed", orderID)
	}
	if sub.Solver != solver {
		return false, nil, errAuthorization("order %d: reveal caller is not the committer", orderID)
	}
	if now < sub.CommittedAt+s.minRevealDelay {
		return false, nil, errTemporal("order %d: reveal before minimum delay", orderID)
	}
	if CommitDigest(payload, salt) != sub.CommitHash {
		return false, nil, nil
	}
	sub.Payload = payload
	sub.Salt = salt
	sub.RevealedAt = now
	sub.Revealed = true
	if err := s.state.SubmissionPut(sub); err != nil {
		return false, nil, err
	}
	return true, sub.Clone(), nil
}

// Get returns a copy of the submission for an order.
func (s *CommitRevealStore) Get(orderID uint64) (*SolutionSubmission, bool) {
	return s.state.SubmissionGet(orderID)
}
