package market

import (
	"testing"
)

func TestCommitRevealRoundTrip(t *testing.T) {
	store := NewCommitRevealStore(newMockState(), 30)
	salt := [32]byte{0xAB, 0xCD}
	digest := CommitDigest("answer: 2x", salt)

	if err := store.Commit(7, solverAddr, digest, 100); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	valid, sub, err := store.Reveal(7, solverAddr, "answer: 2x", salt, 130)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if !valid {
		t.Fatalf("matching payload reported invalid")
	}
	if sub.Payload != "answer: 2x" || !sub.Revealed || sub.RevealedAt != 130 {
		t.Fatalf("submission not finalised: %+v", sub)
	}
}

func TestCommitRejectsEmptyAndDuplicate(t *testing.T) {
	store := NewCommitRevealStore(newMockState(), 30)
	if err := store.Commit(1, solverAddr, [32]byte{}, 100); CategoryOf(err) != ErrCategoryValidation {
		t.Fatalf("empty hash must be a validation error, got %v", err)
	}
	digest := CommitDigest("x", [32]byte{1})
	if err := store.Commit(1, solverAddr, digest, 100); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := store.Commit(1, solverAddr, digest, 101); CategoryOf(err) != ErrCategoryState {
		t.Fatalf("duplicate commit must be a state error, got %v", err)
	}
}

func TestRevealGuards(t *testing.T) {
	state := newMockState()
	store := NewCommitRevealStore(state, 30)
	salt := [32]byte{0x01}
	digest := CommitDigest("p", salt)
	if err := store.Commit(1, solverAddr, digest, 100); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Missing commit.
	if _, _, err := store.Reveal(2, solverAddr, "p", salt, 200); CategoryOf(err) != ErrCategoryState {
		t.Fatalf("reveal without commit, got %v", err)
	}
	// Wrong caller.
	if _, _, err := store.Reveal(1, challengerAddr, "p", salt, 200); CategoryOf(err) != ErrCategoryAuthorization {
		t.Fatalf("reveal by non-committer, got %v", err)
	}
	// Delay boundary: 129 is one short of committedAt+30.
	if _, _, err := store.Reveal(1, solverAddr, "p", salt, 129); CategoryOf(err) != ErrCategoryTemporal {
		t.Fatalf("early reveal, got %v", err)
	}
	// Mismatch: invalid but no error, commit stays revealable.
	valid, _, err := store.Reveal(1, solverAddr, "q", salt, 130)
	if err != nil || valid {
		t.Fatalf("mismatch should be (false, nil), got (%v, %v)", valid, err)
	}
	// Exact boundary instant is allowed.
	valid, _, err = store.Reveal(1, solverAddr, "p", salt, 130)
	if err != nil || !valid {
		t.Fatalf("reveal at delay boundary: (%v, %v)", valid, err)
	}
	// Revealed submissions are immutable.
	if _, _, err := store.Reveal(1, solverAddr, "p", salt, 131); CategoryOf(err) != ErrCategoryState {
		t.Fatalf("second reveal, got %v", err)
	}
}

func TestCommitDigestSaltSensitivity(t *testing.T) {
	a := CommitDigest("payload", [32]byte{1})
	b := CommitDigest("payload", [32]byte{2})
	c := CommitDigest("payloae", [32]byte{1})
	if a == b || a == c {
		t.Fatalf("digest must depend on both payload and salt")
	}
	if a != CommitDigest("payload", [32]byte{1}) {
		t.Fatalf("digest must be deterministic")
	}
}
