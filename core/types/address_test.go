package types

import (
	"math/big"
	"testing"
)

func TestParseAddress(t *testing.T) {
	canonical := "0x00112233445566778899aabbccddeeff00112233"
	addr, err := ParseAddress(canonical)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Hex() != canonical {
		t.Fatalf("round trip = %s", addr.Hex())
	}

	// Prefix and surrounding whitespace are tolerated.
	same, err := ParseAddress("  00112233445566778899aabbccddeeff00112233 ")
	if err != nil || same != addr {
		t.Fatalf("unprefixed parse: %v, %v", same, err)
	}

	for _, bad := range []string{"", "0x1234", "0xzz112233445566778899aabbccddeeff00112233"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Fatalf("ParseAddress(%q) should fail", bad)
		}
	}
}

func TestAddressIsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("zero value must report zero")
	}
	zero[19] = 1
	if zero.IsZero() {
		t.Fatalf("non-zero address must not report zero")
	}
}

func TestEnsureAccount(t *testing.T) {
	acc := EnsureAccount(nil)
	if acc == nil || acc.Balance == nil || acc.Balance.Sign() != 0 {
		t.Fatalf("nil account not normalised: %+v", acc)
	}
	partial := &Account{Nonce: 3}
	if got := EnsureAccount(partial); got.Balance == nil || got.Nonce != 3 {
		t.Fatalf("nil balance not normalised: %+v", got)
	}
}

func TestAccountCloneIsDeep(t *testing.T) {
	acc := &Account{Nonce: 1, Balance: big.NewInt(100)}
	clone := acc.Clone()
	clone.Balance.SetInt64(999)
	if acc.Balance.Int64() != 100 {
		t.Fatalf("clone aliases the original balance")
	}
}
