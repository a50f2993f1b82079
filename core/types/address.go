package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of a protocol identity.
const AddressLength = 20

// Address identifies a protocol participant (issuer, solver, challenger,
// verifier or treasury). Addresses are opaque to the settlement core; key
// management lives entirely off-core.
type Address [AddressLength]byte

// ParseAddress decodes a hex encoded identity, accepting an optional 0x
// prefix.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return addr, fmt.Errorf("invalid address length: %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// Hex returns the canonical 0x-prefixed lowercase encoding.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the unset sentinel.
func (a Address) IsZero() bool {
	return a == (Address{})
}

func (a Address) String() string { return a.Hex() }
