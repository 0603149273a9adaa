package types

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// AddressSize is the length of an Address in bytes (BLAKE3-256).
const AddressSize = 32

// Address is the content address of a committed entry. It is derived from the
// serialized entry and therefore never changes for the same content.
type Address [AddressSize]byte

// HashBytes returns the Address of the given bytes.
func HashBytes(b []byte) Address {
	return Address(blake3.Sum256(b))
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 hex characters, for log lines and CLI output.
func (a Address) Short() string {
	return a.String()[:8]
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBytes copies b into an Address. b must be exactly AddressSize long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("invalid byte length for Address: %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress parses the hex form produced by String.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return AddressFromBytes(b)
}

// Addresses is a helper for printing lists of addresses.
type Addresses []Address

func (as Addresses) Strings() []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.String()
	}
	return out
}

// Contains reports whether a is in the list.
func (as Addresses) Contains(a Address) bool {
	for _, x := range as {
		if x == a {
			return true
		}
	}
	return false
}
