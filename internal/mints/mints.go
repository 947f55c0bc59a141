// Package mints provides mint-address predicates shared by the filter,
// ingestion, and metadata layers.
package mints

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ExcludedMint is the wrapped-SOL mint. It is the chain's base/native token
// and never appears in the mindmap.
const ExcludedMint = "So11111111111111111111111111111111111111112"

// IsValidToken reports whether a mint may appear in the mindmap.
func IsValidToken(mint string) bool {
	return mint != ExcludedMint
}

// IsWellFormed reports whether mint is a plausible Solana public key:
// base58 and exactly 32 bytes. Metadata lookups for anything else are
// guaranteed misses and are skipped upstream.
func IsWellFormed(mint string) bool {
	decoded, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// fieldPrime is 2^255-19 in little-endian byte order.
var fieldPrime = [32]byte{
	0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f,
}

// canonicalY reports whether the y coordinate of a 32-byte point encoding
// is reduced modulo the field prime. edwards25519 follows RFC 8032 and
// accepts unreduced encodings, but Solana addresses are always canonical.
func canonicalY(encoded []byte) bool {
	var y [32]byte
	copy(y[:], encoded)
	y[31] &= 0x7f // top bit carries the x sign, not part of y
	for i := 31; i >= 0; i-- {
		if y[i] < fieldPrime[i] {
			return true
		}
		if y[i] > fieldPrime[i] {
			return false
		}
	}
	return false
}

// OnCurve reports whether mint decodes to a canonically encoded point on
// the ed25519 curve. Off-curve addresses are program-derived (no private
// key exists for them).
func OnCurve(mint string) bool {
	decoded, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	if len(decoded) != 32 {
		return false
	}
	if !canonicalY(decoded) {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
