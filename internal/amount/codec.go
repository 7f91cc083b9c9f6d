// Amount codec: conversion between native integer units (wei/satoshi/lamports)
// and decimal display strings, plus the per-intent amount nonce.
package amount

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrMalformedAmount non-numeric or unrepresentable amount input
var ErrMalformedAmount = errors.New("malformed amount")

// MaxDecimals upper bound across supported networks (18 = wei)
const MaxDecimals = 18

// ToNative converts a decimal string to an integer in native units.
// The fractional part is padded to `decimals` places; input with more
// fractional digits than the asset supports is rejected rather than
// silently truncated.
func ToNative(decimalString string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(decimalString)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, decimalString)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrMalformedAmount, decimalString)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrMalformedAmount, decimalString, decimals)
	}
	return shifted.BigInt(), nil
}

// FromNative converts native integer units to a decimal string, trimming any
// trailing zero fraction. Round-trips exactly with ToNative for any
// non-negative integer representable within `decimals`.
func FromNative(n *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(n, -int32(decimals)).String()
}

// WithNonce replaces the lowest `nonceWidth` decimal digits of a raw amount
// with a random value drawn from crypto/rand. Two intents sharing a deposit
// address then expect distinct raw amounts with probability 1 - 10^-nonceWidth,
// which is what makes exact-match amount comparison safe under address reuse.
func WithNonce(expected *big.Int, nonceWidth int) (*big.Int, uint64, error) {
	if nonceWidth <= 0 {
		return new(big.Int).Set(expected), 0, nil
	}
	mod := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(nonceWidth)), nil)
	if expected.Cmp(mod) < 0 {
		return nil, 0, fmt.Errorf("%w: amount %s too small for a %d-digit nonce", ErrMalformedAmount, expected, nonceWidth)
	}
	n, err := rand.Int(rand.Reader, mod)
	if err != nil {
		return nil, 0, fmt.Errorf("draw nonce: %w", err)
	}
	nonced := new(big.Int).Sub(expected, new(big.Int).Mod(expected, mod))
	nonced.Add(nonced, n)
	return nonced, n.Uint64(), nil
}

// ParseRaw parses a stored raw amount string back into an integer
func ParseRaw(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: raw amount %q", ErrMalformedAmount, raw)
	}
	return n, nil
}
