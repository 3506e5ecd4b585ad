package ir

import (
	"errors"
	"fmt"
	"math/big"
)

// MaxUint256 is the largest representable amount (2^256 - 1).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ErrOverflow is returned when an amount leaves the uint256 range.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrNegativeAmount is returned when an amount is below zero.
var ErrNegativeAmount = errors.New("negative amount")

// ParseAmount parses a base-10 unsigned integer within uint256 range.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount: empty string")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q: not a base-10 integer", s)
	}
	if err := CheckAmount(n); err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return n, nil
}

// MustParseAmount is like ParseAmount but panics on error.
// Use only in tests or with constant inputs.
func MustParseAmount(s string) *big.Int {
	n, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return n
}

// CheckAmount verifies 0 <= n <= MaxUint256. A nil amount is rejected.
func CheckAmount(n *big.Int) error {
	if n == nil {
		return fmt.Errorf("amount: nil")
	}
	if n.Sign() < 0 {
		return ErrNegativeAmount
	}
	if n.Cmp(MaxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

// CheckedAdd returns a + b, or ErrOverflow when the sum exceeds MaxUint256.
// The operands are not modified.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// CheckedMul returns a * b, or ErrOverflow when the product exceeds MaxUint256.
// Integer multiplication only; nothing is rounded.
func CheckedMul(a, b *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(a, b)
	if product.Cmp(MaxUint256) > 0 {
		return nil, ErrOverflow
	}
	return product, nil
}

// CopyAmount returns an independent copy of n, treating nil as zero.
func CopyAmount(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}

// FormatAmount renders n in base 10, treating nil as zero.
func FormatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
