// Package token provides amount parsing/formatting and a reference
// in-memory token bank.
//
// All ledger arithmetic runs on uint64 minor units (6 decimal places,
// 1 token = 1,000,000 units). Decimal strings like "1.50" appear only at
// the API boundary.
package token

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
)

const Decimals = 6

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrZeroAccount         = errors.New("token account must not be empty")
)

// maxUnits is the largest representable amount, for overflow-checked
// parsing via big.Int.
var maxUnits = new(big.Int).SetUint64(^uint64(0))

// Parse converts a decimal string (e.g. "1.50") to minor units (1500000).
// Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string parses as 0
//   - Negative amounts are rejected
//   - More than one decimal point is rejected
//   - Fractional digits beyond 6 places are rejected (no silent rounding)
//   - Values that overflow uint64 are rejected
func Parse(s string) (uint64, bool) {
	if s == "" {
		return 0, true
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return 0, false
	}
	if len(frac) > Decimals {
		return 0, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	combined := whole + frac
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok || n.Sign() < 0 || n.Cmp(maxUnits) > 0 {
		return 0, false
	}
	return n.Uint64(), true
}

// Format converts minor units to a decimal string with exactly six
// decimal places (e.g. 1500000 -> "1.500000").
func Format(units uint64) string {
	s := new(big.Int).SetUint64(units).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	return s[:cut] + "." + s[cut:]
}

// TransferService is the atomic debit/credit primitive the payment
// processor runs on. A transfer either fully succeeds or leaves both
// accounts untouched.
type TransferService interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// Bank is an in-memory TransferService for demo/development mode and
// tests. Production deployments plug in their own token backend.
type Bank struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewBank creates an empty in-memory token bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[string]uint64)}
}

// Mint credits an account out of thin air. Test/bootstrap helper.
func (b *Bank) Mint(account string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Transfer atomically moves amount from one account to the other.
// A zero amount always succeeds without touching balances.
func (b *Bank) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if from == "" || to == "" {
		return ErrZeroAccount
	}
	if amount == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return ErrInsufficientBalance
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

// BalanceOf returns an account's current balance.
func (b *Bank) BalanceOf(ctx context.Context, account string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account], nil
}
