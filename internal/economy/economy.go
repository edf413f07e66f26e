// Package economy defines the external account-service boundary and money
// formatting helpers. The exchange never assumes ledger operations are
// idempotent; callers must not blindly retry a withdraw or deposit.
package economy

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by Withdraw when the account balance is
// below the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is the external account service holding actor balances.
type Ledger interface {
	Balance(ctx context.Context, actorID string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, actorID string, amount decimal.Decimal) error
	Deposit(ctx context.Context, actorID string, amount decimal.Decimal) error
}

// Formatter renders and parses money amounts for actor-facing surfaces.
type Formatter struct {
	Symbol string
	Places int32
}

// Format renders an amount with the currency symbol, e.g. "$1,234.50".
func (f Formatter) Format(amount decimal.Decimal) string {
	s := amount.StringFixed(f.Places)

	// Insert thousands separators into the integer part.
	intPart := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := f.Symbol + b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// Parse reads an amount from actor input, tolerating the currency symbol
// and thousands separators. It returns an error for malformed input.
func (f Formatter) Parse(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, f.Symbol)
	s = strings.ReplaceAll(s, ",", "")
	return decimal.NewFromString(s)
}

// ValidAmount reports whether amount is usable as a listing price.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive()
}
