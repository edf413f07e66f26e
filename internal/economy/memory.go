package economy

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger is an in-process Ledger used for local runs and tests.
// It is safe for concurrent use.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal

	// FailWithdraw and FailDeposit force the next matching call to fail,
	// for exercising partial-failure paths in tests.
	FailWithdraw bool
	FailDeposit  bool
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]decimal.Decimal)}
}

// SetBalance assigns an actor's balance directly.
func (l *MemoryLedger) SetBalance(actorID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[actorID] = amount
}

// Balance returns the actor's balance; unknown actors hold zero.
func (l *MemoryLedger) Balance(_ context.Context, actorID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[actorID], nil
}

// Withdraw debits the actor, failing on insufficient funds.
func (l *MemoryLedger) Withdraw(_ context.Context, actorID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWithdraw {
		return fmt.Errorf("ledger unavailable")
	}
	bal := l.balances[actorID]
	if bal.LessThan(amount) {
		return ErrInsufficientFunds
	}
	l.balances[actorID] = bal.Sub(amount)
	return nil
}

// Deposit credits the actor.
func (l *MemoryLedger) Deposit(_ context.Context, actorID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailDeposit {
		return fmt.Errorf("ledger unavailable")
	}
	l.balances[actorID] = l.balances[actorID].Add(amount)
	return nil
}
