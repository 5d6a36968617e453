package memory

import (
	"context"
	"sync"

	"dingleup-reward-service/internal/app"
)

// Balance is a user's coins and lives in the in-memory ledger.
type Balance struct {
	Coins int
	Lives int
}

// Ledger is an in-memory wallet that honours idempotency keys. It stands in
// for the wallet service in development and tests.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]Balance
	applied  map[string]struct{}
	credits  int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]Balance),
		applied:  make(map[string]struct{}),
	}
}

func (l *Ledger) Credit(_ context.Context, req app.CreditRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.applied[req.IdempotencyKey]; done {
		return nil
	}
	l.applied[req.IdempotencyKey] = struct{}{}
	b := l.balances[req.UserID]
	b.Coins += req.Coins
	b.Lives += req.Lives
	l.balances[req.UserID] = b
	l.credits++
	return nil
}

// Balance returns the user's balance.
func (l *Ledger) Balance(userID string) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// Credits counts applied (non-duplicate) credits.
func (l *Ledger) Credits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credits
}
