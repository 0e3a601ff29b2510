package position

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("position: insufficient balance")

// Ledger is the external position-token capability. Implementations are
// synchronous and never call back into the engine.
type Ledger interface {
	// Mint credits amount of tokenID to account.
	Mint(account uuid.UUID, tokenID, amount *uint256.Int) error

	// Burn debits amount of tokenID from account, failing if the balance
	// does not cover it.
	Burn(account uuid.UUID, tokenID, amount *uint256.Int) error

	// BalanceOf returns account's balance of tokenID.
	BalanceOf(account uuid.UUID, tokenID *uint256.Int) *uint256.Int
}

type balanceKey struct {
	account uuid.UUID
	token   uint256.Int
}

// MemoryLedger is the in-process Ledger used by the default wiring and by
// tests. Safe for concurrent use.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*uint256.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[balanceKey]*uint256.Int)}
}

func (l *MemoryLedger) Mint(account uuid.UUID, tokenID, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{account: account, token: *tokenID}
	bal, ok := l.balances[key]
	if !ok {
		bal = new(uint256.Int)
	}
	next, carry := new(uint256.Int).AddOverflow(bal, amount)
	if carry {
		return fmt.Errorf("position: balance overflow for account %s token %s", account, tokenID.Dec())
	}
	l.balances[key] = next
	return nil
}

func (l *MemoryLedger) Burn(account uuid.UUID, tokenID, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{account: account, token: *tokenID}
	bal, ok := l.balances[key]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: account %s token %s", ErrInsufficientBalance, account, tokenID.Dec())
	}
	bal.Sub(bal, amount)
	if bal.IsZero() {
		delete(l.balances, key)
	}
	return nil
}

func (l *MemoryLedger) BalanceOf(account uuid.UUID, tokenID *uint256.Int) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[balanceKey{account: account, token: *tokenID}]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}
