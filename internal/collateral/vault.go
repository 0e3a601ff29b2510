// Package collateral defines the external collateral-transfer collaborator.
// The engine pulls collateral from buyers and pushes it to sellers and
// claimants; it never inspects account balances beyond these two calls.
package collateral

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var ErrInsufficientFunds = errors.New("collateral: insufficient funds")

// Vault moves the collateral asset between user accounts and the engine.
// Implementations are synchronous and never call back into the engine.
type Vault interface {
	// Withdraw pulls amount from account into the engine's custody.
	Withdraw(account uuid.UUID, amount *uint256.Int) error

	// Deposit pushes amount from the engine's custody to account.
	Deposit(account uuid.UUID, amount *uint256.Int) error
}

// MemoryVault is the in-process Vault used by the default wiring and by
// tests. Accounts are funded out of band via Fund. Safe for concurrent use.
type MemoryVault struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]*uint256.Int
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{balances: make(map[uuid.UUID]*uint256.Int)}
}

// Fund credits an account, standing in for an external deposit.
func (v *MemoryVault) Fund(account uuid.UUID, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.balances[account]
	if !ok {
		bal = new(uint256.Int)
	}
	next, carry := new(uint256.Int).AddOverflow(bal, amount)
	if carry {
		return fmt.Errorf("collateral: balance overflow for account %s", account)
	}
	v.balances[account] = next
	return nil
}

func (v *MemoryVault) Withdraw(account uuid.UUID, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.balances[account]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("%w: account %s", ErrInsufficientFunds, account)
	}
	bal.Sub(bal, amount)
	return nil
}

func (v *MemoryVault) Deposit(account uuid.UUID, amount *uint256.Int) error {
	return v.Fund(account, amount)
}

// Balance returns the account's current balance.
func (v *MemoryVault) Balance(account uuid.UUID) *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if bal, ok := v.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}
