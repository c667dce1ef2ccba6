package cache

import (
	"time"

	"fintrack/internal/core"
)

// AccountView is the cached dashboard payload for one account: the account
// row plus its transactions, newest first.
type AccountView struct {
	Account      core.Account
	Transactions []core.Transaction
	LoadedAt     time.Time
}

// Views caches dashboard reads per account. Every mutation that touches an
// account's balance must call Invalidate for that account; the lifecycle
// manager does this as its last step after commit.
type Views struct {
	lru *LRUCache[AccountView]
}

func NewViews(maxAccounts int, ttl time.Duration) *Views {
	return &Views{lru: NewLRUCache[AccountView](maxAccounts, ttl)}
}

func (v *Views) Get(accountID string) (AccountView, bool) {
	return v.lru.Get(accountID)
}

func (v *Views) Put(accountID string, view AccountView) {
	v.lru.Set(accountID, view)
}

// Invalidate drops the cached view for an account.
func (v *Views) Invalidate(accountID string) {
	v.lru.Delete(accountID)
}

func (v *Views) Size() int {
	return v.lru.Size()
}
