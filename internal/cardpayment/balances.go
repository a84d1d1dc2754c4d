package cardpayment

import (
	"fmt"
	"sync"
)

// Bucket is one of the two aggregate pools an active payment's net
// amount is counted in.
type Bucket uint8

const (
	BucketUncleared Bucket = iota
	BucketCleared
)

func bucketOf(s Status) Bucket {
	if s == StatusCleared {
		return BucketCleared
	}
	return BucketUncleared
}

// Balances is a point-in-time view of one account's (or the ledger's)
// uncleared and cleared pools.
type Balances struct {
	Uncleared uint64 `json:"uncleared"`
	Cleared   uint64 `json:"cleared"`
}

func (b Balances) bucket(bk Bucket) uint64 {
	if bk == BucketCleared {
		return b.Cleared
	}
	return b.Uncleared
}

// Aggregator maintains per-account and ledger-wide running totals of
// active payment net amounts. Mutations follow the single-writer model
// of the processor; reads may come from any goroutine.
type Aggregator struct {
	mu       sync.RWMutex
	accounts map[string]Balances
	totals   Balances
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{accounts: make(map[string]Balances)}
}

// RebuildAggregator recomputes the aggregator from the active payment
// records, used to recover state after a restart with a durable store.
func RebuildAggregator(payments []*Payment) *Aggregator {
	a := NewAggregator()
	for _, p := range payments {
		if !p.Status.Active() {
			continue
		}
		a.Add(p.Account, bucketOf(p.Status), p.Net())
	}
	return a
}

// Add credits amount to the account's bucket and the ledger totals.
func (a *Aggregator) Add(account string, bk Bucket, amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.accounts[account]
	if bk == BucketCleared {
		b.Cleared += amount
		a.totals.Cleared += amount
	} else {
		b.Uncleared += amount
		a.totals.Uncleared += amount
	}
	a.accounts[account] = b
}

// Sub debits amount from the account's bucket and the ledger totals.
// An underflow means a bookkeeping bug elsewhere and panics.
func (a *Aggregator) Sub(account string, bk Bucket, amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.accounts[account]
	if b.bucket(bk) < amount || a.totals.bucket(bk) < amount {
		panic(fmt.Sprintf("cardpayment: balance underflow for account %q bucket %d: %d < %d",
			account, bk, b.bucket(bk), amount))
	}
	if bk == BucketCleared {
		b.Cleared -= amount
		a.totals.Cleared -= amount
	} else {
		b.Uncleared -= amount
		a.totals.Uncleared -= amount
	}
	if b == (Balances{}) {
		delete(a.accounts, account)
		return
	}
	a.accounts[account] = b
}

// Move shifts amount between two buckets of the same account.
func (a *Aggregator) Move(account string, from, to Bucket, amount uint64) {
	if from == to || amount == 0 {
		return
	}
	a.Sub(account, from, amount)
	a.Add(account, to, amount)
}

// Account returns the account's current pools.
func (a *Aggregator) Account(account string) Balances {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accounts[account]
}

// Totals returns the ledger-wide pools.
func (a *Aggregator) Totals() Balances {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totals
}
