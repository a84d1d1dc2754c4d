// Package distributor provides cashback distributor implementations.
package distributor

import (
	"context"
	"errors"
	"sync"

	"github.com/mbd888/cardledger/internal/cardpayment"
	"github.com/mbd888/cardledger/internal/token"
)

// ErrUnknownNonce is returned when a revoke or increase references a
// grant this distributor never issued.
var ErrUnknownNonce = errors.New("unknown cashback grant nonce")

type grant struct {
	source      string
	recipient   string
	outstanding uint64
}

// Local is an in-process cashback distributor funding grants from its
// own account on the token ledger. When the account cannot cover a full
// grant it fulfills partially, so callers must use the reported amount,
// not the requested one. Clawbacks pay the grant's source account.
type Local struct {
	mu        sync.Mutex
	tokens    token.TransferService
	account   string
	nextNonce uint64
	grants    map[uint64]*grant
}

// NewLocal creates a distributor paying grants from account.
func NewLocal(tokens token.TransferService, account string) *Local {
	return &Local{
		tokens:  tokens,
		account: account,
		grants:  make(map[uint64]*grant),
	}
}

// SendCashback opens a grant, paying the recipient as much of the
// requested amount as the distributor account covers.
func (l *Local) SendCashback(ctx context.Context, req cardpayment.SendRequest) (cardpayment.SendOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, err := l.affordable(ctx, req.Amount)
	if err != nil {
		return cardpayment.SendOutcome{}, err
	}
	if err := l.tokens.Transfer(ctx, l.account, req.Recipient, amount); err != nil {
		return cardpayment.SendOutcome{}, err
	}
	l.nextNonce++
	l.grants[l.nextNonce] = &grant{
		source:      req.Source,
		recipient:   req.Recipient,
		outstanding: amount,
	}
	return cardpayment.SendOutcome{Accepted: true, Amount: amount, Nonce: l.nextNonce}, nil
}

// RevokeCashback claws back amount from the grant, paying the grant's
// source. Rejected when amount exceeds the grant's outstanding balance.
func (l *Local) RevokeCashback(ctx context.Context, nonce, amount uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.grants[nonce]
	if !ok {
		return false, ErrUnknownNonce
	}
	if amount > g.outstanding {
		return false, nil
	}
	if err := l.tokens.Transfer(ctx, l.account, g.source, amount); err != nil {
		return false, err
	}
	g.outstanding -= amount
	return true, nil
}

// IncreaseCashback tops up the grant, again fulfilling partially when
// the distributor account cannot cover the full amount.
func (l *Local) IncreaseCashback(ctx context.Context, nonce, amount uint64) (cardpayment.IncreaseOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.grants[nonce]
	if !ok {
		return cardpayment.IncreaseOutcome{}, ErrUnknownNonce
	}
	granted, err := l.affordable(ctx, amount)
	if err != nil {
		return cardpayment.IncreaseOutcome{}, err
	}
	if err := l.tokens.Transfer(ctx, l.account, g.recipient, granted); err != nil {
		return cardpayment.IncreaseOutcome{}, err
	}
	g.outstanding += granted
	return cardpayment.IncreaseOutcome{Accepted: true, Amount: granted}, nil
}

// Outstanding returns the grant's outstanding balance, for inspection.
func (l *Local) Outstanding(nonce uint64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.grants[nonce]
	if !ok {
		return 0, false
	}
	return g.outstanding, true
}

func (l *Local) affordable(ctx context.Context, amount uint64) (uint64, error) {
	bal, err := l.tokens.BalanceOf(ctx, l.account)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, nil
	}
	return amount, nil
}
