// Package cardpayment implements the card-payment escrow and settlement
// ledger.
//
// Flow:
//  1. MakePayment debits the payer, escrows the principal and requests
//     cashback from the distributor (status: uncleared)
//  2. Clear/Unclear toggle the payment in and out of the cleared pool
//  3. ConfirmPayment settles cleared principal to the cash-out account
//  4. Revoke/Reverse fully unwind an active payment back to the payer
//  5. RefundPayment returns part of the principal and claws back the
//     matching share of cashback
package cardpayment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Validation errors: rejected before any mutation.
var (
	ErrZeroAuthorizationID       = errors.New("authorization id must not be zero")
	ErrZeroAccount               = errors.New("account must not be zero")
	ErrZeroParentTransactionHash = errors.New("parent transaction hash must not be zero")
	ErrEmptyBatch                = errors.New("batch must not be empty")
	ErrDuplicateAuthorizationID  = errors.New("duplicate authorization id in batch")
)

// State errors.
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists for this authorization id")
	ErrInvalidStatus        = errors.New("invalid payment status for this operation")
)

// Amount errors.
var (
	ErrAmountBelowRefund   = errors.New("new amount is below the cumulative refund amount")
	ErrRefundBelowPrevious = errors.New("refund amount is below the previous refund amount")
	ErrRefundExceedsAmount = errors.New("refund amount exceeds the payment amount")
)

// Configuration errors: rejected at the configuration call.
var (
	ErrDistributorUnset         = errors.New("cashback distributor is not configured")
	ErrDistributorUnchanged     = errors.New("cashback distributor is unchanged")
	ErrCashbackAlreadyEnabled   = errors.New("cashback is already enabled")
	ErrCashbackAlreadyDisabled  = errors.New("cashback is already disabled")
	ErrCashbackRateUnchanged    = errors.New("cashback rate is unchanged")
	ErrCashbackRateTooHigh      = errors.New("cashback rate exceeds 1000 permil")
	ErrZeroCashOutAccount       = errors.New("cash-out account must not be zero")
	ErrCashOutAccountUnset      = errors.New("cash-out account is not configured")
	ErrCashOutAccountUnchanged  = errors.New("cash-out account is unchanged")
)

// Limit errors.
var ErrRevocationLimitReached = errors.New("revocation limit reached for this authorization id")

// statusError wraps ErrInvalidStatus with the offending status.
func statusError(status Status) error {
	return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
}

// AuthID is the caller-supplied 16-byte authorization identifier keying
// one payment attempt.
type AuthID [16]byte

// IsZero reports whether the id is all zero bytes.
func (id AuthID) IsZero() bool { return id == AuthID{} }

// String returns the id as 32 lowercase hex chars.
func (id AuthID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText implements encoding.TextMarshaler for JSON payloads.
func (id AuthID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// ParseAuthID decodes a 32-hex-char authorization id.
func ParseAuthID(s string) (AuthID, error) {
	var id AuthID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid authorization id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid authorization id %q: want %d bytes, got %d", s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Status is the lifecycle state of a payment.
type Status uint8

const (
	StatusNonexistent Status = iota
	StatusUncleared          // Principal escrowed, awaiting clearing
	StatusCleared            // Cleared for confirmation
	StatusRevoked            // Unwound; the authorization id may be reused
	StatusReversed           // Unwound; the authorization id is burned
	StatusConfirmed          // Principal settled to the cash-out account
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNonexistent:
		return "nonexistent"
	case StatusUncleared:
		return "uncleared"
	case StatusCleared:
		return "cleared"
	case StatusRevoked:
		return "revoked"
	case StatusReversed:
		return "reversed"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Active reports whether the payment is still outstanding (escrowed).
func (s Status) Active() bool {
	return s == StatusUncleared || s == StatusCleared
}

// Terminal reports whether the payment reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusRevoked, StatusReversed, StatusConfirmed:
		return true
	}
	return false
}

// Payment is one payment record, keyed by its authorization id.
type Payment struct {
	AuthorizationID AuthID `json:"authorizationId"`
	Account         string `json:"account"`
	Sponsor         string `json:"sponsor,omitempty"` // funding account when sponsor-paid
	Amount          uint64 `json:"amount"`
	RefundAmount    uint64 `json:"refundAmount"` // cumulative, monotonic while active
	Status          Status `json:"status"`
	CorrelationID   string `json:"correlationId,omitempty"`
	ParentTxHash    string `json:"parentTxHash,omitempty"`

	// Revocation bookkeeping. The authoritative counter lives in the
	// store keyed by authorization id; this field mirrors it for reads.
	RevocationCounter uint64 `json:"revocationCounter"`

	// Cashback sub-record.
	CashbackRatePermil  uint64 `json:"cashbackRatePermil"` // snapshot at creation, immutable
	LastCashbackNonce   uint64 `json:"lastCashbackNonce"`
	CompensationAmount  uint64 `json:"compensationAmount"`
	UnrecoveredCashback uint64 `json:"unrecoveredCashback"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Net returns the outstanding principal: amount minus cumulative refunds.
func (p *Payment) Net() uint64 { return p.Amount - p.RefundAmount }

// Cashback returns the cashback owed at the current net amount:
// floor(net * rate / 1000). It is always recomputed, never stored.
func (p *Payment) Cashback() uint64 {
	return CashbackOf(p.Net(), p.CashbackRatePermil)
}

// CashbackOf computes floor(netAmount * ratePermil / 1000) without
// overflowing uint64 for any rate up to 1000.
func CashbackOf(netAmount, ratePermil uint64) uint64 {
	q, r := netAmount/1000, netAmount%1000
	return q*ratePermil + r*ratePermil/1000
}

// funder is the account principal moves in and out of: the sponsor when
// the payment is sponsor-paid, otherwise the payer.
func (p *Payment) funder() string {
	if p.Sponsor != "" {
		return p.Sponsor
	}
	return p.Account
}

// clone returns a copy safe to hand out of the processor lock.
func (p *Payment) clone() *Payment {
	cp := *p
	return &cp
}
