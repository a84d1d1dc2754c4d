// Package events defines the lifecycle event stream of the payment ledger.
//
// Every state-changing operation emits exactly one event per logical
// cause; configuration events fire only when the value actually changed.
package events

import "time"

// Type identifies a lifecycle event.
type Type string

const (
	// Payment lifecycle events.
	TypePaymentMade      Type = "payment.made"
	TypePaymentCleared   Type = "payment.cleared"
	TypePaymentUncleared Type = "payment.uncleared"
	TypePaymentRevoked   Type = "payment.revoked"
	TypePaymentReversed  Type = "payment.reversed"
	TypePaymentConfirmed Type = "payment.confirmed"
	TypePaymentRefunded  Type = "payment.refunded"
	TypeAmountUpdated    Type = "payment.amount_updated"

	// Cashback accounting events.
	TypeSendCashbackSuccess     Type = "cashback.send.success"
	TypeSendCashbackFailure     Type = "cashback.send.failure"
	TypeRevokeCashbackSuccess   Type = "cashback.revoke.success"
	TypeRevokeCashbackFailure   Type = "cashback.revoke.failure"
	TypeIncreaseCashbackSuccess Type = "cashback.increase.success"
	TypeIncreaseCashbackFailure Type = "cashback.increase.failure"

	// Configuration events, fired only on actual change.
	TypeCashbackEnabled        Type = "config.cashback_enabled"
	TypeCashbackDisabled       Type = "config.cashback_disabled"
	TypeCashbackDistributorSet Type = "config.cashback_distributor_set"
	TypeCashbackRateSet        Type = "config.cashback_rate_set"
	TypeCashOutAccountSet      Type = "config.cashout_account_set"
	TypeRevocationLimitSet     Type = "config.revocation_limit_set"
)

// Event is a single emitted lifecycle event. Data carries enough fields
// to reconstruct the state produced by the operation.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sink receives emitted events. Implementations must not block for long;
// the emitter calls them synchronously.
type Sink interface {
	Publish(event *Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event *Event)

// Publish implements Sink.
func (f SinkFunc) Publish(event *Event) { f(event) }
