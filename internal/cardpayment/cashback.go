package cardpayment

import (
	"context"
	"log/slog"

	"github.com/mbd888/cardledger/internal/events"
)

// KindCardPayment tags card-payment cashback grants at the distributor.
const KindCardPayment = "card_payment"

// SendRequest asks the distributor to open a cashback grant.
type SendRequest struct {
	Source      string // account funding the grant
	Kind        string
	ReferenceID string // authorization id, hex
	Recipient   string
	Amount      uint64
}

// SendOutcome is the distributor's answer to a send. Accepted with an
// Amount lower than requested is a valid partial grant.
type SendOutcome struct {
	Accepted bool
	Amount   uint64
	Nonce    uint64 // handle for later revoke/increase
}

// IncreaseOutcome is the distributor's answer to topping up an existing
// grant.
type IncreaseOutcome struct {
	Accepted bool
	Amount   uint64
}

// Distributor is the external cashback program. Errors and rejections
// must never fail the payment operation that triggered the call; the
// engine degrades them to failure events.
type Distributor interface {
	SendCashback(ctx context.Context, req SendRequest) (SendOutcome, error)
	RevokeCashback(ctx context.Context, nonce, amount uint64) (bool, error)
	IncreaseCashback(ctx context.Context, nonce, amount uint64) (IncreaseOutcome, error)
}

// CashbackEngine mediates between the payment lifecycle and the
// distributor. It is driven under the processor lock.
type CashbackEngine struct {
	distributor Distributor
	label       string
	source      string // escrow account grants are funded from
	enabled     func() bool
	emitter     *events.Emitter
	logger      *slog.Logger
}

// NewCashbackEngine creates an engine funding grants from source. The
// enabled callback is consulted fresh before every distributor call.
func NewCashbackEngine(source string, enabled func() bool, emitter *events.Emitter, logger *slog.Logger) *CashbackEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CashbackEngine{
		source:  source,
		enabled: enabled,
		emitter: emitter,
		logger:  logger,
	}
}

// SetDistributor swaps the distributor. A nil distributor makes the
// engine inactive.
func (e *CashbackEngine) SetDistributor(d Distributor, label string) {
	e.distributor = d
	e.label = label
}

// DistributorLabel returns the label of the configured distributor, or
// "" when none is set.
func (e *CashbackEngine) DistributorLabel() string { return e.label }

// active reports whether distributor calls can be made right now.
func (e *CashbackEngine) active() bool {
	return e.distributor != nil && e.enabled()
}

// Send requests a cashback grant for the payment. A zero amount is a
// trivial success without a distributor call. Returns the granted
// amount, the grant nonce and whether the grant was accepted.
func (e *CashbackEngine) Send(ctx context.Context, p *Payment, amount uint64) (granted, nonce uint64, ok bool) {
	if amount == 0 {
		return 0, 0, true
	}
	if !e.active() {
		return 0, 0, false
	}
	out, err := e.distributor.SendCashback(ctx, SendRequest{
		Source:      e.source,
		Kind:        KindCardPayment,
		ReferenceID: p.AuthorizationID.String(),
		Recipient:   p.Account,
		Amount:      amount,
	})
	if err != nil || !out.Accepted {
		cashbackRequestsTotal.WithLabelValues("send", "failure").Inc()
		e.logger.Warn("cashback send failed",
			"authorization_id", p.AuthorizationID.String(),
			"amount", amount,
			"error", err)
		e.emitter.Emit(events.TypeSendCashbackFailure, e.eventData(p, amount, 0))
		return 0, 0, false
	}
	granted = out.Amount
	if granted > amount {
		granted = amount
	}
	cashbackRequestsTotal.WithLabelValues("send", "success").Inc()
	e.emitter.Emit(events.TypeSendCashbackSuccess, e.eventData(p, amount, granted))
	return granted, out.Nonce, true
}

// Revoke asks the distributor to claw back amount from the payment's
// grant. When the call cannot be made or fails, the shortfall is added
// to the payment's unrecovered cashback and ok is false.
func (e *CashbackEngine) Revoke(ctx context.Context, p *Payment, amount uint64) (revoked uint64, ok bool) {
	if amount == 0 {
		return 0, true
	}
	if !e.active() || p.LastCashbackNonce == 0 {
		p.UnrecoveredCashback += amount
		unrecoveredCashbackTotal.Add(float64(amount))
		return 0, false
	}
	accepted, err := e.distributor.RevokeCashback(ctx, p.LastCashbackNonce, amount)
	if err != nil || !accepted {
		cashbackRequestsTotal.WithLabelValues("revoke", "failure").Inc()
		unrecoveredCashbackTotal.Add(float64(amount))
		p.UnrecoveredCashback += amount
		e.logger.Warn("cashback revoke failed",
			"authorization_id", p.AuthorizationID.String(),
			"nonce", p.LastCashbackNonce,
			"amount", amount,
			"error", err)
		e.emitter.Emit(events.TypeRevokeCashbackFailure, e.eventData(p, amount, 0))
		return 0, false
	}
	cashbackRequestsTotal.WithLabelValues("revoke", "success").Inc()
	e.emitter.Emit(events.TypeRevokeCashbackSuccess, e.eventData(p, amount, amount))
	return amount, true
}

// Increase asks the distributor to top up the payment's grant by
// amount. Failure degrades to a failure event; the caller proceeds
// without added compensation.
func (e *CashbackEngine) Increase(ctx context.Context, p *Payment, amount uint64) (granted uint64, ok bool) {
	if amount == 0 {
		return 0, true
	}
	if !e.active() || p.LastCashbackNonce == 0 {
		return 0, false
	}
	out, err := e.distributor.IncreaseCashback(ctx, p.LastCashbackNonce, amount)
	if err != nil || !out.Accepted {
		cashbackRequestsTotal.WithLabelValues("increase", "failure").Inc()
		e.logger.Warn("cashback increase failed",
			"authorization_id", p.AuthorizationID.String(),
			"nonce", p.LastCashbackNonce,
			"amount", amount,
			"error", err)
		e.emitter.Emit(events.TypeIncreaseCashbackFailure, e.eventData(p, amount, 0))
		return 0, false
	}
	granted = out.Amount
	if granted > amount {
		granted = amount
	}
	cashbackRequestsTotal.WithLabelValues("increase", "success").Inc()
	e.emitter.Emit(events.TypeIncreaseCashbackSuccess, e.eventData(p, amount, granted))
	return granted, true
}

func (e *CashbackEngine) eventData(p *Payment, requested, actual uint64) map[string]any {
	return map[string]any{
		"authorizationId": p.AuthorizationID.String(),
		"account":         p.Account,
		"requested":       requested,
		"actual":          actual,
		"nonce":           p.LastCashbackNonce,
	}
}
