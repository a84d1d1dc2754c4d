package cardpayment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/cardledger/internal/events"
	"github.com/mbd888/cardledger/internal/token"
)

// Guard gates operations before any validation or mutation. A nil guard
// allows everything.
type Guard interface {
	Check(ctx context.Context, operation string) error
}

// ProcessorConfig is the initial ledger configuration. Everything except
// the escrow account can be changed later through the config operations.
type ProcessorConfig struct {
	EscrowAccount      string
	CashOutAccount     string
	CashbackEnabled    bool
	CashbackRatePermil uint64
	RevocationLimit    uint64
}

// Processor drives the payment lifecycle. All operations, reads
// included, serialize on a single mutex; the store, aggregator and
// cashback engine are only ever touched under it.
type Processor struct {
	mu sync.Mutex

	store    Store
	tokens   token.TransferService
	balances *Aggregator
	tracker  *RevocationTracker
	engine   *CashbackEngine
	guard    Guard
	emitter  *events.Emitter
	logger   *slog.Logger

	escrowAccount      string
	cashOutAccount     string
	cashbackEnabled    bool
	cashbackRatePermil uint64
}

// NewProcessor creates a processor over the store and token service.
// The aggregator starts from the store's active payments so a restart
// with a durable store resumes with correct pools.
func NewProcessor(cfg ProcessorConfig, store Store, tokens token.TransferService, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EscrowAccount == "" {
		return nil, fmt.Errorf("processor: %w", ErrZeroAccount)
	}
	if cfg.CashbackRatePermil > 1000 {
		return nil, ErrCashbackRateTooHigh
	}
	active, err := store.ListActivePayments(context.Background())
	if err != nil {
		return nil, fmt.Errorf("rebuild balances: %w", err)
	}
	p := &Processor{
		store:              store,
		tokens:             tokens,
		balances:           RebuildAggregator(active),
		tracker:            NewRevocationTracker(store, cfg.RevocationLimit),
		logger:             logger,
		escrowAccount:      cfg.EscrowAccount,
		cashOutAccount:     cfg.CashOutAccount,
		cashbackEnabled:    cfg.CashbackEnabled,
		cashbackRatePermil: cfg.CashbackRatePermil,
	}
	p.engine = NewCashbackEngine(cfg.EscrowAccount, func() bool { return p.cashbackEnabled }, nil, logger)
	p.observeBalances()
	return p, nil
}

// WithEmitter attaches the event emitter.
func (p *Processor) WithEmitter(em *events.Emitter) *Processor {
	p.emitter = em
	p.engine.emitter = em
	return p
}

// WithGuard attaches the operation guard.
func (p *Processor) WithGuard(g Guard) *Processor {
	p.guard = g
	return p
}

// WithDistributor attaches the initial cashback distributor.
func (p *Processor) WithDistributor(d Distributor, label string) *Processor {
	p.engine.SetDistributor(d, label)
	return p
}

func (p *Processor) check(ctx context.Context, operation string) error {
	if p.guard == nil {
		return nil
	}
	return p.guard.Check(ctx, operation)
}

// cashbackActive reports whether new payments should snapshot a nonzero
// cashback rate.
func (p *Processor) cashbackActive() bool {
	return p.cashbackEnabled && p.engine.distributor != nil
}

func (p *Processor) observeBalances() {
	t := p.balances.Totals()
	escrowedBalance.WithLabelValues("uncleared").Set(float64(t.Uncleared))
	escrowedBalance.WithLabelValues("cleared").Set(float64(t.Cleared))
}

// ---------------------------------------------------------------------
// Payment creation
// ---------------------------------------------------------------------

// MakePayment escrows amount from the payer under the authorization id
// and requests cashback at the current rate.
func (p *Processor) MakePayment(ctx context.Context, id AuthID, account string, amount uint64, correlationID string) (pay *Payment, err error) {
	defer func() { observeOperation("make_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "make_payment"); err != nil {
		return nil, err
	}
	return p.makePayment(ctx, id, account, "", amount, correlationID)
}

// MakePaymentFrom is MakePayment with a sponsor funding the escrow. The
// cashback still goes to the payer account.
func (p *Processor) MakePaymentFrom(ctx context.Context, id AuthID, account, sponsor string, amount uint64, correlationID string) (pay *Payment, err error) {
	defer func() { observeOperation("make_payment_from", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "make_payment_from"); err != nil {
		return nil, err
	}
	if sponsor == "" {
		return nil, fmt.Errorf("sponsor: %w", ErrZeroAccount)
	}
	return p.makePayment(ctx, id, account, sponsor, amount, correlationID)
}

func (p *Processor) makePayment(ctx context.Context, id AuthID, account, sponsor string, amount uint64, correlationID string) (*Payment, error) {
	if id.IsZero() {
		return nil, ErrZeroAuthorizationID
	}
	if account == "" {
		return nil, ErrZeroAccount
	}
	existing, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != StatusRevoked {
		return nil, fmt.Errorf("%w (status %s)", ErrPaymentAlreadyExists, existing.Status)
	}
	count, err := p.tracker.CheckAdmission(ctx, id)
	if err != nil {
		return nil, err
	}

	funder := account
	if sponsor != "" {
		funder = sponsor
	}
	if err := p.tokens.Transfer(ctx, funder, p.escrowAccount, amount); err != nil {
		return nil, fmt.Errorf("fund payment: %w", err)
	}

	var rate uint64
	if p.cashbackActive() {
		rate = p.cashbackRatePermil
	}
	now := time.Now().UTC()
	pay := &Payment{
		AuthorizationID:    id,
		Account:            account,
		Sponsor:            sponsor,
		Amount:             amount,
		Status:             StatusUncleared,
		CorrelationID:      correlationID,
		RevocationCounter:  count,
		CashbackRatePermil: rate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	granted, nonce, ok := p.engine.Send(ctx, pay, CashbackOf(amount, rate))
	if ok {
		pay.LastCashbackNonce = nonce
		pay.CompensationAmount = granted
	}

	if err := p.store.SavePayment(ctx, pay); err != nil {
		// Best effort: return the escrowed principal before failing.
		if rerr := p.tokens.Transfer(ctx, p.escrowAccount, funder, amount); rerr != nil {
			p.logger.Error("CRITICAL: failed to return escrow after save failure",
				"authorization_id", id.String(), "amount", amount, "error", rerr)
		}
		return nil, fmt.Errorf("save payment: %w", err)
	}
	p.balances.Add(account, BucketUncleared, amount)
	p.observeBalances()
	p.emit(events.TypePaymentMade, pay, nil)
	return pay.clone(), nil
}

// ---------------------------------------------------------------------
// Clearing
// ---------------------------------------------------------------------

// ClearPayment moves an uncleared payment into the cleared pool.
func (p *Processor) ClearPayment(ctx context.Context, id AuthID) (err error) {
	defer func() { observeOperation("clear_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "clear_payment"); err != nil {
		return err
	}
	return p.toggle(ctx, id, StatusUncleared, StatusCleared)
}

// UnclearPayment moves a cleared payment back into the uncleared pool.
func (p *Processor) UnclearPayment(ctx context.Context, id AuthID) (err error) {
	defer func() { observeOperation("unclear_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "unclear_payment"); err != nil {
		return err
	}
	return p.toggle(ctx, id, StatusCleared, StatusUncleared)
}

// ClearPayments clears a batch atomically: every id is validated before
// any payment changes state.
func (p *Processor) ClearPayments(ctx context.Context, ids []AuthID) (err error) {
	defer func() { observeOperation("clear_payments", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "clear_payments"); err != nil {
		return err
	}
	return p.toggleBatch(ctx, ids, StatusUncleared, StatusCleared)
}

// UnclearPayments unclears a batch atomically.
func (p *Processor) UnclearPayments(ctx context.Context, ids []AuthID) (err error) {
	defer func() { observeOperation("unclear_payments", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "unclear_payments"); err != nil {
		return err
	}
	return p.toggleBatch(ctx, ids, StatusCleared, StatusUncleared)
}

func (p *Processor) validateToggle(ctx context.Context, id AuthID, from Status) (*Payment, error) {
	if id.IsZero() {
		return nil, ErrZeroAuthorizationID
	}
	pay, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, ErrPaymentNotFound
	}
	if pay.Status != from {
		return nil, statusError(pay.Status)
	}
	return pay, nil
}

func (p *Processor) toggle(ctx context.Context, id AuthID, from, to Status) error {
	pay, err := p.validateToggle(ctx, id, from)
	if err != nil {
		return err
	}
	pay.Status = to
	pay.UpdatedAt = time.Now().UTC()
	if err := p.store.SavePayment(ctx, pay); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	p.balances.Move(pay.Account, bucketOf(from), bucketOf(to), pay.Net())
	p.observeBalances()
	if to == StatusCleared {
		p.emit(events.TypePaymentCleared, pay, nil)
	} else {
		p.emit(events.TypePaymentUncleared, pay, nil)
	}
	return nil
}

func (p *Processor) toggleBatch(ctx context.Context, ids []AuthID, from, to Status) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[AuthID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAuthorizationID, id)
		}
		seen[id] = struct{}{}
		if _, err := p.validateToggle(ctx, id, from); err != nil {
			return fmt.Errorf("payment %s: %w", id, err)
		}
	}
	for _, id := range ids {
		if err := p.toggle(ctx, id, from, to); err != nil {
			return fmt.Errorf("payment %s: %w", id, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Amount updates and refunds
// ---------------------------------------------------------------------

// UpdatePaymentAmount changes the principal of an active payment,
// escrowing or returning the difference and adjusting cashback to match
// the new net amount. Setting the current amount is a no-op. An optional
// correlationID tags the emitted event for reconciliation.
func (p *Processor) UpdatePaymentAmount(ctx context.Context, id AuthID, newAmount uint64, correlationID string) (err error) {
	defer func() { observeOperation("update_payment_amount", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "update_payment_amount"); err != nil {
		return err
	}
	if id.IsZero() {
		return ErrZeroAuthorizationID
	}
	pay, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if pay == nil {
		return ErrPaymentNotFound
	}
	if !pay.Status.Active() {
		return statusError(pay.Status)
	}
	if newAmount == pay.Amount {
		return nil
	}
	if newAmount < pay.RefundAmount {
		return ErrAmountBelowRefund
	}

	oldAmount := pay.Amount
	oldCashback := pay.Cashback()
	newCashback := CashbackOf(newAmount-pay.RefundAmount, pay.CashbackRatePermil)
	bucket := bucketOf(pay.Status)

	if newAmount > oldAmount {
		diff := newAmount - oldAmount
		if err := p.tokens.Transfer(ctx, pay.funder(), p.escrowAccount, diff); err != nil {
			return fmt.Errorf("fund amount increase: %w", err)
		}
		if granted, ok := p.engine.Increase(ctx, pay, newCashback-oldCashback); ok {
			pay.CompensationAmount += granted
		}
		pay.Amount = newAmount
		pay.UpdatedAt = time.Now().UTC()
		if err := p.store.SavePayment(ctx, pay); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		p.balances.Add(pay.Account, bucket, diff)
	} else {
		diff := oldAmount - newAmount
		clawback := oldCashback - newCashback
		revoked, _ := p.engine.Revoke(ctx, pay, clawback)
		realized := pay.CompensationAmount - pay.RefundAmount
		if clawback < realized {
			pay.CompensationAmount -= clawback
		} else {
			pay.CompensationAmount -= realized
		}
		if err := p.tokens.Transfer(ctx, p.escrowAccount, pay.funder(), diff-revoked); err != nil {
			return fmt.Errorf("return amount decrease: %w", err)
		}
		pay.Amount = newAmount
		pay.UpdatedAt = time.Now().UTC()
		if err := p.store.SavePayment(ctx, pay); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		p.balances.Sub(pay.Account, bucket, diff)
	}
	p.observeBalances()
	extra := map[string]any{
		"oldAmount": oldAmount,
		"newAmount": newAmount,
	}
	if correlationID != "" {
		extra["correlationId"] = correlationID
	}
	p.emit(events.TypeAmountUpdated, pay, extra)
	return nil
}

// RefundPayment raises the cumulative refund of an active or confirmed
// payment to refundAmount, returning the difference to the funder net of
// the matching cashback clawback. Confirmed refunds pay from the
// cash-out account. Re-submitting the current cumulative amount is a
// no-op. An optional correlationID tags the emitted event.
func (p *Processor) RefundPayment(ctx context.Context, id AuthID, refundAmount uint64, correlationID string) (err error) {
	defer func() { observeOperation("refund_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "refund_payment"); err != nil {
		return err
	}
	if id.IsZero() {
		return ErrZeroAuthorizationID
	}
	pay, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if pay == nil {
		return ErrPaymentNotFound
	}
	if !pay.Status.Active() && pay.Status != StatusConfirmed {
		return statusError(pay.Status)
	}
	if refundAmount == pay.RefundAmount {
		return nil
	}
	if refundAmount < pay.RefundAmount {
		return ErrRefundBelowPrevious
	}
	if refundAmount > pay.Amount {
		return ErrRefundExceedsAmount
	}
	source := p.escrowAccount
	if pay.Status == StatusConfirmed {
		if p.cashOutAccount == "" {
			return ErrCashOutAccountUnset
		}
		source = p.cashOutAccount
	}

	delta := refundAmount - pay.RefundAmount
	clawback := pay.Cashback() - CashbackOf(pay.Amount-refundAmount, pay.CashbackRatePermil)
	revoked, _ := p.engine.Revoke(ctx, pay, clawback)
	realized := pay.CompensationAmount - pay.RefundAmount
	if clawback > realized {
		clawback = realized
	}
	pay.CompensationAmount = pay.CompensationAmount - clawback + delta

	if err := p.tokens.Transfer(ctx, source, pay.funder(), delta-revoked); err != nil {
		return fmt.Errorf("pay refund: %w", err)
	}
	if pay.Status.Active() {
		p.balances.Sub(pay.Account, bucketOf(pay.Status), delta)
	}
	pay.RefundAmount = refundAmount
	pay.UpdatedAt = time.Now().UTC()
	if err := p.store.SavePayment(ctx, pay); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	p.observeBalances()
	extra := map[string]any{
		"refundDelta":     delta,
		"cashbackRevoked": revoked,
	}
	if correlationID != "" {
		extra["correlationId"] = correlationID
	}
	p.emit(events.TypePaymentRefunded, pay, extra)
	return nil
}

// ---------------------------------------------------------------------
// Unwinding
// ---------------------------------------------------------------------

// RevokePayment fully unwinds an active payment, counting against the
// id's revocation limit. The id may be reused afterwards. parentTxHash
// is permanently marked revoked. An optional correlationID tags the
// emitted event.
func (p *Processor) RevokePayment(ctx context.Context, id AuthID, parentTxHash, correlationID string) (err error) {
	defer func() { observeOperation("revoke_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "revoke_payment"); err != nil {
		return err
	}
	return p.unwind(ctx, id, parentTxHash, correlationID, false)
}

// ReversePayment fully unwinds an active payment without touching the
// revocation counter. The id is burned: it can never be reused.
// parentTxHash is permanently marked reversed. An optional correlationID
// tags the emitted event.
func (p *Processor) ReversePayment(ctx context.Context, id AuthID, parentTxHash, correlationID string) (err error) {
	defer func() { observeOperation("reverse_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "reverse_payment"); err != nil {
		return err
	}
	return p.unwind(ctx, id, parentTxHash, correlationID, true)
}

func (p *Processor) unwind(ctx context.Context, id AuthID, parentTxHash, correlationID string, reverse bool) error {
	if id.IsZero() {
		return ErrZeroAuthorizationID
	}
	if parentTxHash == "" {
		return ErrZeroParentTransactionHash
	}
	pay, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if pay == nil {
		return ErrPaymentNotFound
	}
	if !pay.Status.Active() {
		return statusError(pay.Status)
	}
	if !reverse {
		if _, err := p.tracker.Record(ctx, id); err != nil {
			return err
		}
	}

	// Outstanding grant at the distributor: compensation net of refunds.
	realized := pay.CompensationAmount - pay.RefundAmount
	p.engine.Revoke(ctx, pay, realized)

	payout := pay.Amount - pay.CompensationAmount
	if err := p.tokens.Transfer(ctx, p.escrowAccount, pay.funder(), payout); err != nil {
		return fmt.Errorf("return escrow: %w", err)
	}

	bucket := bucketOf(pay.Status)
	net := pay.Net()
	if reverse {
		if err := p.store.MarkReversed(ctx, parentTxHash); err != nil {
			return fmt.Errorf("mark reversed: %w", err)
		}
		pay.Status = StatusReversed
	} else {
		if err := p.store.MarkRevoked(ctx, parentTxHash); err != nil {
			return fmt.Errorf("mark revoked: %w", err)
		}
		pay.Status = StatusRevoked
		pay.RevocationCounter++
	}
	pay.ParentTxHash = parentTxHash
	pay.CompensationAmount = 0
	pay.UpdatedAt = time.Now().UTC()
	if err := p.store.SavePayment(ctx, pay); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	p.balances.Sub(pay.Account, bucket, net)
	p.observeBalances()
	extra := map[string]any{"payout": payout}
	if correlationID != "" {
		extra["correlationId"] = correlationID
	}
	if reverse {
		p.emit(events.TypePaymentReversed, pay, extra)
	} else {
		p.emit(events.TypePaymentRevoked, pay, extra)
	}
	return nil
}

// ---------------------------------------------------------------------
// Confirmation
// ---------------------------------------------------------------------

// ConfirmPayment settles a cleared payment's net amount to the cash-out
// account.
func (p *Processor) ConfirmPayment(ctx context.Context, id AuthID) (err error) {
	defer func() { observeOperation("confirm_payment", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "confirm_payment"); err != nil {
		return err
	}
	return p.confirm(ctx, id)
}

// ConfirmPayments confirms a batch atomically: every id is validated
// before any payment settles.
func (p *Processor) ConfirmPayments(ctx context.Context, ids []AuthID) (err error) {
	defer func() { observeOperation("confirm_payments", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "confirm_payments"); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[AuthID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAuthorizationID, id)
		}
		seen[id] = struct{}{}
		if _, err := p.validateConfirm(ctx, id); err != nil {
			return fmt.Errorf("payment %s: %w", id, err)
		}
	}
	for _, id := range ids {
		if err := p.confirm(ctx, id); err != nil {
			return fmt.Errorf("payment %s: %w", id, err)
		}
	}
	return nil
}

func (p *Processor) validateConfirm(ctx context.Context, id AuthID) (*Payment, error) {
	if p.cashOutAccount == "" {
		return nil, ErrCashOutAccountUnset
	}
	return p.validateToggle(ctx, id, StatusCleared)
}

func (p *Processor) confirm(ctx context.Context, id AuthID) error {
	pay, err := p.validateConfirm(ctx, id)
	if err != nil {
		return err
	}
	net := pay.Net()
	if err := p.tokens.Transfer(ctx, p.escrowAccount, p.cashOutAccount, net); err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}
	pay.Status = StatusConfirmed
	pay.UpdatedAt = time.Now().UTC()
	if err := p.store.SavePayment(ctx, pay); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	p.balances.Sub(pay.Account, BucketCleared, net)
	p.observeBalances()
	p.emit(events.TypePaymentConfirmed, pay, map[string]any{"settled": net})
	return nil
}

// ---------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------

// SetCashbackRate sets the rate (in permil) snapshotted by new payments.
// Existing payments keep their snapshot.
func (p *Processor) SetCashbackRate(ctx context.Context, ratePermil uint64) (err error) {
	defer func() { observeOperation("set_cashback_rate", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "set_cashback_rate"); err != nil {
		return err
	}
	if ratePermil > 1000 {
		return ErrCashbackRateTooHigh
	}
	if ratePermil == p.cashbackRatePermil {
		return ErrCashbackRateUnchanged
	}
	old := p.cashbackRatePermil
	p.cashbackRatePermil = ratePermil
	p.emitter.Emit(events.TypeCashbackRateSet, map[string]any{
		"oldRatePermil": old,
		"newRatePermil": ratePermil,
	})
	return nil
}

// EnableCashback turns cashback on. Requires a configured distributor.
func (p *Processor) EnableCashback(ctx context.Context) (err error) {
	defer func() { observeOperation("enable_cashback", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "enable_cashback"); err != nil {
		return err
	}
	if p.engine.distributor == nil {
		return ErrDistributorUnset
	}
	if p.cashbackEnabled {
		return ErrCashbackAlreadyEnabled
	}
	p.cashbackEnabled = true
	p.emitter.Emit(events.TypeCashbackEnabled, map[string]any{
		"distributor": p.engine.DistributorLabel(),
	})
	return nil
}

// DisableCashback turns cashback off for new payments and clawbacks.
func (p *Processor) DisableCashback(ctx context.Context) (err error) {
	defer func() { observeOperation("disable_cashback", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "disable_cashback"); err != nil {
		return err
	}
	if !p.cashbackEnabled {
		return ErrCashbackAlreadyDisabled
	}
	p.cashbackEnabled = false
	p.emitter.Emit(events.TypeCashbackDisabled, nil)
	return nil
}

// SetCashbackDistributor replaces the distributor. Setting the same
// label again is rejected.
func (p *Processor) SetCashbackDistributor(ctx context.Context, d Distributor, label string) (err error) {
	defer func() { observeOperation("set_cashback_distributor", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "set_cashback_distributor"); err != nil {
		return err
	}
	if d == nil || label == "" {
		return ErrDistributorUnset
	}
	if label == p.engine.DistributorLabel() {
		return ErrDistributorUnchanged
	}
	old := p.engine.DistributorLabel()
	p.engine.SetDistributor(d, label)
	p.emitter.Emit(events.TypeCashbackDistributorSet, map[string]any{
		"oldDistributor": old,
		"newDistributor": label,
	})
	return nil
}

// SetCashOutAccount replaces the settlement destination of confirmed
// payments.
func (p *Processor) SetCashOutAccount(ctx context.Context, account string) (err error) {
	defer func() { observeOperation("set_cashout_account", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "set_cashout_account"); err != nil {
		return err
	}
	if account == "" {
		return ErrZeroCashOutAccount
	}
	if account == p.cashOutAccount {
		return ErrCashOutAccountUnchanged
	}
	old := p.cashOutAccount
	p.cashOutAccount = account
	p.emitter.Emit(events.TypeCashOutAccountSet, map[string]any{
		"oldAccount": old,
		"newAccount": account,
	})
	return nil
}

// SetRevocationLimit replaces the per-id revocation limit. Zero means
// unlimited. Setting the current value is a silent no-op.
func (p *Processor) SetRevocationLimit(ctx context.Context, limit uint64) (err error) {
	defer func() { observeOperation("set_revocation_limit", err) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.check(ctx, "set_revocation_limit"); err != nil {
		return err
	}
	if limit == p.tracker.Limit() {
		return nil
	}
	old := p.tracker.Limit()
	p.tracker.SetLimit(limit)
	p.emitter.Emit(events.TypeRevocationLimitSet, map[string]any{
		"oldLimit": old,
		"newLimit": limit,
	})
	return nil
}

// ---------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------

// GetPayment returns the payment record for the id. A missing record is
// returned as a nonexistent-status record with all numeric fields zero.
func (p *Processor) GetPayment(ctx context.Context, id AuthID) (*Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, err := p.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return &Payment{AuthorizationID: id, Status: StatusNonexistent}, nil
	}
	return pay, nil
}

// AccountBalances returns the account's uncleared and cleared pools.
func (p *Processor) AccountBalances(account string) Balances {
	return p.balances.Account(account)
}

// TotalBalances returns the ledger-wide pools.
func (p *Processor) TotalBalances() Balances {
	return p.balances.Totals()
}

// RevocationCount returns the number of revocations recorded for the id.
func (p *Processor) RevocationCount(ctx context.Context, id AuthID) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.Count(ctx, id)
}

// IsTransactionRevoked reports whether the parent transaction hash was
// marked by a revocation.
func (p *Processor) IsTransactionRevoked(ctx context.Context, txHash string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.IsRevoked(ctx, txHash)
}

// IsTransactionReversed reports whether the parent transaction hash was
// marked by a reversal.
func (p *Processor) IsTransactionReversed(ctx context.Context, txHash string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.IsReversed(ctx, txHash)
}

// ConfigView is a read snapshot of the ledger configuration.
type ConfigView struct {
	EscrowAccount      string `json:"escrowAccount"`
	CashOutAccount     string `json:"cashOutAccount"`
	CashbackEnabled    bool   `json:"cashbackEnabled"`
	CashbackRatePermil uint64 `json:"cashbackRatePermil"`
	Distributor        string `json:"distributor,omitempty"`
	RevocationLimit    uint64 `json:"revocationLimit"`
}

// Config returns the current configuration.
func (p *Processor) Config() ConfigView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ConfigView{
		EscrowAccount:      p.escrowAccount,
		CashOutAccount:     p.cashOutAccount,
		CashbackEnabled:    p.cashbackEnabled,
		CashbackRatePermil: p.cashbackRatePermil,
		Distributor:        p.engine.DistributorLabel(),
		RevocationLimit:    p.tracker.Limit(),
	}
}

func (p *Processor) emit(eventType events.Type, pay *Payment, extra map[string]any) {
	data := map[string]any{
		"authorizationId":     pay.AuthorizationID.String(),
		"account":             pay.Account,
		"amount":              pay.Amount,
		"refundAmount":        pay.RefundAmount,
		"status":              pay.Status.String(),
		"cashbackRatePermil":  pay.CashbackRatePermil,
		"compensationAmount":  pay.CompensationAmount,
		"unrecoveredCashback": pay.UnrecoveredCashback,
		"revocationCounter":   pay.RevocationCounter,
	}
	if pay.Sponsor != "" {
		data["sponsor"] = pay.Sponsor
	}
	if pay.CorrelationID != "" {
		data["correlationId"] = pay.CorrelationID
	}
	if pay.ParentTxHash != "" {
		data["parentTxHash"] = pay.ParentTxHash
	}
	for k, v := range extra {
		data[k] = v
	}
	p.emitter.Emit(eventType, data)
}
