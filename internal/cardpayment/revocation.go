package cardpayment

import "context"

// RevocationTracker enforces the per-authorization-id revocation limit.
// Counters live in the store and survive the payment records they belong
// to: revoking and recreating a payment under the same id resumes the
// old count. A limit of zero means unlimited.
type RevocationTracker struct {
	store Store
	limit uint64
}

// NewRevocationTracker creates a tracker over the store.
func NewRevocationTracker(store Store, limit uint64) *RevocationTracker {
	return &RevocationTracker{store: store, limit: limit}
}

// Limit returns the current limit.
func (t *RevocationTracker) Limit() uint64 { return t.limit }

// SetLimit replaces the limit. Existing counters are unaffected; ids at
// or above a lowered limit simply stop admitting new payments.
func (t *RevocationTracker) SetLimit(limit uint64) { t.limit = limit }

// Count returns the number of revocations recorded for the id.
func (t *RevocationTracker) Count(ctx context.Context, id AuthID) (uint64, error) {
	return t.store.RevocationCount(ctx, id)
}

// CheckAdmission rejects creating a payment under an id whose counter
// already reached the limit.
func (t *RevocationTracker) CheckAdmission(ctx context.Context, id AuthID) (uint64, error) {
	count, err := t.store.RevocationCount(ctx, id)
	if err != nil {
		return 0, err
	}
	if t.limit > 0 && count >= t.limit {
		return count, ErrRevocationLimitReached
	}
	return count, nil
}

// Record increments the id's counter, rejecting the revocation when it
// would exceed the limit. Returns the new count.
func (t *RevocationTracker) Record(ctx context.Context, id AuthID) (uint64, error) {
	count, err := t.store.RevocationCount(ctx, id)
	if err != nil {
		return 0, err
	}
	if t.limit > 0 && count+1 > t.limit {
		return count, ErrRevocationLimitReached
	}
	if err := t.store.SetRevocationCount(ctx, id, count+1); err != nil {
		return count, err
	}
	return count + 1, nil
}
