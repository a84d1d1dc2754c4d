package cardpayment

import "context"

// Store persists payment records, per-id revocation counters and the
// permanent marks carried by parent transaction hashes.
//
// GetPayment returns (nil, nil) when no record exists for the id. The
// revocation counter outlives the payment record it belongs to: revoking
// and recreating a payment under the same id resumes the old count.
type Store interface {
	GetPayment(ctx context.Context, id AuthID) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error
	ListActivePayments(ctx context.Context) ([]*Payment, error)

	RevocationCount(ctx context.Context, id AuthID) (uint64, error)
	SetRevocationCount(ctx context.Context, id AuthID, count uint64) error

	MarkRevoked(ctx context.Context, txHash string) error
	MarkReversed(ctx context.Context, txHash string) error
	IsRevoked(ctx context.Context, txHash string) (bool, error)
	IsReversed(ctx context.Context, txHash string) (bool, error)
}
