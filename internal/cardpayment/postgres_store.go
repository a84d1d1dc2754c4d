package cardpayment

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists payment data in PostgreSQL. Amounts are stored
// as BIGINT minor units.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `authorization_id, account, sponsor, amount, refund_amount, status,
		       correlation_id, parent_tx_hash, revocation_counter,
		       cashback_rate_permil, last_cashback_nonce, compensation_amount,
		       unrecovered_cashback, created_at, updated_at`

func (s *PostgresStore) GetPayment(ctx context.Context, id AuthID) (*Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE authorization_id = $1`, id.String())
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) SavePayment(ctx context.Context, p *Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (
			authorization_id, account, sponsor, amount, refund_amount, status,
			correlation_id, parent_tx_hash, revocation_counter,
			cashback_rate_permil, last_cashback_nonce, compensation_amount,
			unrecovered_cashback, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15
		)
		ON CONFLICT (authorization_id) DO UPDATE SET
			account = EXCLUDED.account,
			sponsor = EXCLUDED.sponsor,
			amount = EXCLUDED.amount,
			refund_amount = EXCLUDED.refund_amount,
			status = EXCLUDED.status,
			correlation_id = EXCLUDED.correlation_id,
			parent_tx_hash = EXCLUDED.parent_tx_hash,
			revocation_counter = EXCLUDED.revocation_counter,
			cashback_rate_permil = EXCLUDED.cashback_rate_permil,
			last_cashback_nonce = EXCLUDED.last_cashback_nonce,
			compensation_amount = EXCLUDED.compensation_amount,
			unrecovered_cashback = EXCLUDED.unrecovered_cashback,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		p.AuthorizationID.String(), p.Account, p.Sponsor,
		int64(p.Amount), int64(p.RefundAmount), p.Status.String(),
		p.CorrelationID, p.ParentTxHash, int64(p.RevocationCounter),
		int64(p.CashbackRatePermil), int64(p.LastCashbackNonce), int64(p.CompensationAmount),
		int64(p.UnrecoveredCashback), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListActivePayments(ctx context.Context) ([]*Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status IN ('uncleared', 'cleared')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RevocationCount(ctx context.Context, id AuthID) (uint64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM revocation_counters WHERE authorization_id = $1`, id.String()).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return uint64(count), err
}

func (s *PostgresStore) SetRevocationCount(ctx context.Context, id AuthID, count uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revocation_counters (authorization_id, count) VALUES ($1, $2)
		ON CONFLICT (authorization_id) DO UPDATE SET count = EXCLUDED.count`,
		id.String(), int64(count))
	return err
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, txHash string) error {
	return s.mark(ctx, txHash, "revoked")
}

func (s *PostgresStore) MarkReversed(ctx context.Context, txHash string) error {
	return s.mark(ctx, txHash, "reversed")
}

func (s *PostgresStore) mark(ctx context.Context, txHash, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_marks (tx_hash, kind) VALUES ($1, $2)
		ON CONFLICT (tx_hash, kind) DO NOTHING`, txHash, kind)
	return err
}

func (s *PostgresStore) IsRevoked(ctx context.Context, txHash string) (bool, error) {
	return s.marked(ctx, txHash, "revoked")
}

func (s *PostgresStore) IsReversed(ctx context.Context, txHash string) (bool, error) {
	return s.marked(ctx, txHash, "reversed")
}

func (s *PostgresStore) marked(ctx context.Context, txHash, kind string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transaction_marks WHERE tx_hash = $1 AND kind = $2)`,
		txHash, kind).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var (
		p                              Payment
		idHex, status                  string
		amount, refund, counter        int64
		rate, nonce, comp, unrecovered int64
	)
	err := row.Scan(
		&idHex, &p.Account, &p.Sponsor, &amount, &refund, &status,
		&p.CorrelationID, &p.ParentTxHash, &counter,
		&rate, &nonce, &comp,
		&unrecovered, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := ParseAuthID(idHex)
	if err != nil {
		return nil, fmt.Errorf("corrupt authorization id: %w", err)
	}
	p.AuthorizationID = id
	p.Amount = uint64(amount)
	p.RefundAmount = uint64(refund)
	p.RevocationCounter = uint64(counter)
	p.CashbackRatePermil = uint64(rate)
	p.LastCashbackNonce = uint64(nonce)
	p.CompensationAmount = uint64(comp)
	p.UnrecoveredCashback = uint64(unrecovered)
	p.Status, err = parseStatus(status)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseStatus(s string) (Status, error) {
	for st := StatusNonexistent; st <= StatusConfirmed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StatusNonexistent, fmt.Errorf("corrupt payment status %q", s)
}
