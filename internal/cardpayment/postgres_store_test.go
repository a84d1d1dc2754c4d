package cardpayment

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/cardledger/internal/testutil"
)

func TestPostgresStore_Payments(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	got, err := store.GetPayment(ctx, authID(1))
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for missing payment, got %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	pay := &Payment{
		AuthorizationID:    authID(1),
		Account:            "alice",
		Sponsor:            "sponsorco",
		Amount:             234,
		Status:             StatusUncleared,
		CorrelationID:      "corr_1",
		CashbackRatePermil: 100,
		LastCashbackNonce:  7,
		CompensationAmount: 23,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := store.SavePayment(ctx, pay); err != nil {
		t.Fatalf("SavePayment failed: %v", err)
	}

	got, err = store.GetPayment(ctx, authID(1))
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if got.Account != "alice" || got.Amount != 234 || got.Status != StatusUncleared ||
		got.CompensationAmount != 23 || got.LastCashbackNonce != 7 {
		t.Errorf("Round trip mismatch: %+v", got)
	}

	// Saving again upserts.
	pay.Status = StatusRevoked
	pay.RefundAmount = 10
	pay.ParentTxHash = "0xparent"
	if err := store.SavePayment(ctx, pay); err != nil {
		t.Fatalf("SavePayment (update) failed: %v", err)
	}
	got, _ = store.GetPayment(ctx, authID(1))
	if got.Status != StatusRevoked || got.RefundAmount != 10 || got.ParentTxHash != "0xparent" {
		t.Errorf("Upsert mismatch: %+v", got)
	}

	// Only active payments are listed.
	pay2 := &Payment{AuthorizationID: authID(2), Account: "bob", Amount: 50,
		Status: StatusCleared, CreatedAt: now, UpdatedAt: now}
	if err := store.SavePayment(ctx, pay2); err != nil {
		t.Fatalf("SavePayment failed: %v", err)
	}
	active, err := store.ListActivePayments(ctx)
	if err != nil {
		t.Fatalf("ListActivePayments failed: %v", err)
	}
	if len(active) != 1 || active[0].AuthorizationID != authID(2) {
		t.Errorf("Expected only payment 2 active, got %+v", active)
	}
}

func TestPostgresStore_RevocationsAndMarks(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	if count, err := store.RevocationCount(ctx, authID(3)); err != nil || count != 0 {
		t.Fatalf("Expected zero count, got %d err=%v", count, err)
	}
	if err := store.SetRevocationCount(ctx, authID(3), 2); err != nil {
		t.Fatalf("SetRevocationCount failed: %v", err)
	}
	if err := store.SetRevocationCount(ctx, authID(3), 3); err != nil {
		t.Fatalf("SetRevocationCount (update) failed: %v", err)
	}
	if count, _ := store.RevocationCount(ctx, authID(3)); count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}

	if err := store.MarkRevoked(ctx, "0xaaa"); err != nil {
		t.Fatalf("MarkRevoked failed: %v", err)
	}
	// Marking twice is fine.
	if err := store.MarkRevoked(ctx, "0xaaa"); err != nil {
		t.Fatalf("MarkRevoked (again) failed: %v", err)
	}
	if err := store.MarkReversed(ctx, "0xbbb"); err != nil {
		t.Fatalf("MarkReversed failed: %v", err)
	}

	if revoked, _ := store.IsRevoked(ctx, "0xaaa"); !revoked {
		t.Error("Expected 0xaaa revoked")
	}
	if reversed, _ := store.IsReversed(ctx, "0xaaa"); reversed {
		t.Error("Expected 0xaaa not reversed")
	}
	if reversed, _ := store.IsReversed(ctx, "0xbbb"); !reversed {
		t.Error("Expected 0xbbb reversed")
	}
}
