package distributor

import (
	"context"
	"errors"
	"testing"

	"github.com/mbd888/cardledger/internal/cardpayment"
	"github.com/mbd888/cardledger/internal/token"
)

func TestLocal_SendRevoke(t *testing.T) {
	ctx := context.Background()
	bank := token.NewBank()
	bank.Mint("dist", 100)

	d := NewLocal(bank, "dist")
	out, err := d.SendCashback(ctx, cardpayment.SendRequest{
		Source:      "escrow",
		Kind:        cardpayment.KindCardPayment,
		ReferenceID: "ref",
		Recipient:   "alice",
		Amount:      30,
	})
	if err != nil {
		t.Fatalf("SendCashback failed: %v", err)
	}
	if !out.Accepted || out.Amount != 30 || out.Nonce == 0 {
		t.Fatalf("Unexpected outcome: %+v", out)
	}
	if bal, _ := bank.BalanceOf(ctx, "alice"); bal != 30 {
		t.Errorf("Expected alice balance 30, got %d", bal)
	}

	// Clawback pays the grant's source.
	ok, err := d.RevokeCashback(ctx, out.Nonce, 10)
	if err != nil || !ok {
		t.Fatalf("RevokeCashback failed: ok=%v err=%v", ok, err)
	}
	if bal, _ := bank.BalanceOf(ctx, "escrow"); bal != 10 {
		t.Errorf("Expected escrow balance 10, got %d", bal)
	}
	if outstanding, _ := d.Outstanding(out.Nonce); outstanding != 20 {
		t.Errorf("Expected outstanding 20, got %d", outstanding)
	}

	// Revoking more than outstanding is rejected, not an error.
	ok, err = d.RevokeCashback(ctx, out.Nonce, 25)
	if err != nil || ok {
		t.Fatalf("Expected rejection, got ok=%v err=%v", ok, err)
	}

	if _, err := d.RevokeCashback(ctx, 999, 1); !errors.Is(err, ErrUnknownNonce) {
		t.Errorf("Expected ErrUnknownNonce, got %v", err)
	}
}

func TestLocal_PartialFulfillment(t *testing.T) {
	ctx := context.Background()
	bank := token.NewBank()
	bank.Mint("dist", 25)

	d := NewLocal(bank, "dist")
	out, err := d.SendCashback(ctx, cardpayment.SendRequest{
		Source:    "escrow",
		Recipient: "alice",
		Amount:    40,
	})
	if err != nil {
		t.Fatalf("SendCashback failed: %v", err)
	}
	// Only 25 was affordable.
	if !out.Accepted || out.Amount != 25 {
		t.Fatalf("Expected partial grant of 25, got %+v", out)
	}

	inc, err := d.IncreaseCashback(ctx, out.Nonce, 10)
	if err != nil {
		t.Fatalf("IncreaseCashback failed: %v", err)
	}
	if !inc.Accepted || inc.Amount != 0 {
		t.Fatalf("Expected empty partial increase, got %+v", inc)
	}

	bank.Mint("dist", 5)
	inc, err = d.IncreaseCashback(ctx, out.Nonce, 10)
	if err != nil || inc.Amount != 5 {
		t.Fatalf("Expected partial increase of 5, got %+v err=%v", inc, err)
	}
	if outstanding, _ := d.Outstanding(out.Nonce); outstanding != 30 {
		t.Errorf("Expected outstanding 30, got %d", outstanding)
	}

	if _, err := d.IncreaseCashback(ctx, 999, 1); !errors.Is(err, ErrUnknownNonce) {
		t.Errorf("Expected ErrUnknownNonce, got %v", err)
	}
}
