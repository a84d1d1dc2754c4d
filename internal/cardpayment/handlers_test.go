package cardpayment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/cardledger/internal/events"
	"github.com/mbd888/cardledger/internal/guard"
)

func setupHandlerTestRouter(t *testing.T) (*gin.Engine, *fixture, *guard.Gate) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	gate := guard.New(nil)
	f.proc.WithGuard(gate)
	handler := NewHandler(f.proc, gate)

	r := gin.New()
	v1 := r.Group("/v1")
	handler.RegisterRoutes(v1)
	handler.RegisterAdminRoutes(v1.Group("/admin"))
	return r, f, gate
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func hexID(b byte) string { return authID(b).String() }

func TestHandler_MakePayment(t *testing.T) {
	router, f, _ := setupHandlerTestRouter(t)

	w := doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1),
		Account:         "alice",
		Amount:          "0.000234",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Payment paymentResponse `json:"payment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Payment.Status != "uncleared" {
		t.Errorf("Expected status uncleared, got %s", resp.Payment.Status)
	}
	if resp.Payment.Amount != "0.000234" {
		t.Errorf("Expected amount 0.000234, got %s", resp.Payment.Amount)
	}
	if resp.Payment.Cashback != "0.000023" {
		t.Errorf("Expected cashback 0.000023, got %s", resp.Payment.Cashback)
	}
	if got := f.balance("escrow"); got != 234 {
		t.Errorf("Expected escrow balance 234, got %d", got)
	}

	// Same id again conflicts.
	w = doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1),
		Account:         "alice",
		Amount:          "0.000234",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_MakePayment_Validation(t *testing.T) {
	router, _, _ := setupHandlerTestRouter(t)

	cases := []MakePaymentRequest{
		{AuthorizationID: "nothex", Account: "alice", Amount: "1"},
		{AuthorizationID: hexID(1), Account: "", Amount: "1"},
		{AuthorizationID: hexID(1), Account: "alice", Amount: "-1"},
		{AuthorizationID: hexID(1), Account: "alice", Amount: "1.1234567"},
		{AuthorizationID: hexID(1), Account: "alice", Amount: ""},
	}
	for i, req := range cases {
		if w := doJSON(t, router, "POST", "/v1/payments", req); w.Code != http.StatusBadRequest {
			t.Errorf("Case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1), Account: "alice", Amount: "99999",
	})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 for insufficient funds, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	router, f, _ := setupHandlerTestRouter(t)
	mkPayment := func(b byte) {
		w := doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
			AuthorizationID: hexID(b), Account: "alice", Amount: "0.0001",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("make %d: expected 201, got %d: %s", b, w.Code, w.Body.String())
		}
	}
	mkPayment(1)
	mkPayment(2)

	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(1)+"/clear", nil); w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Double clear conflicts.
	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(1)+"/clear", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}
	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(1)+"/confirm", nil); w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := f.balance("cashout"); got != 100 {
		t.Errorf("Expected cashout balance 100, got %d", got)
	}

	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(2)+"/revoke",
		gin.H{"parentTxHash": "0xabc"}); w.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w := doJSON(t, router, "GET", "/v1/transactions/0xabc/marks", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"revoked":true`) {
		t.Errorf("Expected revoked mark, got %d: %s", w.Code, w.Body.String())
	}

	// Missing parent hash is a validation error.
	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(2)+"/reverse", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandler_CorrelationIDPlumbed(t *testing.T) {
	router, f, _ := setupHandlerTestRouter(t)
	doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1), Account: "alice", Amount: "0.0001",
	})

	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(1)+"/refund",
		gin.H{"refundAmount": "0.00005", "correlationId": "order-17"}); w.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	last := f.sink.events[len(f.sink.events)-1]
	if last.Type != events.TypePaymentRefunded {
		t.Fatalf("Expected refunded event, got %s", last.Type)
	}
	if got := last.Data["correlationId"]; got != "order-17" {
		t.Errorf("Expected correlation id order-17, got %v", got)
	}

	if w := doJSON(t, router, "POST", "/v1/payments/"+hexID(1)+"/revoke",
		gin.H{"parentTxHash": "0xabc", "correlationId": "order-18"}); w.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	last = f.sink.events[len(f.sink.events)-1]
	if got := last.Data["correlationId"]; got != "order-18" {
		t.Errorf("Expected correlation id order-18, got %v", got)
	}
}

func TestHandler_BatchClear(t *testing.T) {
	router, _, _ := setupHandlerTestRouter(t)
	for b := byte(1); b <= 2; b++ {
		doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
			AuthorizationID: hexID(b), Account: "alice", Amount: "0.0001",
		})
	}

	w := doJSON(t, router, "POST", "/v1/payments/clear", batchRequest{
		AuthorizationIDs: []string{hexID(1), hexID(2)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// A malformed id in the batch is rejected up front.
	w = doJSON(t, router, "POST", "/v1/payments/unclear", batchRequest{
		AuthorizationIDs: []string{hexID(1), "junk"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	// An empty batch is rejected.
	w = doJSON(t, router, "POST", "/v1/payments/confirm", batchRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_GetPaymentAndBalances(t *testing.T) {
	router, _, _ := setupHandlerTestRouter(t)
	doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1), Account: "alice", Amount: "0.000234",
	})

	if w := doJSON(t, router, "GET", "/v1/payments/"+hexID(1), nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := doJSON(t, router, "GET", "/v1/payments/"+hexID(9), nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := doJSON(t, router, "GET", "/v1/payments/junk", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 from param middleware, got %d", w.Code)
	}

	w := doJSON(t, router, "GET", "/v1/accounts/alice/balances", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"uncleared":"0.000234"`) {
		t.Errorf("Unexpected balances response: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, "GET", "/v1/balances", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"uncleared":"0.000234"`) {
		t.Errorf("Unexpected totals response: %d %s", w.Code, w.Body.String())
	}
}

func TestHandler_Admin(t *testing.T) {
	router, _, _ := setupHandlerTestRouter(t)

	if w := doJSON(t, router, "PUT", "/v1/admin/config/cashback-rate", gin.H{"ratePermil": 250}); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Unchanged rate conflicts.
	if w := doJSON(t, router, "PUT", "/v1/admin/config/cashback-rate", gin.H{"ratePermil": 250}); w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}
	if w := doJSON(t, router, "PUT", "/v1/admin/config/cashback-rate", gin.H{"ratePermil": 2000}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	if w := doJSON(t, router, "POST", "/v1/admin/cashback/disable", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := doJSON(t, router, "POST", "/v1/admin/cashback/disable", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}

	w := doJSON(t, router, "GET", "/v1/admin/config", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cashbackRatePermil":250`) {
		t.Errorf("Unexpected config response: %d %s", w.Code, w.Body.String())
	}
}

func TestHandler_PauseResume(t *testing.T) {
	router, _, _ := setupHandlerTestRouter(t)

	if w := doJSON(t, router, "POST", "/v1/admin/pause", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	w := doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1), Account: "alice", Amount: "0.0001",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while paused, got %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, router, "POST", "/v1/admin/resume", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, "POST", "/v1/payments", MakePaymentRequest{
		AuthorizationID: hexID(1), Account: "alice", Amount: "0.0001",
	})
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 after resume, got %d: %s", w.Code, w.Body.String())
	}
}
