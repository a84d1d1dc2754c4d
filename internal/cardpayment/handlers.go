package cardpayment

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/cardledger/internal/guard"
	"github.com/mbd888/cardledger/internal/token"
	"github.com/mbd888/cardledger/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	processor *Processor
	gate      *guard.Gate
}

// NewHandler creates a new payment handler.
func NewHandler(processor *Processor, gate *guard.Gate) *Handler {
	return &Handler{processor: processor, gate: gate}
}

// RegisterRoutes sets up the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.MakePayment)
	r.POST("/payments/clear", h.ClearBatch)
	r.POST("/payments/unclear", h.UnclearBatch)
	r.POST("/payments/confirm", h.ConfirmBatch)

	p := r.Group("/payments/:authId", validation.AuthIDParamMiddleware())
	p.GET("", h.GetPayment)
	p.POST("/clear", h.ClearPayment)
	p.POST("/unclear", h.UnclearPayment)
	p.POST("/confirm", h.ConfirmPayment)
	p.POST("/revoke", h.RevokePayment)
	p.POST("/reverse", h.ReversePayment)
	p.POST("/refund", h.RefundPayment)
	p.PUT("/amount", h.UpdateAmount)

	r.GET("/accounts/:account/balances", h.AccountBalances)
	r.GET("/balances", h.TotalBalances)
	r.GET("/transactions/:txHash/marks", h.TransactionMarks)
}

// RegisterAdminRoutes sets up the configuration routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/config", h.GetConfig)
	r.PUT("/config/cashback-rate", h.SetCashbackRate)
	r.PUT("/config/cashout-account", h.SetCashOutAccount)
	r.PUT("/config/revocation-limit", h.SetRevocationLimit)
	r.POST("/cashback/enable", h.EnableCashback)
	r.POST("/cashback/disable", h.DisableCashback)
	r.POST("/pause", h.Pause)
	r.POST("/resume", h.Resume)
}

// MakePaymentRequest is the body of POST /v1/payments.
type MakePaymentRequest struct {
	AuthorizationID string `json:"authorizationId"`
	Account         string `json:"account"`
	Sponsor         string `json:"sponsor,omitempty"`
	Amount          string `json:"amount"`
	CorrelationID   string `json:"correlationId,omitempty"`
}

type batchRequest struct {
	AuthorizationIDs []string `json:"authorizationIds"`
}

type paymentResponse struct {
	AuthorizationID     string    `json:"authorizationId"`
	Account             string    `json:"account"`
	Sponsor             string    `json:"sponsor,omitempty"`
	Amount              string    `json:"amount"`
	RefundAmount        string    `json:"refundAmount"`
	Status              string    `json:"status"`
	CorrelationID       string    `json:"correlationId,omitempty"`
	ParentTxHash        string    `json:"parentTxHash,omitempty"`
	RevocationCounter   uint64    `json:"revocationCounter"`
	CashbackRatePermil  uint64    `json:"cashbackRatePermil"`
	Cashback            string    `json:"cashback"`
	CompensationAmount  string    `json:"compensationAmount"`
	UnrecoveredCashback string    `json:"unrecoveredCashback"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toResponse(p *Payment) paymentResponse {
	return paymentResponse{
		AuthorizationID:     p.AuthorizationID.String(),
		Account:             p.Account,
		Sponsor:             p.Sponsor,
		Amount:              token.Format(p.Amount),
		RefundAmount:        token.Format(p.RefundAmount),
		Status:              p.Status.String(),
		CorrelationID:       p.CorrelationID,
		ParentTxHash:        p.ParentTxHash,
		RevocationCounter:   p.RevocationCounter,
		CashbackRatePermil:  p.CashbackRatePermil,
		Cashback:            token.Format(p.Cashback()),
		CompensationAmount:  token.Format(p.CompensationAmount),
		UnrecoveredCashback: token.Format(p.UnrecoveredCashback),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// MakePayment handles POST /v1/payments
func (h *Handler) MakePayment(c *gin.Context) {
	var req MakePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("authorizationId", req.AuthorizationID),
		validation.ValidAuthID("authorizationId", req.AuthorizationID),
		validation.Required("account", req.Account),
		validation.ValidAccount("account", req.Account),
		validation.ValidAccount("sponsor", req.Sponsor),
		validation.Required("amount", req.Amount),
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	id, err := ParseAuthID(req.AuthorizationID)
	if err != nil {
		writeError(c, ErrZeroAuthorizationID)
		return
	}
	amount, _ := token.Parse(req.Amount)

	var pay *Payment
	if req.Sponsor != "" {
		pay, err = h.processor.MakePaymentFrom(c.Request.Context(), id, req.Account, req.Sponsor, amount, req.CorrelationID)
	} else {
		pay, err = h.processor.MakePayment(c.Request.Context(), id, req.Account, amount, req.CorrelationID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": toResponse(pay)})
}

// GetPayment handles GET /v1/payments/:authId
func (h *Handler) GetPayment(c *gin.Context) {
	id, err := ParseAuthID(c.Param("authId"))
	if err != nil {
		writeError(c, ErrZeroAuthorizationID)
		return
	}
	pay, err := h.processor.GetPayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if pay.Status == StatusNonexistent {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Payment not found",
			"payment": toResponse(pay),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": toResponse(pay)})
}

func (h *Handler) singleTransition(c *gin.Context, op func(id AuthID) error) {
	id, err := ParseAuthID(c.Param("authId"))
	if err != nil {
		writeError(c, ErrZeroAuthorizationID)
		return
	}
	if err := op(id); err != nil {
		writeError(c, err)
		return
	}
	pay, err := h.processor.GetPayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": toResponse(pay)})
}

// ClearPayment handles POST /v1/payments/:authId/clear
func (h *Handler) ClearPayment(c *gin.Context) {
	h.singleTransition(c, func(id AuthID) error {
		return h.processor.ClearPayment(c.Request.Context(), id)
	})
}

// UnclearPayment handles POST /v1/payments/:authId/unclear
func (h *Handler) UnclearPayment(c *gin.Context) {
	h.singleTransition(c, func(id AuthID) error {
		return h.processor.UnclearPayment(c.Request.Context(), id)
	})
}

// ConfirmPayment handles POST /v1/payments/:authId/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	h.singleTransition(c, func(id AuthID) error {
		return h.processor.ConfirmPayment(c.Request.Context(), id)
	})
}

type unwindRequest struct {
	ParentTxHash  string `json:"parentTxHash"`
	CorrelationID string `json:"correlationId"`
}

func (h *Handler) unwindPayment(c *gin.Context, op func(id AuthID, parentTxHash, correlationID string) error) {
	var req unwindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("parentTxHash", req.ParentTxHash),
		validation.ValidTxHash("parentTxHash", req.ParentTxHash),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	h.singleTransition(c, func(id AuthID) error {
		return op(id, req.ParentTxHash, req.CorrelationID)
	})
}

// RevokePayment handles POST /v1/payments/:authId/revoke
func (h *Handler) RevokePayment(c *gin.Context) {
	h.unwindPayment(c, func(id AuthID, parentTxHash, correlationID string) error {
		return h.processor.RevokePayment(c.Request.Context(), id, parentTxHash, correlationID)
	})
}

// ReversePayment handles POST /v1/payments/:authId/reverse
func (h *Handler) ReversePayment(c *gin.Context) {
	h.unwindPayment(c, func(id AuthID, parentTxHash, correlationID string) error {
		return h.processor.ReversePayment(c.Request.Context(), id, parentTxHash, correlationID)
	})
}

// RefundPayment handles POST /v1/payments/:authId/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req struct {
		RefundAmount  string `json:"refundAmount"`
		CorrelationID string `json:"correlationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("refundAmount", req.RefundAmount),
		validation.ValidAmount("refundAmount", req.RefundAmount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	amount, _ := token.Parse(req.RefundAmount)
	h.singleTransition(c, func(id AuthID) error {
		return h.processor.RefundPayment(c.Request.Context(), id, amount, req.CorrelationID)
	})
}

// UpdateAmount handles PUT /v1/payments/:authId/amount
func (h *Handler) UpdateAmount(c *gin.Context) {
	var req struct {
		NewAmount     string `json:"newAmount"`
		CorrelationID string `json:"correlationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("newAmount", req.NewAmount),
		validation.ValidAmount("newAmount", req.NewAmount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	amount, _ := token.Parse(req.NewAmount)
	h.singleTransition(c, func(id AuthID) error {
		return h.processor.UpdatePaymentAmount(c.Request.Context(), id, amount, req.CorrelationID)
	})
}

func (h *Handler) batch(c *gin.Context, op func(ids []AuthID) error) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	ids := make([]AuthID, 0, len(req.AuthorizationIDs))
	for _, s := range req.AuthorizationIDs {
		id, err := ParseAuthID(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_authorization_id",
				"message": err.Error(),
			})
			return
		}
		ids = append(ids, id)
	}
	if err := op(ids); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(ids)})
}

// ClearBatch handles POST /v1/payments/clear
func (h *Handler) ClearBatch(c *gin.Context) {
	h.batch(c, func(ids []AuthID) error {
		return h.processor.ClearPayments(c.Request.Context(), ids)
	})
}

// UnclearBatch handles POST /v1/payments/unclear
func (h *Handler) UnclearBatch(c *gin.Context) {
	h.batch(c, func(ids []AuthID) error {
		return h.processor.UnclearPayments(c.Request.Context(), ids)
	})
}

// ConfirmBatch handles POST /v1/payments/confirm
func (h *Handler) ConfirmBatch(c *gin.Context) {
	h.batch(c, func(ids []AuthID) error {
		return h.processor.ConfirmPayments(c.Request.Context(), ids)
	})
}

// AccountBalances handles GET /v1/accounts/:account/balances
func (h *Handler) AccountBalances(c *gin.Context) {
	b := h.processor.AccountBalances(c.Param("account"))
	c.JSON(http.StatusOK, gin.H{
		"account":   c.Param("account"),
		"uncleared": token.Format(b.Uncleared),
		"cleared":   token.Format(b.Cleared),
	})
}

// TotalBalances handles GET /v1/balances
func (h *Handler) TotalBalances(c *gin.Context) {
	b := h.processor.TotalBalances()
	c.JSON(http.StatusOK, gin.H{
		"uncleared": token.Format(b.Uncleared),
		"cleared":   token.Format(b.Cleared),
	})
}

// TransactionMarks handles GET /v1/transactions/:txHash/marks
func (h *Handler) TransactionMarks(c *gin.Context) {
	txHash := c.Param("txHash")
	revoked, err := h.processor.IsTransactionRevoked(c.Request.Context(), txHash)
	if err != nil {
		writeError(c, err)
		return
	}
	reversed, err := h.processor.IsTransactionReversed(c.Request.Context(), txHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"txHash":   txHash,
		"revoked":  revoked,
		"reversed": reversed,
	})
}

// GetConfig handles GET /v1/admin/config
func (h *Handler) GetConfig(c *gin.Context) {
	cfg := h.processor.Config()
	c.JSON(http.StatusOK, gin.H{"config": cfg, "paused": h.gate.Paused()})
}

// SetCashbackRate handles PUT /v1/admin/config/cashback-rate
func (h *Handler) SetCashbackRate(c *gin.Context) {
	var req struct {
		RatePermil uint64 `json:"ratePermil"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.processor.SetCashbackRate(c.Request.Context(), req.RatePermil); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratePermil": req.RatePermil})
}

// SetCashOutAccount handles PUT /v1/admin/config/cashout-account
func (h *Handler) SetCashOutAccount(c *gin.Context) {
	var req struct {
		Account string `json:"account"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.processor.SetCashOutAccount(c.Request.Context(), req.Account); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": req.Account})
}

// SetRevocationLimit handles PUT /v1/admin/config/revocation-limit
func (h *Handler) SetRevocationLimit(c *gin.Context) {
	var req struct {
		Limit uint64 `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.processor.SetRevocationLimit(c.Request.Context(), req.Limit); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": req.Limit})
}

// EnableCashback handles POST /v1/admin/cashback/enable
func (h *Handler) EnableCashback(c *gin.Context) {
	if err := h.processor.EnableCashback(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cashbackEnabled": true})
}

// DisableCashback handles POST /v1/admin/cashback/disable
func (h *Handler) DisableCashback(c *gin.Context) {
	if err := h.processor.DisableCashback(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cashbackEnabled": false})
}

// Pause handles POST /v1/admin/pause
func (h *Handler) Pause(c *gin.Context) {
	changed := h.gate.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true, "changed": changed})
}

// Resume handles POST /v1/admin/resume
func (h *Handler) Resume(c *gin.Context) {
	changed := h.gate.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false, "changed": changed})
}

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrZeroAuthorizationID),
		errors.Is(err, ErrZeroAccount),
		errors.Is(err, ErrZeroParentTransactionHash),
		errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrDuplicateAuthorizationID),
		errors.Is(err, ErrCashbackRateTooHigh),
		errors.Is(err, ErrZeroCashOutAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrPaymentAlreadyExists),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrRevocationLimitReached),
		errors.Is(err, ErrAmountBelowRefund),
		errors.Is(err, ErrRefundBelowPrevious),
		errors.Is(err, ErrRefundExceedsAmount):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrDistributorUnset),
		errors.Is(err, ErrDistributorUnchanged),
		errors.Is(err, ErrCashbackAlreadyEnabled),
		errors.Is(err, ErrCashbackAlreadyDisabled),
		errors.Is(err, ErrCashbackRateUnchanged),
		errors.Is(err, ErrCashOutAccountUnset),
		errors.Is(err, ErrCashOutAccountUnchanged):
		c.JSON(http.StatusConflict, gin.H{"error": "configuration_conflict", "message": err.Error()})
	case errors.Is(err, token.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_funds", "message": err.Error()})
	case errors.Is(err, guard.ErrPaused):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "paused", "message": err.Error()})
	case errors.Is(err, guard.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_authorized", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Operation failed"})
	}
}
