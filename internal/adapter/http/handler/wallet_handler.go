package handler

import (
	"agency-ledger/internal/adapter/http/dto"
	"agency-ledger/internal/adapter/http/middleware"
	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/pkg/apperror"
	"agency-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLen = 128

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetWallet handles GET /api/v1/wallet?userId=.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	overview, err := h.walletSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, overview)
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	middleware.SetUserID(c, req.UserID)

	result, err := h.walletSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		UserID:         req.UserID,
		Amount:         dto.DecimalOrZero(req.Amount),
		BankAccountID:  req.BankAccountID,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// RequestDeposit handles POST /api/v1/wallet/request.
func (h *WalletHandler) RequestDeposit(c *gin.Context) {
	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	middleware.SetUserID(c, req.UserID)

	tx, err := h.walletSvc.RequestDeposit(c.Request.Context(), ports.DepositRequest{
		UserID:         req.UserID,
		Amount:         dto.DecimalOrZero(req.Amount),
		Description:    req.Description,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"transaction": tx})
}

// DeleteTransaction handles DELETE /api/v1/wallet/transactions/:id?userId=.
func (h *WalletHandler) DeleteTransaction(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	balance, err := h.walletSvc.DeleteTransaction(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"balance": balance})
}

// RecordTransaction handles POST /api/v1/admin/wallet/transactions.
func (h *WalletHandler) RecordTransaction(c *gin.Context) {
	var req dto.RecordTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	middleware.SetUserID(c, req.UserID)

	result, err := h.walletSvc.RecordTransaction(c.Request.Context(), ports.RecordTransactionRequest{
		UserID:        req.UserID,
		Type:          domain.TransactionType(req.Type),
		Amount:        dto.DecimalOrZero(req.Amount),
		Description:   req.Description,
		Status:        domain.TransactionStatus(req.Status),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// SettleTransaction handles PUT /api/v1/admin/wallet/transactions/:id/status.
func (h *WalletHandler) SettleTransaction(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req dto.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	middleware.SetUserID(c, req.UserID)

	result, err := h.walletSvc.SettleTransaction(c.Request.Context(), ports.SettleRequest{
		UserID:        req.UserID,
		TransactionID: id,
		Status:        domain.TransactionStatus(req.Status),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key is too long"))
		return "", false
	}
	return key, true
}
