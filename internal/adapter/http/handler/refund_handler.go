package handler

import (
	"agency-ledger/internal/adapter/http/dto"
	"agency-ledger/internal/adapter/http/middleware"
	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// RefundHandler handles refund requests and refund eligibility.
type RefundHandler struct {
	refundSvc ports.RefundService
}

// NewRefundHandler creates a new RefundHandler.
func NewRefundHandler(refundSvc ports.RefundService) *RefundHandler {
	return &RefundHandler{refundSvc: refundSvc}
}

// RefundableItems handles GET /api/v1/refundable-items?userId=.
func (h *RefundHandler) RefundableItems(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	items, err := h.refundSvc.RefundableItems(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []domain.RefundableItem{}
	}
	response.OK(c, items)
}

// ListUserRefunds handles GET /api/v1/refunds?userId=.
func (h *RefundHandler) ListUserRefunds(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	refunds, err := h.refundSvc.ListUserRefunds(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nonNilRefunds(refunds))
}

// CreateRefund handles POST /api/v1/refunds.
func (h *RefundHandler) CreateRefund(c *gin.Context) {
	var req dto.CreateRefundRequest
	if !bindJSON(c, &req) {
		return
	}
	middleware.SetUserID(c, req.UserID)

	refund, err := h.refundSvc.CreateRefund(c.Request.Context(), ports.CreateRefundRequest{
		UserID:   req.UserID,
		OrderID:  req.OrderID,
		Amount:   dto.DecimalOrZero(req.Amount),
		Reason:   req.Reason,
		ItemType: req.ItemType,
		ItemName: req.ItemName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, refund)
}

// CancelRefund handles DELETE /api/v1/refunds/:id?userId=.
func (h *RefundHandler) CancelRefund(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	if err := h.refundSvc.CancelRefund(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

// ListRefunds handles GET /api/v1/admin/refunds?status=.
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	refunds, err := h.refundSvc.ListRefunds(c.Request.Context(), domain.RefundStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nonNilRefunds(refunds))
}

// ProcessRefund handles PUT /api/v1/admin/refunds/:id.
func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req dto.ProcessRefundRequest
	if !bindJSON(c, &req) {
		return
	}

	refund, err := h.refundSvc.ProcessRefund(c.Request.Context(), ports.ProcessRefundRequest{
		RefundID:    id,
		Status:      domain.RefundStatus(req.Status),
		AdminNotes:  req.AdminNotes,
		ProcessedBy: middleware.AdminSubject(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetUserID(c, refund.UserID)
	response.OK(c, refund)
}

func nonNilRefunds(refunds []domain.RefundRequest) []domain.RefundRequest {
	if refunds == nil {
		return []domain.RefundRequest{}
	}
	return refunds
}
