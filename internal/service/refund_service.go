package service

import (
	"context"
	"fmt"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/internal/metrics"
	"agency-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// RefundServiceImpl implements ports.RefundService.
type RefundServiceImpl struct {
	ledger  ports.LedgerRepository
	catalog ports.CatalogRepository
	log     zerolog.Logger
	now     func() time.Time
}

// NewRefundService creates a new RefundServiceImpl.
func NewRefundService(ledger ports.LedgerRepository, catalog ports.CatalogRepository, log zerolog.Logger) *RefundServiceImpl {
	return &RefundServiceImpl{
		ledger:  ledger,
		catalog: catalog,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RefundableItems lists the purchases the user may still claim a refund for.
func (s *RefundServiceImpl) RefundableItems(ctx context.Context, userID string) ([]domain.RefundableItem, error) {
	if userID == "" {
		return nil, apperror.ErrMissingField("userId is required")
	}
	l, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read ledger: %w", err))
	}
	catalog, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read catalog: %w", err))
	}
	return domain.RefundableItems(l, catalog), nil
}

// ListUserRefunds returns the user's refund requests, newest first.
func (s *RefundServiceImpl) ListUserRefunds(ctx context.Context, userID string) ([]domain.RefundRequest, error) {
	if userID == "" {
		return nil, apperror.ErrMissingField("userId is required")
	}
	l, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read ledger: %w", err))
	}
	refunds := make([]domain.RefundRequest, len(l.RefundRequests))
	copy(refunds, l.RefundRequests)
	domain.SortRefundsNewestFirst(refunds)
	return refunds, nil
}

// CreateRefund files a pending refund request. At most one pending request
// may reference the same order.
func (s *RefundServiceImpl) CreateRefund(ctx context.Context, req ports.CreateRefundRequest) (*domain.RefundRequest, error) {
	if req.UserID == "" || req.OrderID == "" || req.Reason == "" {
		return nil, apperror.ErrMissingField("userId, orderId, amount and reason are required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	refund := domain.RefundRequest{
		ID:          domain.NewRefundID(),
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		Status:      domain.RefundStatusPending,
		RequestDate: s.now(),
		ItemType:    req.ItemType,
		ItemName:    req.ItemName,
	}
	err := s.ledger.Apply(ctx, req.UserID, func(l *domain.UserLedger) error {
		if l.HasPendingRefund(req.OrderID) {
			return apperror.ErrDuplicateRefund()
		}
		l.RefundRequests = append(l.RefundRequests, refund)
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "create refund request")
	}

	s.log.Info().
		Str("user_id", req.UserID).
		Str("refund_id", refund.ID).
		Str("order_id", req.OrderID).
		Str("amount", req.Amount.String()).
		Msg("refund requested")

	return &refund, nil
}

// CancelRefund withdraws the user's own pending request.
func (s *RefundServiceImpl) CancelRefund(ctx context.Context, userID, refundID string) error {
	if userID == "" || refundID == "" {
		return apperror.ErrMissingField("userId and refund id are required")
	}
	err := s.ledger.Apply(ctx, userID, func(l *domain.UserLedger) error {
		refund := l.FindRefundRequest(refundID)
		if refund == nil {
			return apperror.ErrNotFound("refund request")
		}
		if refund.Status != domain.RefundStatusPending {
			return apperror.ErrRefundProcessed()
		}
		l.RemoveRefundRequest(refundID)
		return nil
	})
	if err != nil {
		return asAppError(err, "cancel refund request")
	}

	s.log.Info().Str("user_id", userID).Str("refund_id", refundID).Msg("refund cancelled")
	return nil
}

// ListRefunds returns every user's refund requests, newest first. An
// unknown status filter lists all of them.
func (s *RefundServiceImpl) ListRefunds(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error) {
	if !status.Valid() {
		status = ""
	}
	refunds, err := s.ledger.ListRefundRequests(ctx, status)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list refund requests: %w", err))
	}
	return refunds, nil
}

// ProcessRefund records an administrator's decision. Approval credits the
// refund amount to the owner's wallet in the same write.
func (s *RefundServiceImpl) ProcessRefund(ctx context.Context, req ports.ProcessRefundRequest) (*domain.RefundRequest, error) {
	if req.RefundID == "" {
		return nil, apperror.ErrMissingField("refund id and status are required")
	}
	if req.Status != domain.RefundStatusApproved && req.Status != domain.RefundStatusRejected {
		return nil, apperror.Validation("status must be approved or rejected")
	}

	existing, err := s.ledger.FindRefundRequest(ctx, req.RefundID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find refund request: %w", err))
	}
	if existing == nil {
		return nil, apperror.ErrNotFound("refund request")
	}

	var processed domain.RefundRequest
	var credit *domain.WalletTransaction
	err = s.ledger.Apply(ctx, existing.UserID, func(l *domain.UserLedger) error {
		refund := l.FindRefundRequest(req.RefundID)
		if refund == nil {
			return apperror.ErrNotFound("refund request")
		}
		if refund.Status != domain.RefundStatusPending {
			return apperror.ErrRefundProcessed()
		}

		now := s.now()
		refund.Status = req.Status
		refund.ProcessedDate = &now
		refund.ProcessedBy = req.ProcessedBy
		refund.AdminNotes = req.AdminNotes

		if req.Status == domain.RefundStatusApproved {
			tx := domain.WalletTransaction{
				ID:          domain.NewTransactionID(),
				UserID:      refund.UserID,
				Type:        domain.TransactionTypeRefund,
				Amount:      refund.Amount,
				Description: "Refund for order " + refund.OrderID,
				Date:        now,
				Status:      domain.TransactionStatusCompleted,
			}
			l.Append(tx)
			credit = &tx
		}
		processed = *refund
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "process refund request")
	}

	metrics.RefundsProcessed.WithLabelValues(string(req.Status)).Inc()
	if credit != nil {
		countTransaction(*credit)
	}

	s.log.Info().
		Str("refund_id", req.RefundID).
		Str("user_id", processed.UserID).
		Str("status", string(req.Status)).
		Str("processed_by", req.ProcessedBy).
		Msg("refund processed")

	return &processed, nil
}
