package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/internal/metrics"
	"agency-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const idempotencyTTL = 24 * time.Hour

const (
	withdrawalDescription = "Withdrawal request to bank account"
	serviceFeeDescription = "Service fee for withdrawal"
	fundRequestPrefix     = "Fund Request: "
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	ledger     ports.LedgerRepository
	settings   ports.SettingsRepository
	idempCache ports.IdempotencyCache
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletServiceImpl. idempCache may be nil,
// which disables replay of Idempotency-Key requests.
func NewWalletService(
	ledger ports.LedgerRepository,
	settings ports.SettingsRepository,
	idempCache ports.IdempotencyCache,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		ledger:     ledger,
		settings:   settings,
		idempCache: idempCache,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetWallet returns the balance and the user's entries, newest first.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, userID string) (*ports.WalletOverview, error) {
	if userID == "" {
		return nil, apperror.ErrMissingField("userId is required")
	}
	l, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read ledger: %w", err))
	}
	return &ports.WalletOverview{
		Balance:      l.Balance(),
		Transactions: l.TransactionsNewestFirst(),
	}, nil
}

// Withdraw validates the request against the wallet settings and the balance
// recomputed under the user's ledger lock, then records the pending
// withdrawal and its completed service fee in one write.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*ports.WithdrawResult, error) {
	if req.UserID == "" || req.Amount.IsZero() {
		return nil, s.rejectWithdrawal(apperror.ErrMissingField("userId and amount are required"))
	}

	ledgerKey, idempKey := idempotencyKeys("withdraw", req.UserID, req.IdempotencyKey)
	if idempKey != "" {
		if cached := s.cachedResponse(ctx, idempKey); cached != nil {
			var result ports.WithdrawResult
			if err := json.Unmarshal(cached, &result); err == nil {
				return &result, nil
			}
			s.log.Warn().Str("key", idempKey).Msg("discarding undecodable idempotency entry")
		}
	}

	settings := s.settings.Get(ctx)
	limits := settings.WithdrawalSettings
	if req.Amount.LessThan(limits.MinWithdrawal) {
		return nil, s.rejectWithdrawal(apperror.ErrBelowMinimum(limits.MinWithdrawal.String()))
	}
	if req.Amount.GreaterThan(limits.MaxWithdrawal) {
		return nil, s.rejectWithdrawal(apperror.ErrAboveMaximum(limits.MaxWithdrawal.String()))
	}

	fee := settings.ServiceFee
	required := req.Amount.Add(fee)
	var (
		result   *ports.WithdrawResult
		replayed bool
	)

	err := s.ledger.Apply(ctx, req.UserID, func(l *domain.UserLedger) error {
		// A retry that raced past the cache finds the entry written by the
		// first attempt.
		if prev := l.FindByIdempotencyKey(ledgerKey); prev != nil {
			result = replayWithdrawal(l, *prev)
			replayed = true
			return nil
		}

		available := l.Balance()
		if available.LessThan(required) {
			return apperror.ErrInsufficientBalance().WithDetails(ports.InsufficientBalanceDetails{
				Required:  required,
				Available: available,
				Breakdown: ports.WithdrawalBreakdown{Withdrawal: req.Amount, ServiceFee: fee},
			})
		}

		now := s.now()
		withdrawal := domain.WalletTransaction{
			ID:            domain.NewTransactionID(),
			UserID:        req.UserID,
			Type:          domain.TransactionTypeDebit,
			Amount:        req.Amount,
			Description:   withdrawalDescription,
			Date:          now,
			Status:        domain.TransactionStatusPending,
			PaymentMethod: domain.PaymentMethodBankTransfer,
			BankAccountID: req.BankAccountID,
		}
		withdrawal.IdempotencyKey = ledgerKey
		withdrawal.SetDeletable(false)

		feeTx := domain.WalletTransaction{
			ID:            domain.FeeTransactionID(withdrawal.ID),
			UserID:        req.UserID,
			Type:          domain.TransactionTypeDebit,
			Amount:        fee,
			Description:   serviceFeeDescription,
			Date:          now,
			Status:        domain.TransactionStatusCompleted,
			PaymentMethod: domain.PaymentMethodBankTransfer,
		}
		feeTx.SetDeletable(false)

		l.Append(withdrawal, feeTx)
		result = &ports.WithdrawResult{
			Withdrawal:    withdrawal,
			ServiceFee:    feeTx,
			Balance:       l.Balance(),
			TotalDeducted: required,
		}
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, s.rejectWithdrawal(appErr)
		}
		return nil, apperror.InternalError(fmt.Errorf("apply withdrawal: %w", err))
	}

	if replayed {
		s.log.Info().
			Str("user_id", req.UserID).
			Str("tx_id", result.Withdrawal.ID).
			Msg("withdrawal replayed")
		s.cacheResponse(ctx, idempKey, result)
		return result, nil
	}

	countTransaction(result.Withdrawal)
	countTransaction(result.ServiceFee)

	s.log.Info().
		Str("user_id", req.UserID).
		Str("tx_id", result.Withdrawal.ID).
		Str("amount", req.Amount.String()).
		Str("fee", fee.String()).
		Str("balance", result.Balance.String()).
		Msg("withdrawal requested")

	s.cacheResponse(ctx, idempKey, result)
	return result, nil
}

// RequestDeposit records a pending credit awaiting administrator settlement.
func (s *WalletServiceImpl) RequestDeposit(ctx context.Context, req ports.DepositRequest) (*domain.WalletTransaction, error) {
	if req.UserID == "" || req.Description == "" {
		return nil, apperror.ErrMissingField("userId, amount and description are required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	ledgerKey, idempKey := idempotencyKeys("deposit", req.UserID, req.IdempotencyKey)
	if idempKey != "" {
		if cached := s.cachedResponse(ctx, idempKey); cached != nil {
			var tx domain.WalletTransaction
			if err := json.Unmarshal(cached, &tx); err == nil {
				return &tx, nil
			}
		}
	}

	tx := domain.WalletTransaction{
		ID:          domain.NewTransactionID(),
		UserID:      req.UserID,
		Type:        domain.TransactionTypeCredit,
		Amount:      req.Amount,
		Description: fundRequestPrefix + req.Description,
		Date:        s.now(),
		Status:      domain.TransactionStatusPending,
	}
	tx.IdempotencyKey = ledgerKey

	replayed := false
	err := s.ledger.Apply(ctx, req.UserID, func(l *domain.UserLedger) error {
		if prev := l.FindByIdempotencyKey(ledgerKey); prev != nil {
			tx = *prev
			replayed = true
			return nil
		}
		l.Append(tx)
		return nil
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply deposit request: %w", err))
	}
	if replayed {
		s.log.Info().Str("user_id", req.UserID).Str("tx_id", tx.ID).Msg("deposit request replayed")
		s.cacheResponse(ctx, idempKey, tx)
		return &tx, nil
	}
	countTransaction(tx)

	s.log.Info().
		Str("user_id", req.UserID).
		Str("tx_id", tx.ID).
		Str("amount", req.Amount.String()).
		Msg("deposit requested")

	s.cacheResponse(ctx, idempKey, tx)
	return &tx, nil
}

// RecordTransaction appends an administrative entry. Without an explicit
// status, bank transfers start pending and everything else completes
// immediately; only a pending bank transfer is deletable.
func (s *WalletServiceImpl) RecordTransaction(ctx context.Context, req ports.RecordTransactionRequest) (*ports.TransactionResult, error) {
	if req.UserID == "" || req.Description == "" {
		return nil, apperror.ErrMissingField("userId, type, amount and description are required")
	}
	if !req.Type.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("invalid transaction type %q", req.Type))
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("invalid payment method %q", req.PaymentMethod))
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	status := req.Status
	if status == "" {
		status = domain.TransactionStatusCompleted
		if req.PaymentMethod == domain.PaymentMethodBankTransfer {
			status = domain.TransactionStatusPending
		}
	} else if !status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("invalid transaction status %q", status))
	}

	tx := domain.WalletTransaction{
		ID:            domain.NewTransactionID(),
		UserID:        req.UserID,
		Type:          req.Type,
		Amount:        req.Amount,
		Description:   req.Description,
		Date:          s.now(),
		Status:        status,
		PaymentMethod: req.PaymentMethod,
	}
	tx.SetDeletable(status == domain.TransactionStatusPending && req.PaymentMethod == domain.PaymentMethodBankTransfer)

	var balance decimal.Decimal
	err := s.ledger.Apply(ctx, req.UserID, func(l *domain.UserLedger) error {
		l.Append(tx)
		balance = l.Balance()
		return nil
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply transaction: %w", err))
	}
	countTransaction(tx)

	s.log.Info().
		Str("user_id", req.UserID).
		Str("tx_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("status", string(tx.Status)).
		Msg("transaction recorded")

	return &ports.TransactionResult{Transaction: tx, Balance: balance}, nil
}

// SettleTransaction moves a pending entry to completed or failed. A completed
// entry is no longer deletable. Fees of failed withdrawals are kept.
func (s *WalletServiceImpl) SettleTransaction(ctx context.Context, req ports.SettleRequest) (*ports.TransactionResult, error) {
	if req.UserID == "" || req.TransactionID == "" {
		return nil, apperror.ErrMissingField("userId and transaction id are required")
	}
	if req.Status != domain.TransactionStatusCompleted && req.Status != domain.TransactionStatusFailed {
		return nil, apperror.Validation("status must be completed or failed")
	}

	var result ports.TransactionResult
	err := s.ledger.Apply(ctx, req.UserID, func(l *domain.UserLedger) error {
		tx := l.FindTransaction(req.TransactionID)
		if tx == nil {
			return apperror.ErrNotFound("transaction")
		}
		if !tx.CanTransitionTo(req.Status) {
			return apperror.ErrInvalidTransition(string(tx.Status), string(req.Status))
		}
		tx.Status = req.Status
		if req.Status == domain.TransactionStatusCompleted {
			tx.SetDeletable(false)
		}
		result.Transaction = *tx
		result.Balance = l.Balance()
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "settle transaction")
	}
	countTransaction(result.Transaction)

	s.log.Info().
		Str("user_id", req.UserID).
		Str("tx_id", req.TransactionID).
		Str("status", string(req.Status)).
		Msg("transaction settled")

	return &result, nil
}

// DeleteTransaction removes a deletable entry and returns the new balance.
func (s *WalletServiceImpl) DeleteTransaction(ctx context.Context, userID, transactionID string) (decimal.Decimal, error) {
	if userID == "" || transactionID == "" {
		return decimal.Zero, apperror.ErrMissingField("userId and transaction id are required")
	}

	var balance decimal.Decimal
	err := s.ledger.Apply(ctx, userID, func(l *domain.UserLedger) error {
		tx := l.FindTransaction(transactionID)
		if tx == nil {
			return apperror.ErrNotFound("transaction")
		}
		if !tx.IsDeletable() {
			return apperror.ErrNotDeletable()
		}
		l.RemoveTransaction(transactionID)
		balance = l.Balance()
		return nil
	})
	if err != nil {
		return decimal.Zero, asAppError(err, "delete transaction")
	}

	s.log.Info().
		Str("user_id", userID).
		Str("tx_id", transactionID).
		Msg("transaction deleted")

	return balance, nil
}

// idempotencyKeys derives the key stored on the ledger entry and the Redis
// cache key. Both are empty without a client key.
func idempotencyKeys(op, userID, clientKey string) (ledgerKey, cacheKey string) {
	if clientKey == "" {
		return "", ""
	}
	return op + ":" + clientKey, op + ":" + userID + ":" + clientKey
}

// replayWithdrawal rebuilds the response of an earlier withdrawal from the
// ledger.
func replayWithdrawal(l *domain.UserLedger, withdrawal domain.WalletTransaction) *ports.WithdrawResult {
	result := &ports.WithdrawResult{
		Withdrawal:    withdrawal,
		Balance:       l.Balance(),
		TotalDeducted: withdrawal.Amount,
	}
	if fee := l.FindTransaction(domain.FeeTransactionID(withdrawal.ID)); fee != nil {
		result.ServiceFee = *fee
		result.TotalDeducted = withdrawal.Amount.Add(fee.Amount)
	}
	return result
}

func (s *WalletServiceImpl) rejectWithdrawal(appErr *apperror.AppError) error {
	metrics.WithdrawalsRejected.WithLabelValues(appErr.Code).Inc()
	return appErr
}

// cachedResponse is best-effort: cache failures fall through to processing.
func (s *WalletServiceImpl) cachedResponse(ctx context.Context, key string) []byte {
	if s.idempCache == nil {
		return nil
	}
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, processing request")
		return nil
	}
	return cached
}

func (s *WalletServiceImpl) cacheResponse(ctx context.Context, key string, v interface{}) {
	if s.idempCache == nil || key == "" {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to encode idempotent response")
		return
	}
	if err := s.idempCache.Set(ctx, key, body, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

func countTransaction(tx domain.WalletTransaction) {
	metrics.TransactionsTotal.WithLabelValues(string(tx.Type), string(tx.Status)).Inc()
}

// asAppError passes business errors raised inside a ledger mutation through
// and wraps everything else as SYS_001.
func asAppError(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
