package ports

import (
	"context"
	"time"

	"agency-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// IdempotencyCache stores responses of money-moving requests.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimitStore counts requests per key in a fixed window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// WalletService owns balances, withdrawals, deposit requests and settlement.
type WalletService interface {
	GetWallet(ctx context.Context, userID string) (*WalletOverview, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawResult, error)
	RequestDeposit(ctx context.Context, req DepositRequest) (*domain.WalletTransaction, error)
	RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*TransactionResult, error)
	SettleTransaction(ctx context.Context, req SettleRequest) (*TransactionResult, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) (decimal.Decimal, error)
}

// WalletOverview is the balance plus the user's entries, newest first.
type WalletOverview struct {
	Balance      decimal.Decimal            `json:"balance"`
	Transactions []domain.WalletTransaction `json:"transactions"`
}

// WithdrawRequest holds validated input for a withdrawal.
type WithdrawRequest struct {
	UserID         string
	Amount         decimal.Decimal
	BankAccountID  string
	IdempotencyKey string
}

// WithdrawResult is returned to the caller after a successful withdrawal.
type WithdrawResult struct {
	Withdrawal    domain.WalletTransaction `json:"withdrawal"`
	ServiceFee    domain.WalletTransaction `json:"serviceFee"`
	Balance       decimal.Decimal          `json:"balance"`
	TotalDeducted decimal.Decimal          `json:"totalDeducted"`
}

// InsufficientBalanceDetails explains a rejected withdrawal.
type InsufficientBalanceDetails struct {
	Required  decimal.Decimal    `json:"required"`
	Available decimal.Decimal    `json:"available"`
	Breakdown WithdrawalBreakdown `json:"breakdown"`
}

type WithdrawalBreakdown struct {
	Withdrawal decimal.Decimal `json:"withdrawal"`
	ServiceFee decimal.Decimal `json:"serviceFee"`
}

// DepositRequest holds input for a customer fund request.
type DepositRequest struct {
	UserID         string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// RecordTransactionRequest is an administrative ledger entry.
type RecordTransactionRequest struct {
	UserID        string
	Type          domain.TransactionType
	Amount        decimal.Decimal
	Description   string
	Status        domain.TransactionStatus // empty selects the default
	PaymentMethod domain.PaymentMethod
}

// SettleRequest moves a pending entry to a final state.
type SettleRequest struct {
	UserID        string
	TransactionID string
	Status        domain.TransactionStatus
}

// TransactionResult is an entry together with the resulting balance.
type TransactionResult struct {
	Transaction domain.WalletTransaction `json:"transaction"`
	Balance     decimal.Decimal          `json:"balance"`
}

// RefundService owns refund requests and refund eligibility.
type RefundService interface {
	RefundableItems(ctx context.Context, userID string) ([]domain.RefundableItem, error)
	ListUserRefunds(ctx context.Context, userID string) ([]domain.RefundRequest, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*domain.RefundRequest, error)
	CancelRefund(ctx context.Context, userID, refundID string) error
	ListRefunds(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error)
	ProcessRefund(ctx context.Context, req ProcessRefundRequest) (*domain.RefundRequest, error)
}

// CreateRefundRequest holds input for a new refund request.
type CreateRefundRequest struct {
	UserID   string
	OrderID  string
	Amount   decimal.Decimal
	Reason   string
	ItemType string
	ItemName string
}

// ProcessRefundRequest is an administrator's decision on a refund request.
type ProcessRefundRequest struct {
	RefundID    string
	Status      domain.RefundStatus
	AdminNotes  string
	ProcessedBy string
}

// SettingsService reads and updates the wallet settings.
type SettingsService interface {
	Get(ctx context.Context) domain.WalletSettings
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.WalletSettings, error)
}

// AuthService authenticates the back-office administrator.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// AuditService records audited actions asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
