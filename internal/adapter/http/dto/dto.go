package dto

import (
	"agency-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// LoginRequest is the request body for admin login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// WithdrawRequest is the request body for a withdrawal.
type WithdrawRequest struct {
	UserID        string           `json:"userId" binding:"required,max=100,safe_id"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	BankAccountID string           `json:"bankAccountId" binding:"omitempty,max=100,safe_id"`
}

// DepositRequest is the request body for a fund request.
type DepositRequest struct {
	UserID      string           `json:"userId" binding:"required,max=100,safe_id"`
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
	Description string           `json:"description" binding:"required,max=500"`
}

// RecordTransactionRequest is the request body for an administrative entry.
type RecordTransactionRequest struct {
	UserID        string           `json:"userId" binding:"required,max=100,safe_id"`
	Type          string           `json:"type" binding:"required,oneof=credit debit refund"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	Description   string           `json:"description" binding:"required,max=500"`
	Status        string           `json:"status" binding:"omitempty,oneof=pending completed failed"`
	PaymentMethod string           `json:"paymentMethod" binding:"omitempty,oneof=bank_transfer card paypal mollie"`
}

// SettleRequest is the request body for settling a pending entry.
type SettleRequest struct {
	UserID string `json:"userId" binding:"required,max=100,safe_id"`
	Status string `json:"status" binding:"required"`
}

// CreateRefundRequest is the request body for a customer refund request.
type CreateRefundRequest struct {
	UserID   string           `json:"userId" binding:"required,max=100,safe_id"`
	OrderID  string           `json:"orderId" binding:"required,max=100,safe_id"`
	Amount   *decimal.Decimal `json:"amount" binding:"required"`
	Reason   string           `json:"reason" binding:"required,max=1000"`
	ItemType string           `json:"itemType" binding:"omitempty,oneof=project package"`
	ItemName string           `json:"itemName" binding:"max=200"`
}

// ProcessRefundRequest is the request body for an admin refund decision.
type ProcessRefundRequest struct {
	Status     string `json:"status" binding:"required"`
	AdminNotes string `json:"adminNotes" binding:"max=1000"`
}

// WalletSettingsUpdate is a partial update of the wallet settings.
// Omitted fields keep their current value.
type WalletSettingsUpdate struct {
	ServiceFee         *decimal.Decimal          `json:"serviceFee"`
	Currency           *string                   `json:"currency" binding:"omitempty,len=3"`
	WithdrawalSettings *WithdrawalSettingsUpdate `json:"withdrawalSettings"`
	DepositSettings    *DepositSettingsUpdate    `json:"depositSettings"`
}

type WithdrawalSettingsUpdate struct {
	MinWithdrawal  *decimal.Decimal `json:"minWithdrawal"`
	MaxWithdrawal  *decimal.Decimal `json:"maxWithdrawal"`
	ProcessingTime *string          `json:"processingTime" binding:"omitempty,max=100"`
}

type DepositSettingsUpdate struct {
	BankTransferRequiresApproval *bool `json:"bankTransferRequiresApproval"`
	CardDepositInstant           *bool `json:"cardDepositInstant"`
	PaypalDepositInstant         *bool `json:"paypalDepositInstant"`
}

// Patch converts the update into a domain patch.
func (u WalletSettingsUpdate) Patch() domain.SettingsPatch {
	p := domain.SettingsPatch{
		ServiceFee: u.ServiceFee,
		Currency:   u.Currency,
	}
	if w := u.WithdrawalSettings; w != nil {
		p.MinWithdrawal = w.MinWithdrawal
		p.MaxWithdrawal = w.MaxWithdrawal
		p.ProcessingTime = w.ProcessingTime
	}
	if d := u.DepositSettings; d != nil {
		p.BankTransferRequiresApproval = d.BankTransferRequiresApproval
		p.CardDepositInstant = d.CardDepositInstant
		p.PaypalDepositInstant = d.PaypalDepositInstant
	}
	return p
}

// DecimalOrZero dereferences an optional amount.
func DecimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
