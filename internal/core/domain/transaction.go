package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, matching the stored ledger documents.
	decimal.MarshalJSONWithoutQuotes = true
}

// TransactionType is the direction of a wallet entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeRefund TransactionType = "refund"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a wallet entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

// PaymentMethod tags how money entered or left the wallet.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodPaypal       PaymentMethod = "paypal"
	PaymentMethodMollie       PaymentMethod = "mollie"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodPaypal, PaymentMethodMollie:
		return true
	}
	return false
}

// WalletTransaction is one entry of a user's wallet ledger. Amount is a
// magnitude; the direction is carried by Type.
type WalletTransaction struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Description   string            `json:"description"`
	Date          time.Time         `json:"date"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod PaymentMethod     `json:"paymentMethod,omitempty"`
	Deletable     *bool             `json:"deletable,omitempty"`
	BankAccountID string            `json:"bankAccountId,omitempty"`

	// IdempotencyKey is the client key the entry was created under,
	// scoped by operation ("withdraw:<key>").
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// IsDeletable reports whether the owner may remove the entry.
func (t *WalletTransaction) IsDeletable() bool {
	return t.Deletable != nil && *t.Deletable
}

// SetDeletable records the deletable flag explicitly.
func (t *WalletTransaction) SetDeletable(v bool) {
	t.Deletable = &v
}

// CanTransitionTo reports whether an administrator may settle the entry
// into status. Only pending entries settle, and only to a final state.
func (t *WalletTransaction) CanTransitionTo(status TransactionStatus) bool {
	if t.Status != TransactionStatusPending {
		return false
	}
	return status == TransactionStatusCompleted || status == TransactionStatusFailed
}

// FeeTransactionID derives the id of the service-fee entry paired with a
// withdrawal.
func FeeTransactionID(withdrawalID string) string {
	return withdrawalID + "_fee"
}
