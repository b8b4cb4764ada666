package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Balance folds the completed entries of a ledger into a net amount.
// Credits and refunds add, debits subtract, anything else contributes nothing.
func Balance(txs []WalletTransaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range txs {
		if t.Status != TransactionStatusCompleted {
			continue
		}
		switch t.Type {
		case TransactionTypeCredit, TransactionTypeRefund:
			balance = balance.Add(t.Amount)
		case TransactionTypeDebit:
			balance = balance.Sub(t.Amount)
		}
	}
	return balance
}

// UserLedger is everything the ledger store holds for one user.
// ProjectRequests and Payments are read-only inputs of the refund scanner;
// stores ignore changes made to them inside Apply.
type UserLedger struct {
	UserID          string
	Transactions    []WalletTransaction
	RefundRequests  []RefundRequest
	ProjectRequests []ProjectRequest
	Payments        []Payment
}

// NewUserLedger returns an empty ledger for userID.
func NewUserLedger(userID string) *UserLedger {
	return &UserLedger{
		UserID:          userID,
		Transactions:    []WalletTransaction{},
		RefundRequests:  []RefundRequest{},
		ProjectRequests: []ProjectRequest{},
		Payments:        []Payment{},
	}
}

// Balance returns the user's current balance.
func (l *UserLedger) Balance() decimal.Decimal {
	return Balance(l.Transactions)
}

// Append adds entries in order.
func (l *UserLedger) Append(txs ...WalletTransaction) {
	l.Transactions = append(l.Transactions, txs...)
}

// FindTransaction returns a pointer into the ledger, or nil.
func (l *UserLedger) FindTransaction(id string) *WalletTransaction {
	for i := range l.Transactions {
		if l.Transactions[i].ID == id {
			return &l.Transactions[i]
		}
	}
	return nil
}

// FindByIdempotencyKey returns the entry created under key, or nil.
func (l *UserLedger) FindByIdempotencyKey(key string) *WalletTransaction {
	if key == "" {
		return nil
	}
	for i := range l.Transactions {
		if l.Transactions[i].IdempotencyKey == key {
			return &l.Transactions[i]
		}
	}
	return nil
}

// RemoveTransaction deletes the entry with id and reports whether it existed.
func (l *UserLedger) RemoveTransaction(id string) bool {
	for i := range l.Transactions {
		if l.Transactions[i].ID == id {
			l.Transactions = append(l.Transactions[:i], l.Transactions[i+1:]...)
			return true
		}
	}
	return false
}

// FindRefundRequest returns a pointer into the ledger, or nil.
func (l *UserLedger) FindRefundRequest(id string) *RefundRequest {
	for i := range l.RefundRequests {
		if l.RefundRequests[i].ID == id {
			return &l.RefundRequests[i]
		}
	}
	return nil
}

// RemoveRefundRequest deletes the request with id and reports whether it existed.
func (l *UserLedger) RemoveRefundRequest(id string) bool {
	for i := range l.RefundRequests {
		if l.RefundRequests[i].ID == id {
			l.RefundRequests = append(l.RefundRequests[:i], l.RefundRequests[i+1:]...)
			return true
		}
	}
	return false
}

// HasPendingRefund reports whether a pending refund already references orderID.
func (l *UserLedger) HasPendingRefund(orderID string) bool {
	for _, r := range l.RefundRequests {
		if r.OrderID == orderID && r.Status == RefundStatusPending {
			return true
		}
	}
	return false
}

// TransactionsNewestFirst returns a sorted copy of the entries.
func (l *UserLedger) TransactionsNewestFirst() []WalletTransaction {
	out := make([]WalletTransaction, len(l.Transactions))
	copy(out, l.Transactions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// SortRefundsNewestFirst orders refund requests by request date, newest first.
func SortRefundsNewestFirst(refunds []RefundRequest) {
	sort.SliceStable(refunds, func(i, j int) bool {
		return refunds[i].RequestDate.After(refunds[j].RequestDate)
	})
}
