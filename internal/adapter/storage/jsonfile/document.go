package jsonfile

import (
	"encoding/json"
	"fmt"

	"agency-ledger/internal/core/domain"
)

// Top-level keys of user-data.json. Only the wallet collections are owned
// by this service; every other key is carried through untouched.
const (
	keyWalletTransactions = "walletTransactions"
	keyRefundRequests     = "refundRequests"
	keyProjectRequests    = "projectRequests"
	keyPayments           = "payments"
)

var emptyDocumentKeys = []string{
	"users", keyProjectRequests, keyPayments, "purchases",
	"paymentMethods", keyWalletTransactions, keyRefundRequests,
}

// userDataDocument is the decoded user-data.json.
type userDataDocument struct {
	raw          map[string]json.RawMessage
	transactions []domain.WalletTransaction
	refunds      []domain.RefundRequest
	projects     []domain.ProjectRequest
	payments     []domain.Payment

	// skipped lists read-only records that could not be decoded.
	skipped []string
}

func emptyDocument() *userDataDocument {
	raw := make(map[string]json.RawMessage, len(emptyDocumentKeys))
	for _, k := range emptyDocumentKeys {
		raw[k] = json.RawMessage("[]")
	}
	return &userDataDocument{
		raw:          raw,
		transactions: []domain.WalletTransaction{},
		refunds:      []domain.RefundRequest{},
		projects:     []domain.ProjectRequest{},
		payments:     []domain.Payment{},
	}
}

func parseDocument(data []byte) (*userDataDocument, error) {
	doc := &userDataDocument{}
	if err := json.Unmarshal(data, &doc.raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc.raw == nil {
		return nil, fmt.Errorf("decoding document: not an object")
	}
	if err := decodeKey(doc.raw, keyWalletTransactions, &doc.transactions); err != nil {
		return nil, err
	}
	if err := decodeKey(doc.raw, keyRefundRequests, &doc.refunds); err != nil {
		return nil, err
	}
	doc.projects = decodeRecords[domain.ProjectRequest](doc.raw, keyProjectRequests, &doc.skipped)
	doc.payments = decodeRecords[domain.Payment](doc.raw, keyPayments, &doc.skipped)
	return doc, nil
}

func decodeKey[T any](raw map[string]json.RawMessage, key string, dst *[]T) error {
	*dst = []T{}
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// decodeRecords decodes a collection owned by another service one record at
// a time. Records that do not decode are left out and described in skipped;
// the raw collection itself is never rewritten.
func decodeRecords[T any](raw map[string]json.RawMessage, key string, skipped *[]string) []T {
	out := []T{}
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		*skipped = append(*skipped, fmt.Sprintf("%s: %v", key, err))
		return out
	}
	for i, item := range items {
		var rec T
		if err := json.Unmarshal(item, &rec); err != nil {
			*skipped = append(*skipped, fmt.Sprintf("%s[%d]: %v", key, i, err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ledgerFor copies the user's records out of the document.
func (d *userDataDocument) ledgerFor(userID string) *domain.UserLedger {
	l := domain.NewUserLedger(userID)
	for _, t := range d.transactions {
		if t.UserID == userID {
			l.Transactions = append(l.Transactions, t)
		}
	}
	for _, r := range d.refunds {
		if r.UserID == userID {
			l.RefundRequests = append(l.RefundRequests, r)
		}
	}
	for _, p := range d.projects {
		if p.UserID == userID {
			l.ProjectRequests = append(l.ProjectRequests, p)
		}
	}
	for _, p := range d.payments {
		if p.UserID == userID {
			l.Payments = append(l.Payments, p)
		}
	}
	return l
}

// replaceUser swaps the user's wallet records for those in l. Records of
// other users keep their order; the user's records follow them.
func (d *userDataDocument) replaceUser(l *domain.UserLedger) {
	txs := make([]domain.WalletTransaction, 0, len(d.transactions)+len(l.Transactions))
	for _, t := range d.transactions {
		if t.UserID != l.UserID {
			txs = append(txs, t)
		}
	}
	for _, t := range l.Transactions {
		t.UserID = l.UserID
		txs = append(txs, t)
	}
	d.transactions = txs

	refunds := make([]domain.RefundRequest, 0, len(d.refunds)+len(l.RefundRequests))
	for _, r := range d.refunds {
		if r.UserID != l.UserID {
			refunds = append(refunds, r)
		}
	}
	for _, r := range l.RefundRequests {
		r.UserID = l.UserID
		refunds = append(refunds, r)
	}
	d.refunds = refunds
}

func (d *userDataDocument) encode() ([]byte, error) {
	txs, err := json.Marshal(d.transactions)
	if err != nil {
		return nil, fmt.Errorf("encoding transactions: %w", err)
	}
	refunds, err := json.Marshal(d.refunds)
	if err != nil {
		return nil, fmt.Errorf("encoding refund requests: %w", err)
	}
	d.raw[keyWalletTransactions] = txs
	d.raw[keyRefundRequests] = refunds

	out, err := json.MarshalIndent(d.raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return out, nil
}
