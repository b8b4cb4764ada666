package ports

import (
	"context"

	"agency-ledger/internal/core/domain"
)

// LedgerMutation mutates a user's ledger in memory. Returning an error
// discards every change made by the mutation.
type LedgerMutation func(ledger *domain.UserLedger) error

// LedgerRepository is the keyed per-user ledger store.
// Apply serializes mutations of the same user and persists all changes of
// one mutation in a single write.
type LedgerRepository interface {
	Snapshot(ctx context.Context, userID string) (*domain.UserLedger, error)
	Apply(ctx context.Context, userID string, fn LedgerMutation) error
	// Admin queries across users.
	ListRefundRequests(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error)
	FindRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error)
}

// SettingsRepository persists the wallet settings document.
// Get never fails; unreadable settings degrade to defaults.
type SettingsRepository interface {
	Get(ctx context.Context) domain.WalletSettings
	Save(ctx context.Context, settings domain.WalletSettings) error
}

// CatalogRepository reads the package catalogue.
type CatalogRepository interface {
	Load(ctx context.Context) (*domain.Catalog, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
