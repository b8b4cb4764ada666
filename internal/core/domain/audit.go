package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionWithdrawal         AuditAction = "WITHDRAWAL"
	AuditActionDepositRequest     AuditAction = "DEPOSIT_REQUEST"
	AuditActionTransactionCreate  AuditAction = "TRANSACTION_CREATE"
	AuditActionTransactionSettle  AuditAction = "TRANSACTION_SETTLE"
	AuditActionTransactionDelete  AuditAction = "TRANSACTION_DELETE"
	AuditActionRefundRequest      AuditAction = "REFUND_REQUEST"
	AuditActionRefundCancel       AuditAction = "REFUND_CANCEL"
	AuditActionRefundProcess      AuditAction = "REFUND_PROCESS"
	AuditActionSettingsUpdate     AuditAction = "SETTINGS_UPDATE"
	AuditActionLogin              AuditAction = "LOGIN"
	AuditActionLedgerReadFallback AuditAction = "LEDGER_READ_FALLBACK"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       string      `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
