package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxUserID carries the wallet owner a handler acted on, for auditing.
const CtxUserID = "user_id"

// SetUserID records the wallet owner of the current request.
func SetUserID(c *gin.Context, userID string) {
	c.Set(CtxUserID, userID)
}

// AuditLog creates an audit middleware that logs successful write operations.
// It maps the matched route template and method to an audit action.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		userID := c.GetString(CtxUserID)
		if userID == "" {
			userID = c.Query("userId")
		}

		fields := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}
		if admin := AdminSubject(c); admin != "" {
			fields["admin"] = admin
		}
		if rid := c.GetString(CtxRequestID); rid != "" {
			fields["request_id"] = rid
		}
		details, _ := json.Marshal(fields)

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/auth/login" && method == http.MethodPost:
		return domain.AuditActionLogin, "session"
	case route == "/api/v1/wallet/withdraw" && method == http.MethodPost:
		return domain.AuditActionWithdrawal, "wallet"
	case route == "/api/v1/wallet/request" && method == http.MethodPost:
		return domain.AuditActionDepositRequest, "wallet"
	case route == "/api/v1/wallet/transactions/:id" && method == http.MethodDelete:
		return domain.AuditActionTransactionDelete, "transaction"
	case route == "/api/v1/admin/wallet/transactions" && method == http.MethodPost:
		return domain.AuditActionTransactionCreate, "transaction"
	case route == "/api/v1/admin/wallet/transactions/:id/status" && method == http.MethodPut:
		return domain.AuditActionTransactionSettle, "transaction"
	case route == "/api/v1/refunds" && method == http.MethodPost:
		return domain.AuditActionRefundRequest, "refund"
	case route == "/api/v1/refunds/:id" && method == http.MethodDelete:
		return domain.AuditActionRefundCancel, "refund"
	case route == "/api/v1/admin/refunds/:id" && method == http.MethodPut:
		return domain.AuditActionRefundProcess, "refund"
	case route == "/api/v1/wallet-settings" && method == http.MethodPut:
		return domain.AuditActionSettingsUpdate, "settings"
	}
	return "", ""
}
