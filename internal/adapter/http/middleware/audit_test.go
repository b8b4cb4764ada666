package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuditLog_WithdrawalSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	done := make(chan struct{})
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionWithdrawal, log.Action)
			assert.Equal(t, "wallet", log.ResourceType)
			assert.Equal(t, "u1", log.UserID)
			close(done)
		},
	)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/withdraw", func(c *gin.Context) {
		SetUserID(c, "u1")
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdraw", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("audit not called")
	}
}

func TestAuditLog_AdminSettlementCarriesResourceAndAdmin(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	var got *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, log *domain.AuditLog) {
		got = log
	})

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.PUT("/api/v1/admin/wallet/transactions/:id/status", func(c *gin.Context) {
		c.Set(CtxAdminSubject, "root")
		SetUserID(c, "u7")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/admin/wallet/transactions/wt_1/status", nil))

	require.NotNil(t, got)
	assert.Equal(t, domain.AuditActionTransactionSettle, got.Action)
	assert.Equal(t, "wt_1", got.ResourceID)
	assert.Equal(t, "u7", got.UserID)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(got.Details), &details))
	assert.Equal(t, "root", details["admin"])
}

func TestAuditLog_UserFromQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	var got *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, log *domain.AuditLog) {
		got = log
	})

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.DELETE("/api/v1/refunds/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/refunds/ref_9?userId=u3", nil))

	require.NotNil(t, got)
	assert.Equal(t, domain.AuditActionRefundCancel, got.Action)
	assert.Equal(t, "u3", got.UserID)
	assert.Equal(t, "ref_9", got.ResourceID)
}

func TestAuditLog_SkipsGET(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	// No expectations - Log should NOT be called for GET

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.GET("/api/v1/wallet", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"balance": 100})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet?userId=u1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	// No expectations - Log should NOT be called for 4xx

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/withdraw", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdraw", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapRouteToAction(t *testing.T) {
	tests := []struct {
		route    string
		method   string
		action   domain.AuditAction
		resource string
	}{
		{"/api/v1/auth/login", "POST", domain.AuditActionLogin, "session"},
		{"/api/v1/wallet/withdraw", "POST", domain.AuditActionWithdrawal, "wallet"},
		{"/api/v1/wallet/request", "POST", domain.AuditActionDepositRequest, "wallet"},
		{"/api/v1/wallet/transactions/:id", "DELETE", domain.AuditActionTransactionDelete, "transaction"},
		{"/api/v1/admin/wallet/transactions", "POST", domain.AuditActionTransactionCreate, "transaction"},
		{"/api/v1/admin/wallet/transactions/:id/status", "PUT", domain.AuditActionTransactionSettle, "transaction"},
		{"/api/v1/refunds", "POST", domain.AuditActionRefundRequest, "refund"},
		{"/api/v1/refunds/:id", "DELETE", domain.AuditActionRefundCancel, "refund"},
		{"/api/v1/admin/refunds/:id", "PUT", domain.AuditActionRefundProcess, "refund"},
		{"/api/v1/wallet-settings", "PUT", domain.AuditActionSettingsUpdate, "settings"},
		{"/api/v1/wallet-settings", "POST", "", ""},
		{"/unknown", "POST", "", ""},
	}

	for _, tc := range tests {
		action, resource := mapRouteToAction(tc.route, tc.method)
		assert.Equal(t, tc.action, action, "route=%s method=%s", tc.route, tc.method)
		assert.Equal(t, tc.resource, resource, "route=%s method=%s", tc.route, tc.method)
	}
}
