package handler

import (
	"agency-ledger/internal/adapter/http/middleware"
	"agency-ledger/internal/core/ports"
	"agency-ledger/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	WalletSvc      ports.WalletService
	RefundSvc      ports.RefundService
	SettingsSvc    ports.SettingsService
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	AuditSvc       ports.AuditService   // nil = audit logging disabled
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	OpenAPISpec    []byte // nil = /swagger/spec answers 404
	Mode           string // gin mode; defaults to release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(maxBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check pings the ledger store and Redis
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec(deps.OpenAPISpec))
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	authHandler := NewAuthHandler(deps.AuthSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)
	refundHandler := NewRefundHandler(deps.RefundSvc)
	settingsHandler := NewSettingsHandler(deps.SettingsSvc)
	adminAuth := middleware.AdminAuth(deps.TokenSvc, deps.Logger)

	// --- Public routes ---
	v1.POST("/auth/login", rl("auth_login"), authHandler.Login)

	wallet := v1.Group("/wallet")
	{
		wallet.GET("", rl("wallet_read"), walletHandler.GetWallet)
		wallet.POST("/withdraw", rl("wallet_withdraw"), walletHandler.Withdraw)
		wallet.POST("/request", rl("wallet_request"), walletHandler.RequestDeposit)
		wallet.DELETE("/transactions/:id", rl("wallet_delete"), walletHandler.DeleteTransaction)
	}

	v1.GET("/refundable-items", rl("refunds"), refundHandler.RefundableItems)
	refunds := v1.Group("/refunds", rl("refunds"))
	{
		refunds.GET("", refundHandler.ListUserRefunds)
		refunds.POST("", refundHandler.CreateRefund)
		refunds.DELETE("/:id", refundHandler.CancelRefund)
	}

	v1.GET("/wallet-settings", rl("settings"), settingsHandler.Get)
	v1.PUT("/wallet-settings", adminAuth, rl("admin"), settingsHandler.Update)

	// --- Admin routes (JWT) ---
	admin := v1.Group("/admin", adminAuth, rl("admin"))
	{
		admin.POST("/wallet/transactions", walletHandler.RecordTransaction)
		admin.PUT("/wallet/transactions/:id/status", walletHandler.SettleTransaction)
		admin.GET("/refunds", refundHandler.ListRefunds)
		admin.PUT("/refunds/:id", refundHandler.ProcessRefund)
	}

	return r
}
