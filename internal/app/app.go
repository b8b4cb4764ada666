// Package app assembles the ledger service from configuration: storage
// driver, optional Redis, services and the HTTP router.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agency-ledger/config"
	"agency-ledger/docs/api"
	httpHandler "agency-ledger/internal/adapter/http/handler"
	"agency-ledger/internal/adapter/storage/jsonfile"
	pgStorage "agency-ledger/internal/adapter/storage/postgres"
	redisStorage "agency-ledger/internal/adapter/storage/redis"
	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/internal/metrics"
	"agency-ledger/internal/service"
	"agency-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// App is a fully wired service.
type App struct {
	Router  *gin.Engine
	closers []func()
}

// Close releases the database pool and Redis client, in reverse order of
// acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires every component selected by cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if cfg.Admin.PasswordHash != "" && cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required when admin.password_hash is set")
	}

	metrics.Init()
	a := &App{}

	// The audit repository depends on the ledger driver while the ledger
	// store reports fallbacks through the audit service, so the handler
	// resolves the service late.
	var auditSvc ports.AuditService
	onFallback := func(ctx context.Context, file string, cause error) {
		if auditSvc == nil {
			return
		}
		details, _ := json.Marshal(map[string]string{"error": cause.Error()})
		auditSvc.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionLedgerReadFallback,
			ResourceType: "store",
			ResourceID:   file,
			Details:      string(details),
			IPAddress:    "system",
			CreatedAt:    time.Now(),
		})
	}

	var (
		ledgerRepo ports.LedgerRepository
		auditRepo  ports.AuditRepository
		checkers   []ports.HealthChecker
	)

	switch cfg.Ledger.Driver {
	case "postgres":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		ledgerRepo = pgStorage.NewLedgerRepo(pool)
		auditRepo = pgStorage.NewAuditRepo(pool)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
		log.Info().Msg("ledger driver: postgres")
	default:
		ledgerRepo = jsonfile.NewLedgerStore(cfg.Ledger.Path(cfg.Ledger.UserDataFile), onFallback, logger.Component(log, "ledger"))
		auditRepo = jsonfile.NewAuditRepo(cfg.Ledger.Path(cfg.Ledger.AuditFile))
		checkers = append(checkers, jsonfile.NewHealthCheck(cfg.Ledger.DataDir))
		log.Info().Str("data_dir", cfg.Ledger.DataDir).Msg("ledger driver: json")
	}
	auditSvc = service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	settingsRepo := jsonfile.NewSettingsStore(cfg.Ledger.Path(cfg.Ledger.SettingsFile), DefaultSettings(cfg.Wallet), onFallback, logger.Component(log, "settings"))
	catalogRepo := jsonfile.NewCatalogStore(cfg.Ledger.Path(cfg.Ledger.PackagesFile), onFallback, logger.Component(log, "catalog"))

	// Redis is optional: without it there is no rate limiting and
	// Idempotency-Key headers are ignored.
	var (
		idempCache     ports.IdempotencyCache
		rateLimitStore ports.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		idempCache = redisStorage.NewIdempotencyCache(rdb)
		if cfg.RateLimit.Enabled {
			rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		}
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("redis disabled: rate limiting and idempotency keys are off")
	}

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authSvc := service.NewAuthService(service.AdminAccount{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, hashSvc, tokenSvc, log)
	settingsSvc := service.NewSettingsService(settingsRepo, logger.Component(log, "settings"))
	walletSvc := service.NewWalletService(ledgerRepo, settingsRepo, idempCache, logger.Component(log, "wallet"))
	refundSvc := service.NewRefundService(ledgerRepo, catalogRepo, logger.Component(log, "refund"))

	a.Router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		WalletSvc:      walletSvc,
		RefundSvc:      refundSvc,
		SettingsSvc:    settingsSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		AuditSvc:       auditSvc,
		HealthCheckers: checkers,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		OpenAPISpec:    api.OpenAPI,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	return a, nil
}

// DefaultSettings converts the configured wallet defaults.
func DefaultSettings(w config.WalletConfig) domain.WalletSettings {
	fee, minW, maxW := w.Amounts()
	return domain.WalletSettings{
		ServiceFee: fee,
		Currency:   w.Currency,
		WithdrawalSettings: domain.WithdrawalSettings{
			MinWithdrawal:  minW,
			MaxWithdrawal:  maxW,
			ProcessingTime: w.ProcessingTime,
		},
		DepositSettings: domain.DepositSettings{
			BankTransferRequiresApproval: w.BankTransferRequiresApproval,
			CardDepositInstant:           w.CardDepositInstant,
			PaypalDepositInstant:         w.PaypalDepositInstant,
		},
	}
}
