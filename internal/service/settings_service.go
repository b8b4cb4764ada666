package service

import (
	"context"
	"fmt"
	"sync"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"
	"agency-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// SettingsServiceImpl implements ports.SettingsService.
type SettingsServiceImpl struct {
	repo ports.SettingsRepository
	log  zerolog.Logger

	// mu serializes Update so concurrent patches are not lost.
	mu sync.Mutex
}

// NewSettingsService creates a new SettingsServiceImpl.
func NewSettingsService(repo ports.SettingsRepository, log zerolog.Logger) *SettingsServiceImpl {
	return &SettingsServiceImpl{repo: repo, log: log}
}

// Get returns the current settings; it never fails.
func (s *SettingsServiceImpl) Get(ctx context.Context) domain.WalletSettings {
	return s.repo.Get(ctx)
}

// Update merges patch into the current settings and saves the result.
func (s *SettingsServiceImpl) Update(ctx context.Context, patch domain.SettingsPatch) (domain.WalletSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.repo.Get(ctx).Merge(patch)
	if err := merged.Validate(); err != nil {
		return domain.WalletSettings{}, apperror.Validation(err.Error())
	}
	if err := s.repo.Save(ctx, merged); err != nil {
		return domain.WalletSettings{}, apperror.InternalError(fmt.Errorf("save settings: %w", err))
	}

	s.log.Info().
		Str("service_fee", merged.ServiceFee.String()).
		Str("min_withdrawal", merged.WithdrawalSettings.MinWithdrawal.String()).
		Str("max_withdrawal", merged.WithdrawalSettings.MaxWithdrawal.String()).
		Msg("wallet settings updated")

	return merged, nil
}
