package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agency-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// SettingsStore implements ports.SettingsRepository over wallet-settings.json.
// The file is read on every call; there is no cached copy.
type SettingsStore struct {
	path     string
	defaults domain.WalletSettings
	mu       sync.RWMutex
	fallback fallbackReporter
}

// NewSettingsStore creates a SettingsStore. defaults are returned whenever
// the file is missing or unreadable and fill keys absent from the file.
func NewSettingsStore(path string, defaults domain.WalletSettings, onFallback FallbackHandler, log zerolog.Logger) *SettingsStore {
	return &SettingsStore{
		path:     path,
		defaults: defaults,
		fallback: fallbackReporter{log: log, handler: onFallback},
	}
}

// Get returns the current settings.
func (s *SettingsStore) Get(ctx context.Context) domain.WalletSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := readFile(s.path)
	if err != nil {
		s.fallback.report(ctx, s.path, err)
		return s.defaults
	}

	settings := s.defaults
	if err := json.Unmarshal(data, &settings); err != nil {
		s.fallback.report(ctx, s.path, fmt.Errorf("decoding %s: %w", s.path, err))
		return s.defaults
	}
	return settings
}

// Save replaces the settings document.
func (s *SettingsStore) Save(ctx context.Context, settings domain.WalletSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
