package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"

	"agency-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// CatalogStore implements ports.CatalogRepository over packages.json.
type CatalogStore struct {
	path     string
	fallback fallbackReporter
}

// NewCatalogStore creates a read-only catalogue store.
func NewCatalogStore(path string, onFallback FallbackHandler, log zerolog.Logger) *CatalogStore {
	return &CatalogStore{
		path:     path,
		fallback: fallbackReporter{log: log, handler: onFallback},
	}
}

// Load returns the catalogue; an unreadable file yields an empty one.
func (s *CatalogStore) Load(ctx context.Context) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	empty := &domain.Catalog{
		SupportPackages: []domain.SupportPackage{},
		UserPackages:    []domain.UserPackage{},
	}

	data, err := readFile(s.path)
	if err != nil {
		s.fallback.report(ctx, s.path, err)
		return empty, nil
	}

	var catalog domain.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		s.fallback.report(ctx, s.path, fmt.Errorf("decoding %s: %w", s.path, err))
		return empty, nil
	}
	return &catalog, nil
}
