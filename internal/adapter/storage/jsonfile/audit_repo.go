package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"agency-ledger/internal/core/domain"
)

// AuditRepo appends audit entries to a JSON-lines file.
type AuditRepo struct {
	path string
	mu   sync.Mutex
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(path string) *AuditRepo {
	return &AuditRepo{path: path}
}

// Create appends one entry.
func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
