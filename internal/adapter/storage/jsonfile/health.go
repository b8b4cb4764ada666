package jsonfile

import (
	"context"
	"fmt"
	"os"
)

// HealthCheck implements ports.HealthChecker for the data directory.
type HealthCheck struct {
	dir string
}

// NewHealthCheck creates a data directory health checker.
func NewHealthCheck(dir string) *HealthCheck {
	return &HealthCheck{dir: dir}
}

// Ping checks that the data directory exists and is writable.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(h.dir)
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", h.dir)
	}

	probe, err := os.CreateTemp(h.dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "ledger"
}
