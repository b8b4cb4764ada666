package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"agency-ledger/internal/metrics"

	"github.com/rs/zerolog"
)

// FallbackHandler is notified whenever a store file exists but could not be
// read or decoded, and defaults were substituted. Used to write an audit entry.
type FallbackHandler func(ctx context.Context, file string, cause error)

// fallbackReporter makes a degraded read observable with a warning, a
// counter increment and the optional handler. A file that does not exist
// yet is the normal first-run state and is only logged at debug level.
type fallbackReporter struct {
	log     zerolog.Logger
	handler FallbackHandler
}

func (r *fallbackReporter) report(ctx context.Context, path string, cause error) {
	if errors.Is(cause, fs.ErrNotExist) {
		r.log.Debug().Str("file", path).Msg("store file missing, using defaults")
		return
	}
	name := filepath.Base(path)
	r.log.Warn().
		Err(cause).
		Str("file", path).
		Msg("store file unreadable, continuing with defaults")
	metrics.LedgerReadFallbacks.WithLabelValues(name).Inc()
	if r.handler != nil {
		r.handler(ctx, name, cause)
	}
}

// readFile returns the file contents. A missing file is reported as
// fs.ErrNotExist so callers can tell it apart from a corrupt one.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// preserveCorrupt moves an unreadable file aside before it gets replaced.
func preserveCorrupt(path string, now time.Time) (string, error) {
	target := path + ".corrupt-" + strconv.FormatInt(now.Unix(), 10)
	if err := os.Rename(path, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("preserving corrupt file: %w", err)
	}
	return target, nil
}
