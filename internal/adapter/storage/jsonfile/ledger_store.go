package jsonfile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// LedgerStore implements ports.LedgerRepository over a single JSON document
// holding every user's records. Mutations are serialized by one mutex and
// written with an atomic rename.
type LedgerStore struct {
	path     string
	mu       sync.RWMutex
	fallback fallbackReporter
	log      zerolog.Logger
	now      func() time.Time
}

// NewLedgerStore creates a LedgerStore for the document at path.
// onFallback may be nil.
func NewLedgerStore(path string, onFallback FallbackHandler, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{
		path:     path,
		fallback: fallbackReporter{log: log, handler: onFallback},
		log:      log,
		now:      time.Now,
	}
}

// load reads the document. Unreadable documents degrade to an empty one;
// corrupt reports whether the file exists but could not be decoded.
func (s *LedgerStore) load(ctx context.Context) (doc *userDataDocument, corrupt bool) {
	data, err := readFile(s.path)
	if err == nil {
		doc, err = parseDocument(data)
		if err == nil {
			if len(doc.skipped) > 0 {
				s.log.Warn().
					Str("file", s.path).
					Strs("records", doc.skipped).
					Msg("skipping undecodable read-only records")
			}
			return doc, false
		}
		corrupt = true
	}
	s.fallback.report(ctx, s.path, err)
	return emptyDocument(), corrupt
}

// Snapshot returns a copy of the user's records.
func (s *LedgerStore) Snapshot(ctx context.Context, userID string) (*domain.UserLedger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, _ := s.load(ctx)
	return doc.ledgerFor(userID), nil
}

// Apply runs fn against the user's records and persists the result only if
// fn succeeds.
func (s *LedgerStore) Apply(ctx context.Context, userID string, fn ports.LedgerMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, corrupt := s.load(ctx)
	ledger := doc.ledgerFor(userID)
	if err := fn(ledger); err != nil {
		return err
	}
	doc.replaceUser(ledger)

	data, err := doc.encode()
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if corrupt {
		preserved, err := preserveCorrupt(s.path, s.now())
		if err != nil {
			return err
		}
		if preserved != "" {
			s.log.Warn().Str("file", s.path).Str("preserved_as", preserved).Msg("corrupt ledger preserved before rewrite")
		}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// ListRefundRequests returns refund requests of every user, newest first.
// An empty status returns all of them.
func (s *LedgerStore) ListRefundRequests(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, _ := s.load(ctx)
	out := make([]domain.RefundRequest, 0, len(doc.refunds))
	for _, r := range doc.refunds {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	domain.SortRefundsNewestFirst(out)
	return out, nil
}

// FindRefundRequest returns the request with id, or nil if absent.
func (s *LedgerStore) FindRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, _ := s.load(ctx)
	for _, r := range doc.refunds {
		if r.ID == id {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}
