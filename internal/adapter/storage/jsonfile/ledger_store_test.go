package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*LedgerStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user-data.json")
	return NewLedgerStore(path, nil, zerolog.Nop()), path
}

func credit(userID, amount string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:     domain.NewTransactionID(),
		UserID: userID,
		Type:   domain.TransactionTypeCredit,
		Amount: decimal.RequireFromString(amount),
		Status: domain.TransactionStatusCompleted,
		Date:   time.Now().UTC(),
	}
}

func fallbackCount(name string) float64 {
	return testutil.ToFloat64(metrics.LedgerReadFallbacks.WithLabelValues(name))
}

func TestLedgerStore_ApplyAndSnapshot(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "100"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Apply(ctx, "u2", func(l *domain.UserLedger) error {
		l.Append(credit("u2", "7"))
		return nil
	}))

	l1, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, l1.Transactions, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(l1.Balance()))

	l2, err := store.Snapshot(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(l2.Balance()))

	_, err = os.Stat(path)
	require.NoError(t, err, "document is written")
}

func TestLedgerStore_ApplyErrorDiscardsChanges(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "10"))
		return nil
	}))

	boom := errors.New("rejected")
	err := store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "999"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	l, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, l.Transactions, 1)
}

func TestLedgerStore_PreservesForeignKeys(t *testing.T) {
	store, path := newTestStore(t)
	seed := `{
  "users": [{"id": "u1", "name": "Ada"}],
  "projectRequests": [{"id": "p1", "userId": "u1", "type": "Website", "budget": "1000", "status": "pending", "extra": true}],
  "payments": [{"id": "pay1", "userId": "u1", "amount": 300, "projectRequestId": "p1"}],
  "purchases": [],
  "walletTransactions": [{"id": "wt_old", "userId": "u9", "type": "credit", "amount": 5, "description": "seed", "date": "2024-01-01T00:00:00.000Z", "status": "completed"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	ctx := context.Background()
	l, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, l.ProjectRequests, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(l.ProjectRequests[0].Budget.Decimal))
	require.Len(t, l.Payments, 1)
	assert.Equal(t, "p1", l.Payments[0].ProjectRequestID)

	require.NoError(t, store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "1"))
		l.ProjectRequests = nil
		return nil
	}))

	var raw map[string]json.RawMessage
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, string(raw["users"]), "Ada")
	assert.Contains(t, string(raw["projectRequests"]), `"extra": true`, "read-only collections are written back verbatim")
	assert.Contains(t, string(raw["walletTransactions"]), "wt_old", "other users' entries are kept")
	assert.Contains(t, raw, "refundRequests")
}

func TestLedgerStore_MalformedReadOnlyRecordIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lenient-user-data.json")
	seed := `{
  "users": [{"id": "u1", "name": "Ada"}],
  "projectRequests": [
    {"id": "p1", "userId": "u1", "type": "Website", "budget": "1000", "status": "pending"},
    {"id": "p2", "userId": "u1", "type": 5, "budget": "200", "status": "pending"}
  ],
  "payments": [{"id": "pay1", "userId": ["u1"], "amount": 3}, {"id": "pay2", "userId": "u1", "amount": 300, "projectRequestId": "p1"}],
  "walletTransactions": [{"id": "wt_a", "userId": "u1", "type": "credit", "amount": 10, "description": "seed", "date": "2024-01-01T00:00:00.000Z", "status": "completed"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))
	notified := 0
	store := NewLedgerStore(path, func(context.Context, string, error) { notified++ }, zerolog.Nop())

	before := fallbackCount("lenient-user-data.json")
	l, err := store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(l.Balance()))
	require.Len(t, l.ProjectRequests, 1)
	assert.Equal(t, "p1", l.ProjectRequests[0].ID)
	require.Len(t, l.Payments, 1)
	assert.Equal(t, "pay2", l.Payments[0].ID)
	assert.Equal(t, before, fallbackCount("lenient-user-data.json"))
	assert.Zero(t, notified)

	require.NoError(t, store.Apply(context.Background(), "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "1"))
		return nil
	}))
	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches)

	var raw map[string]json.RawMessage
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, string(raw["users"]), "Ada")
	assert.Contains(t, string(raw["projectRequests"]), `"type": 5`)
	assert.Contains(t, string(raw["walletTransactions"]), "wt_a")

	l, err = store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(11).Equal(l.Balance()))
}

func TestParseDocument_RecordsSkippedEntries(t *testing.T) {
	doc, err := parseDocument([]byte(`{"projectRequests": {"not": "a list"}, "payments": [{"id": 1}, {"id": "ok"}]}`))
	require.NoError(t, err)
	assert.Empty(t, doc.projects)
	require.Len(t, doc.payments, 1)
	assert.Equal(t, "ok", doc.payments[0].ID)
	require.Len(t, doc.skipped, 2)
	assert.Contains(t, doc.skipped[0], "projectRequests")
	assert.Contains(t, doc.skipped[1], "payments[0]")
}

func TestLedgerStore_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-user-data.json")
	var notified []string
	store := NewLedgerStore(path, func(_ context.Context, file string, _ error) {
		notified = append(notified, file)
	}, zerolog.Nop())

	before := fallbackCount("missing-user-data.json")
	for i := 0; i < 3; i++ {
		l, err := store.Snapshot(context.Background(), "u1")
		require.NoError(t, err)
		assert.Empty(t, l.Transactions)
		assert.True(t, l.Balance().IsZero())
	}
	assert.Equal(t, before, fallbackCount("missing-user-data.json"))
	assert.Empty(t, notified)

	require.NoError(t, store.Apply(context.Background(), "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "4"))
		return nil
	}))
	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches, "nothing to preserve on first write")
}

func TestLedgerStore_CorruptFileNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken-user-data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2`), 0o644))
	var notified []string
	store := NewLedgerStore(path, func(_ context.Context, file string, cause error) {
		notified = append(notified, file)
		assert.Error(t, cause)
	}, zerolog.Nop())

	before := fallbackCount("broken-user-data.json")
	_, err := store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, before+1, fallbackCount("broken-user-data.json"))
	assert.Equal(t, []string{"broken-user-data.json"}, notified)
}

func TestLedgerStore_CorruptFilePreservedOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt-user-data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"walletTransactions": [ {"id": `), 0o644))

	store := NewLedgerStore(path, nil, zerolog.Nop())
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	before := fallbackCount("corrupt-user-data.json")
	l, err := store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, l.Transactions)
	assert.Equal(t, before+1, fallbackCount("corrupt-user-data.json"))

	require.NoError(t, store.Apply(context.Background(), "u1", func(l *domain.UserLedger) error {
		l.Append(credit("u1", "3"))
		return nil
	}))

	preserved, err := os.ReadFile(path + ".corrupt-1700000000")
	require.NoError(t, err, "corrupt document is moved aside")
	assert.Contains(t, string(preserved), `{"id": `)

	l, err = store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, l.Transactions, 1)
}

func TestLedgerStore_BadAmountIsCorrupt(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"walletTransactions": [{"id": "x", "userId": "u1", "amount": "lots"}]}`), 0o644))

	l, err := store.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, l.Transactions)
}

func TestLedgerStore_ConcurrentApplyNoLostUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
				l.Append(credit("u1", "1"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	l, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, l.Transactions, writers)
	assert.True(t, decimal.NewFromInt(writers).Equal(l.Balance()))
}

func TestLedgerStore_RefundQueries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Apply(ctx, "u1", func(l *domain.UserLedger) error {
		l.RefundRequests = append(l.RefundRequests,
			domain.RefundRequest{ID: "ref_a", OrderID: "o1", Status: domain.RefundStatusPending, RequestDate: now.Add(-2 * time.Hour)},
			domain.RefundRequest{ID: "ref_b", OrderID: "o2", Status: domain.RefundStatusApproved, RequestDate: now.Add(-time.Hour)},
		)
		return nil
	}))
	require.NoError(t, store.Apply(ctx, "u2", func(l *domain.UserLedger) error {
		l.RefundRequests = append(l.RefundRequests,
			domain.RefundRequest{ID: "ref_c", OrderID: "o3", Status: domain.RefundStatusPending, RequestDate: now},
		)
		return nil
	}))

	all, err := store.ListRefundRequests(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"ref_c", "ref_b", "ref_a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "u1", all[1].UserID, "owner is stamped on write")

	pending, err := store.ListRefundRequests(ctx, domain.RefundStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	found, err := store.FindRefundRequest(ctx, "ref_c")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u2", found.UserID)

	missing, err := store.FindRefundRequest(ctx, "ref_zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedgerStore_CancelledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Apply(ctx, "u1", func(*domain.UserLedger) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	_, err = store.Snapshot(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}
