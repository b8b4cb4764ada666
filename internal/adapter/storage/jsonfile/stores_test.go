package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agency-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings() domain.WalletSettings {
	return domain.WalletSettings{
		ServiceFee: decimal.NewFromInt(5),
		Currency:   "EUR",
		WithdrawalSettings: domain.WithdrawalSettings{
			MinWithdrawal:  decimal.NewFromInt(10),
			MaxWithdrawal:  decimal.NewFromInt(10000),
			ProcessingTime: "3-5 business days",
		},
		DepositSettings: domain.DepositSettings{
			BankTransferRequiresApproval: true,
			CardDepositInstant:           true,
			PaypalDepositInstant:         true,
		},
	}
}

func TestSettingsStore_DefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-settings.json")
	calls := 0
	store := NewSettingsStore(path, defaultSettings(), func(context.Context, string, error) { calls++ }, zerolog.Nop())

	got := store.Get(context.Background())
	assert.True(t, decimal.NewFromInt(5).Equal(got.ServiceFee))
	assert.Equal(t, "EUR", got.Currency)
	assert.Zero(t, calls, "a file that was never written is not a degraded read")
}

func TestSettingsStore_CorruptFileNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serviceFee": `), 0o644))
	var files []string
	store := NewSettingsStore(path, defaultSettings(), func(_ context.Context, file string, cause error) {
		files = append(files, file)
		assert.Error(t, cause)
	}, zerolog.Nop())

	got := store.Get(context.Background())
	assert.True(t, decimal.NewFromInt(5).Equal(got.ServiceFee))
	assert.Equal(t, []string{"wallet-settings.json"}, files)
}

func TestSettingsStore_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serviceFee": 2.5, "withdrawalSettings": {"minWithdrawal": 20}}`), 0o644))
	store := NewSettingsStore(path, defaultSettings(), nil, zerolog.Nop())

	got := store.Get(context.Background())
	assert.True(t, decimal.RequireFromString("2.5").Equal(got.ServiceFee))
	assert.True(t, decimal.NewFromInt(20).Equal(got.WithdrawalSettings.MinWithdrawal))
	assert.True(t, decimal.NewFromInt(10000).Equal(got.WithdrawalSettings.MaxWithdrawal))
	assert.Equal(t, "3-5 business days", got.WithdrawalSettings.ProcessingTime)
	assert.True(t, got.DepositSettings.CardDepositInstant)
}

func TestSettingsStore_CorruptFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serviceFee": `), 0o644))
	store := NewSettingsStore(path, defaultSettings(), nil, zerolog.Nop())

	got := store.Get(context.Background())
	assert.True(t, decimal.NewFromInt(5).Equal(got.ServiceFee))
}

func TestSettingsStore_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallet-settings.json")
	store := NewSettingsStore(path, defaultSettings(), nil, zerolog.Nop())

	s := defaultSettings()
	s.ServiceFee = decimal.RequireFromString("7.5")
	s.DepositSettings.PaypalDepositInstant = false
	require.NoError(t, store.Save(context.Background(), s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"serviceFee": 7.5`)

	got := store.Get(context.Background())
	assert.True(t, s.ServiceFee.Equal(got.ServiceFee))
	assert.False(t, got.DepositSettings.PaypalDepositInstant)
}

func TestCatalogStore_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "supportPackages": [{"id": "basic", "name": "Basic", "price": "49.00", "features": ["a"]}],
  "userPackages": [{"id": "up1", "userId": "u1", "packageId": "basic", "status": "active", "purchaseDate": "2024-02-01"}]
}`), 0o644))
	store := NewCatalogStore(path, nil, zerolog.Nop())

	catalog, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.SupportPackages, 1)
	assert.True(t, decimal.NewFromInt(49).Equal(catalog.SupportPackages[0].Price.Decimal))
	require.Len(t, catalog.UserPackages, 1)
	assert.Equal(t, "basic", catalog.UserPackages[0].PackageID)
}

func TestCatalogStore_MissingIsEmpty(t *testing.T) {
	store := NewCatalogStore(filepath.Join(t.TempDir(), "packages.json"), nil, zerolog.Nop())

	catalog, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, catalog.SupportPackages)
	assert.Empty(t, catalog.UserPackages)
}

func TestAuditRepo_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	repo := NewAuditRepo(path)
	ctx := context.Background()

	for _, action := range []domain.AuditAction{domain.AuditActionWithdrawal, domain.AuditActionLedgerReadFallback} {
		require.NoError(t, repo.Create(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       "u1",
			Action:       action,
			ResourceType: "wallet",
			IPAddress:    "127.0.0.1",
			CreatedAt:    time.Now(),
		}))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var actions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		actions = append(actions, entry["action"].(string))
	}
	assert.Equal(t, []string{"WITHDRAWAL", "LEDGER_READ_FALLBACK"}, actions)
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()
	h := NewHealthCheck(dir)
	assert.Equal(t, "ledger", h.Name())
	assert.NoError(t, h.Ping(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file is removed")

	assert.Error(t, NewHealthCheck(filepath.Join(dir, "nope")).Ping(context.Background()))
}
