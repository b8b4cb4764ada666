package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"agency-ledger/config"
	"agency-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminUser     = "admin"
	adminPassword = "correct-horse-battery"
)

const seedUserData = `{
  "users": [{"id": "u1"}, {"id": "u2"}],
  "projectRequests": [
    {"id": "p1", "userId": "u1", "type": "Website", "budget": "1000", "status": "pending", "submittedDate": "2024-01-10"},
    {"id": "p2", "userId": "u1", "type": "App", "budget": 2000, "status": "in_progress"}
  ],
  "payments": [
    {"id": "pay1", "userId": "u1", "amount": 300, "projectRequestId": "p1"}
  ],
  "purchases": [],
  "paymentMethods": [],
  "walletTransactions": [
    {"id": "t1", "userId": "u1", "type": "credit", "amount": 100, "description": "Top up", "date": "2024-01-01T00:00:00Z", "status": "completed", "paymentMethod": "card"},
    {"id": "t2", "userId": "u2", "type": "credit", "amount": 3, "description": "Top up", "date": "2024-01-01T00:00:00Z", "status": "completed", "paymentMethod": "card"}
  ],
  "refundRequests": []
}`

const seedPackages = `{
  "supportPackages": [{"id": "basic", "name": "Basic Support", "price": 49}],
  "userPackages": [{"id": "up1", "userId": "u1", "packageId": "basic", "status": "active", "purchaseDate": "2024-02-01"}]
}`

type testEnv struct {
	server  *httptest.Server
	dataDir string
	cfg     *config.Config
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "user-data.json"), []byte(seedUserData), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "packages.json"), []byte(seedPackages), 0o644))

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	hash, err := service.NewArgon2HashService().Hash(adminPassword)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test", MaxBodyBytes: 1 << 20},
		Ledger: config.LedgerConfig{
			Driver:       "json",
			DataDir:      dataDir,
			UserDataFile: "user-data.json",
			SettingsFile: "wallet-settings.json",
			PackagesFile: "packages.json",
			AuditFile:    "audit.log",
		},
		Redis: config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port},
		JWT:   config.JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "agency-ledger"},
		Admin: config.AdminConfig{Username: adminUser, PasswordHash: hash},
		Wallet: config.WalletConfig{
			ServiceFee:                   "5",
			Currency:                     "EUR",
			MinWithdrawal:                "10",
			MaxWithdrawal:                "10000",
			ProcessingTime:               "3-5 business days",
			BankTransferRequiresApproval: true,
			CardDepositInstant:           true,
			PaypalDepositInstant:         true,
		},
		RateLimit: config.RateLimitConfig{Enabled: true},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, dataDir: dataDir, cfg: cfg}
}

func withoutRateLimit(cfg *config.Config) { cfg.RateLimit.Enabled = false }

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) adminToken(t *testing.T) map[string]string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": adminUser,
		"password": adminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, status, body)
	token := data(t, body)["token"].(string)
	require.NotEmpty(t, token)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (e *testEnv) balance(t *testing.T, userID string) float64 {
	t.Helper()
	status, body := e.do(t, http.MethodGet, "/api/v1/wallet?userId="+userID, nil, nil)
	require.Equal(t, http.StatusOK, status, body)
	return data(t, body)["balance"].(float64)
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func dataList(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()
	d, ok := body["data"].([]interface{})
	require.True(t, ok, "response has no data array: %v", body)
	return d
}

func TestBuild_RejectsHashWithoutSecret(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{Username: "admin", PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"}}

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Contains(t, deps, "ledger")
	assert.Contains(t, deps, "redis")

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestWithdraw_DeductsAmountPlusFee(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, 100.0, env.balance(t, "u1"))

	status, body := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{
		"userId": "u1",
		"amount": 50,
	}, nil)
	require.Equal(t, http.StatusCreated, status, body)

	result := data(t, body)
	assert.Equal(t, 95.0, result["balance"])
	assert.Equal(t, 55.0, result["totalDeducted"])
	withdrawal := result["withdrawal"].(map[string]interface{})
	assert.Equal(t, "pending", withdrawal["status"])
	assert.Equal(t, 50.0, withdrawal["amount"])
	fee := result["serviceFee"].(map[string]interface{})
	assert.Equal(t, "completed", fee["status"])
	assert.Equal(t, 5.0, fee["amount"])
	assert.NotEmpty(t, body["request_id"])

	status, body = env.do(t, http.MethodGet, "/api/v1/wallet?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	wallet := data(t, body)
	assert.Equal(t, 95.0, wallet["balance"])
	assert.Len(t, wallet["transactions"], 3)

	// The withdrawal is not deletable.
	status, body = env.do(t, http.MethodDelete, "/api/v1/wallet/transactions/"+withdrawal["id"].(string)+"?userId=u1", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "WAL_004", body["error_code"])
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{
		"userId": "u2",
		"amount": 50,
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "WAL_003", body["error_code"])
	details := body["details"].(map[string]interface{})
	assert.Equal(t, 55.0, details["required"])
	assert.Equal(t, 3.0, details["available"])

	assert.Equal(t, 3.0, env.balance(t, "u2"))
}

func TestWithdraw_Limits(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1", "amount": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "WAL_001", body["error_code"])

	status, body = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1", "amount": 20000}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "WAL_002", body["error_code"])

	status, body = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VAL_001", body["error_code"])
}

func TestWithdraw_IdempotencyKeyReplays(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{"Idempotency-Key": "withdraw-once"}
	req := map[string]interface{}{"userId": "u1", "amount": 20}

	status, first := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", req, headers)
	require.Equal(t, http.StatusCreated, status, first)
	status, second := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", req, headers)
	require.Equal(t, http.StatusCreated, status, second)

	firstID := data(t, first)["withdrawal"].(map[string]interface{})["id"]
	secondID := data(t, second)["withdrawal"].(map[string]interface{})["id"]
	assert.Equal(t, firstID, secondID)
	assert.Equal(t, 95.0, env.balance(t, "u1"), "fee charged once")
}

func TestWithdraw_ConcurrentSameKeyWithdrawsOnce(t *testing.T) {
	env := newTestEnv(t, withoutRateLimit)

	const attempts = 5
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/wallet/withdraw",
				strings.NewReader(`{"userId":"u1","amount":50}`))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", "same-key")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()

			var body struct {
				Data struct {
					Withdrawal struct {
						ID string `json:"id"`
					} `json:"withdrawal"`
				} `json:"data"`
			}
			if resp.StatusCode != http.StatusCreated || json.NewDecoder(resp.Body).Decode(&body) != nil {
				return
			}
			mu.Lock()
			ids[body.Data.Withdrawal.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, 1, "every attempt returns the same withdrawal")
	for _, n := range ids {
		assert.Equal(t, attempts, n)
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/wallet?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	wallet := data(t, body)
	assert.Equal(t, 95.0, wallet["balance"])
	assert.Len(t, wallet["transactions"], 3)
}

func TestDepositRequest_ConcurrentSameKeyRecordsOnce(t *testing.T) {
	env := newTestEnv(t, withoutRateLimit)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/wallet/request",
				strings.NewReader(`{"userId":"u2","amount":40,"description":"Invoice 7"}`))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", "invoice-7")
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	status, body := env.do(t, http.MethodGet, "/api/v1/wallet?userId=u2", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data(t, body)["transactions"], 2, "seed credit and one fund request")
}

func TestWithdraw_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t, withoutRateLimit)

	// Balance 100, each withdrawal of 20 needs 25 and removes only the
	// completed fee of 5: exactly 16 can pass (100, 95, ..., 25).
	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(env.server.URL+"/api/v1/wallet/withdraw", "application/json",
				strings.NewReader(`{"userId":"u1","amount":20}`))
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusCreated:
				succeeded++
			case http.StatusBadRequest:
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, succeeded)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 20.0, env.balance(t, "u1"))
}

func TestDepositRequest_SettledByAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/wallet/request", map[string]interface{}{
		"userId":      "u2",
		"amount":      40,
		"description": "Invoice 42",
	}, nil)
	require.Equal(t, http.StatusCreated, status, body)
	tx := data(t, body)["transaction"].(map[string]interface{})
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, 3.0, env.balance(t, "u2"), "pending credits do not count")

	path := "/api/v1/admin/wallet/transactions/" + tx["id"].(string) + "/status"
	status, body = env.do(t, http.MethodPut, path, map[string]string{"userId": "u2", "status": "completed"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_003", body["error_code"])

	status, body = env.do(t, http.MethodPut, path, map[string]string{"userId": "u2", "status": "completed"}, admin)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 43.0, data(t, body)["balance"])
	assert.Equal(t, 43.0, env.balance(t, "u2"))

	status, body = env.do(t, http.MethodPut, path, map[string]string{"userId": "u2", "status": "failed"}, admin)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WAL_005", body["error_code"])
}

func TestRecordTransaction_DeletableBankTransfer(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/admin/wallet/transactions", map[string]interface{}{
		"userId":        "u1",
		"type":          "credit",
		"amount":        25,
		"description":   "Bank transfer",
		"paymentMethod": "bank_transfer",
	}, admin)
	require.Equal(t, http.StatusCreated, status, body)
	tx := data(t, body)["transaction"].(map[string]interface{})
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, true, tx["deletable"])

	status, body = env.do(t, http.MethodDelete, "/api/v1/wallet/transactions/"+tx["id"].(string)+"?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 100.0, data(t, body)["balance"])

	status, body = env.do(t, http.MethodDelete, "/api/v1/wallet/transactions/"+tx["id"].(string)+"?userId=u1", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NF_001", body["error_code"])
}

func TestRefunds_RequestApproveCredits(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/refundable-items?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status, body)
	items := dataList(t, body)
	require.Len(t, items, 2)
	project := items[0].(map[string]interface{})
	assert.Equal(t, "p1", project["id"])
	assert.Equal(t, 300.0, project["amount"])
	pkg := items[1].(map[string]interface{})
	assert.Equal(t, "up1", pkg["id"])
	assert.Equal(t, 49.0, pkg["amount"])

	create := map[string]interface{}{
		"userId":   "u1",
		"orderId":  "p1",
		"amount":   300,
		"reason":   "Changed plans",
		"itemType": "project",
	}
	status, body = env.do(t, http.MethodPost, "/api/v1/refunds", create, nil)
	require.Equal(t, http.StatusCreated, status, body)
	refund := data(t, body)
	assert.Equal(t, "pending", refund["status"])

	status, body = env.do(t, http.MethodPost, "/api/v1/refunds", create, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "REF_001", body["error_code"])

	status, body = env.do(t, http.MethodGet, "/api/v1/refundable-items?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, dataList(t, body), 1, "claimed item is no longer offered")

	status, body = env.do(t, http.MethodGet, "/api/v1/admin/refunds?status=pending", nil, admin)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, dataList(t, body), 1)

	status, body = env.do(t, http.MethodPut, "/api/v1/admin/refunds/"+refund["id"].(string), map[string]string{
		"status":     "approved",
		"adminNotes": "ok",
	}, admin)
	require.Equal(t, http.StatusOK, status, body)
	processed := data(t, body)
	assert.Equal(t, "approved", processed["status"])
	assert.Equal(t, adminUser, processed["processedBy"])

	assert.Equal(t, 400.0, env.balance(t, "u1"))

	status, body = env.do(t, http.MethodDelete, "/api/v1/refunds/"+refund["id"].(string)+"?userId=u1", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "REF_002", body["error_code"])
}

func TestRefunds_CancelPending(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/refunds", map[string]interface{}{
		"userId":   "u1",
		"orderId":  "up1",
		"amount":   49,
		"reason":   "Not needed",
		"itemType": "package",
	}, nil)
	require.Equal(t, http.StatusCreated, status, body)
	id := data(t, body)["id"].(string)

	status, body = env.do(t, http.MethodDelete, "/api/v1/refunds/"+id+"?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/refunds?userId=u1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, dataList(t, body))
}

func TestSettings_UpdateAppliesToWithdrawals(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/wallet-settings", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5.0, data(t, body)["serviceFee"])

	status, body = env.do(t, http.MethodPut, "/api/v1/wallet-settings", map[string]interface{}{"serviceFee": 7}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.do(t, http.MethodPut, "/api/v1/wallet-settings", map[string]interface{}{
		"serviceFee":         2,
		"withdrawalSettings": map[string]interface{}{"minWithdrawal": 30},
	}, admin)
	require.Equal(t, http.StatusOK, status, body)
	updated := data(t, body)
	assert.Equal(t, 2.0, updated["serviceFee"])
	assert.Equal(t, "EUR", updated["currency"])

	status, body = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1", "amount": 20}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "WAL_001", body["error_code"])

	status, body = env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1", "amount": 30}, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, 32.0, data(t, body)["totalDeducted"])

	_, err := os.Stat(filepath.Join(env.dataDir, "wallet-settings.json"))
	assert.NoError(t, err)
}

func TestLogin_WrongPasswordAndRateLimit(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": adminUser,
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTH_001", body["error_code"])

	// auth_login allows 10 requests per minute; one is already used.
	for i := 0; i < 9; i++ {
		status, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": adminUser, "password": "wrong"}, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}
	status, body = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": adminUser, "password": adminPassword}, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_001", body["error_code"])
}

func TestCorruptLedgerFallsBackAndAudits(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dataDir, "user-data.json"), []byte(`{"walletTransactions": [`), 0o644))

	assert.Equal(t, 0.0, env.balance(t, "u1"))

	auditPath := filepath.Join(env.dataDir, "audit.log")
	assert.Eventually(t, func() bool {
		raw, err := os.ReadFile(auditPath)
		return err == nil && strings.Contains(string(raw), "LEDGER_READ_FALLBACK")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMutationsAreAudited(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/api/v1/wallet/withdraw", map[string]interface{}{"userId": "u1", "amount": 10}, nil)
	require.Equal(t, http.StatusCreated, status)

	auditPath := filepath.Join(env.dataDir, "audit.log")
	assert.Eventually(t, func() bool {
		raw, err := os.ReadFile(auditPath)
		return err == nil && strings.Contains(string(raw), `"action":"WITHDRAWAL"`) && strings.Contains(string(raw), `"user_id":"u1"`)
	}, 2*time.Second, 20*time.Millisecond)
}
