package postgres

import (
	"context"
	"fmt"

	"agency-ledger/internal/core/domain"
	"agency-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// querier is satisfied by both Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	selectTransactions = `SELECT id, user_id, type, amount, description, date, status,
		COALESCE(payment_method, ''), deletable, COALESCE(bank_account_id, ''), COALESCE(idempotency_key, '')
		FROM wallet_transactions WHERE user_id = $1 ORDER BY seq`

	selectRefundColumns = `SELECT id, user_id, order_id, amount, reason, status, request_date, processed_date,
		COALESCE(processed_by, ''), COALESCE(admin_notes, ''), COALESCE(item_type, ''), COALESCE(item_name, '')
		FROM refund_requests`

	selectProjectRequests = `SELECT id, user_id, type, description, budget, status, submitted_date, created_at
		FROM project_requests WHERE user_id = $1 ORDER BY id`

	selectPayments = `SELECT id, user_id, package_name, amount, status, date, COALESCE(project_request_id, '')
		FROM payments WHERE user_id = $1 ORDER BY id`

	upsertTransaction = `INSERT INTO wallet_transactions
		(id, user_id, type, amount, description, date, status, payment_method, deletable, bank_account_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, amount = EXCLUDED.amount, description = EXCLUDED.description,
			date = EXCLUDED.date, status = EXCLUDED.status, payment_method = EXCLUDED.payment_method,
			deletable = EXCLUDED.deletable, bank_account_id = EXCLUDED.bank_account_id,
			idempotency_key = EXCLUDED.idempotency_key`

	upsertRefund = `INSERT INTO refund_requests
		(id, user_id, order_id, amount, reason, status, request_date, processed_date, processed_by, admin_notes, item_type, item_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			order_id = EXCLUDED.order_id, amount = EXCLUDED.amount, reason = EXCLUDED.reason,
			status = EXCLUDED.status, request_date = EXCLUDED.request_date, processed_date = EXCLUDED.processed_date,
			processed_by = EXCLUDED.processed_by, admin_notes = EXCLUDED.admin_notes,
			item_type = EXCLUDED.item_type, item_name = EXCLUDED.item_name`

	deleteTransactions = `DELETE FROM wallet_transactions WHERE user_id = $1 AND id = ANY($2)`
	deleteRefunds      = `DELETE FROM refund_requests WHERE user_id = $1 AND id = ANY($2)`
)

// LedgerRepo implements ports.LedgerRepository on PostgreSQL.
// Mutations of one user are serialized with a transaction-scoped advisory lock.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Snapshot reads the user's ledger without locking.
func (r *LedgerRepo) Snapshot(ctx context.Context, userID string) (*domain.UserLedger, error) {
	return loadLedger(ctx, r.pool, userID)
}

// Apply runs fn against the locked ledger and writes back only the rows it
// changed. Project requests and payments are never written.
func (r *LedgerRepo) Apply(ctx context.Context, userID string, fn ports.LedgerMutation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}

	ledger, err := loadLedger(ctx, tx, userID)
	if err != nil {
		return err
	}

	prevTxs := make(map[string]domain.WalletTransaction, len(ledger.Transactions))
	for _, t := range ledger.Transactions {
		prevTxs[t.ID] = t
	}
	prevRefunds := make(map[string]domain.RefundRequest, len(ledger.RefundRequests))
	for _, rr := range ledger.RefundRequests {
		prevRefunds[rr.ID] = rr
	}

	if err := fn(ledger); err != nil {
		return err
	}

	if err := syncTransactions(ctx, tx, userID, prevTxs, ledger.Transactions); err != nil {
		return err
	}
	if err := syncRefunds(ctx, tx, userID, prevRefunds, ledger.RefundRequests); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// ListRefundRequests returns refund requests of every user, newest first.
// An empty status matches all.
func (r *LedgerRepo) ListRefundRequests(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error) {
	query := selectRefundColumns
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY request_date DESC, seq DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	return scanRefunds(rows)
}

// FindRefundRequest returns the refund request with id, or nil.
func (r *LedgerRepo) FindRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error) {
	rows, err := r.pool.Query(ctx, selectRefundColumns+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get refund request: %w", err)
	}
	refunds, err := scanRefunds(rows)
	if err != nil {
		return nil, err
	}
	if len(refunds) == 0 {
		return nil, nil
	}
	return &refunds[0], nil
}

func loadLedger(ctx context.Context, q querier, userID string) (*domain.UserLedger, error) {
	ledger := domain.NewUserLedger(userID)

	rows, err := q.Query(ctx, selectTransactions, userID)
	if err != nil {
		return nil, fmt.Errorf("get wallet transactions: %w", err)
	}
	if ledger.Transactions, err = scanTransactions(rows); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, selectRefundColumns+` WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("get refund requests: %w", err)
	}
	if ledger.RefundRequests, err = scanRefunds(rows); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, selectProjectRequests, userID)
	if err != nil {
		return nil, fmt.Errorf("get project requests: %w", err)
	}
	if ledger.ProjectRequests, err = scanProjects(rows); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, selectPayments, userID)
	if err != nil {
		return nil, fmt.Errorf("get payments: %w", err)
	}
	if ledger.Payments, err = scanPayments(rows); err != nil {
		return nil, err
	}
	return ledger, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.WalletTransaction, error) {
	defer rows.Close()
	txs := []domain.WalletTransaction{}
	for rows.Next() {
		var t domain.WalletTransaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.Date,
			&t.Status, &t.PaymentMethod, &t.Deletable, &t.BankAccountID, &t.IdempotencyKey,
		); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet transactions: %w", err)
	}
	return txs, nil
}

func scanRefunds(rows pgx.Rows) ([]domain.RefundRequest, error) {
	defer rows.Close()
	refunds := []domain.RefundRequest{}
	for rows.Next() {
		var rr domain.RefundRequest
		if err := rows.Scan(
			&rr.ID, &rr.UserID, &rr.OrderID, &rr.Amount, &rr.Reason, &rr.Status,
			&rr.RequestDate, &rr.ProcessedDate, &rr.ProcessedBy, &rr.AdminNotes,
			&rr.ItemType, &rr.ItemName,
		); err != nil {
			return nil, fmt.Errorf("scan refund request: %w", err)
		}
		refunds = append(refunds, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund requests: %w", err)
	}
	return refunds, nil
}

func scanProjects(rows pgx.Rows) ([]domain.ProjectRequest, error) {
	defer rows.Close()
	projects := []domain.ProjectRequest{}
	for rows.Next() {
		var p domain.ProjectRequest
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Type, &p.Description, &p.Budget.Decimal,
			&p.Status, &p.SubmittedDate, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project request: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project requests: %w", err)
	}
	return projects, nil
}

func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.PackageName, &p.Amount.Decimal,
			&p.Status, &p.Date, &p.ProjectRequestID,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func syncTransactions(ctx context.Context, tx pgx.Tx, userID string, prev map[string]domain.WalletTransaction, next []domain.WalletTransaction) error {
	for _, t := range next {
		if old, ok := prev[t.ID]; ok {
			delete(prev, t.ID)
			if sameTransaction(old, t) {
				continue
			}
		}
		_, err := tx.Exec(ctx, upsertTransaction,
			t.ID, userID, string(t.Type), t.Amount, t.Description, t.Date,
			string(t.Status), nullable(string(t.PaymentMethod)), t.Deletable, nullable(t.BankAccountID),
			nullable(t.IdempotencyKey),
		)
		if err != nil {
			return fmt.Errorf("upsert wallet transaction %s: %w", t.ID, err)
		}
	}
	return deleteRemoved(ctx, tx, deleteTransactions, "wallet transactions", userID, keys(prev))
}

func syncRefunds(ctx context.Context, tx pgx.Tx, userID string, prev map[string]domain.RefundRequest, next []domain.RefundRequest) error {
	for _, rr := range next {
		if old, ok := prev[rr.ID]; ok {
			delete(prev, rr.ID)
			if sameRefund(old, rr) {
				continue
			}
		}
		_, err := tx.Exec(ctx, upsertRefund,
			rr.ID, userID, rr.OrderID, rr.Amount, rr.Reason, string(rr.Status),
			rr.RequestDate, rr.ProcessedDate, nullable(rr.ProcessedBy), nullable(rr.AdminNotes),
			nullable(rr.ItemType), nullable(rr.ItemName),
		)
		if err != nil {
			return fmt.Errorf("upsert refund request %s: %w", rr.ID, err)
		}
	}
	return deleteRemoved(ctx, tx, deleteRefunds, "refund requests", userID, keys(prev))
}

func deleteRemoved(ctx context.Context, tx pgx.Tx, query, what, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, query, userID, ids); err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	return nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sameTransaction(a, b domain.WalletTransaction) bool {
	return a.Type == b.Type &&
		a.Amount.Equal(b.Amount) &&
		a.Description == b.Description &&
		a.Date.Equal(b.Date) &&
		a.Status == b.Status &&
		a.PaymentMethod == b.PaymentMethod &&
		a.IsDeletable() == b.IsDeletable() &&
		(a.Deletable == nil) == (b.Deletable == nil) &&
		a.BankAccountID == b.BankAccountID &&
		a.IdempotencyKey == b.IdempotencyKey
}

func sameRefund(a, b domain.RefundRequest) bool {
	sameProcessed := (a.ProcessedDate == nil && b.ProcessedDate == nil) ||
		(a.ProcessedDate != nil && b.ProcessedDate != nil && a.ProcessedDate.Equal(*b.ProcessedDate))
	return a.OrderID == b.OrderID &&
		a.Amount.Equal(b.Amount) &&
		a.Reason == b.Reason &&
		a.Status == b.Status &&
		a.RequestDate.Equal(b.RequestDate) &&
		sameProcessed &&
		a.ProcessedBy == b.ProcessedBy &&
		a.AdminNotes == b.AdminNotes &&
		a.ItemType == b.ItemType &&
		a.ItemName == b.ItemName
}
