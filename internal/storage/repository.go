// Package storage provides the durable SQLite-backed ledger store: accounts,
// categories, users, transactions, splits and exchange rates, together with
// the balance and aggregation queries the dashboard reads from.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rovledger/internal/core"

	_ "modernc.org/sqlite"
)

type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository opens (or creates) the database at dbPath, applies the
// embedded migrations and returns a ready repository. WAL mode, a busy
// timeout and foreign keys are enabled; connections are capped at one to
// avoid SQLite locking issues.
func NewLedgerRepository(dbPath string) (*LedgerRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &LedgerRepository{db: db}, nil
}

func (r *LedgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Accounts ---

func (r *LedgerRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, currency_code FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.CurrencyCode)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *LedgerRepository) GetAccountByCurrency(ctx context.Context, code string) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, currency_code FROM accounts WHERE currency_code = ?`, code).
		Scan(&a.ID, &a.Name, &a.CurrencyCode)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", code, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account by currency: %w", err)
	}
	return a, nil
}

func (r *LedgerRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, currency_code FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CurrencyCode); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// --- Categories ---

func (r *LedgerRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// GetCategoryByName is how the transfer operation resolves its reserved
// categories; a missing reserved name is an integrity problem, which the
// caller decides, not the store.
func (r *LedgerRepository) GetCategoryByName(ctx context.Context, name string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`, name).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category by name: %w", err)
	}
	return c, nil
}

func (r *LedgerRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- Users ---

func (r *LedgerRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = core.Role(role)
	return u, nil
}

// --- Transactions ---

const transactionColumns = `id, date, type, amount_cents, description, counterparty,
	is_void, exchange_rate, transfer_id, account_id, category_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	var date string
	var rate sql.NullFloat64
	var transferID sql.NullString
	err := row.Scan(&t.ID, &date, &t.Type, &t.Amount.Cents, &t.Description,
		&t.Counterparty, &t.IsVoid, &rate, &transferID, &t.AccountID, &t.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date: %w", err)
	}
	t.Date = d
	if rate.Valid {
		t.ExchangeRate = &rate.Float64
	}
	t.TransferID = transferID.String
	return t, nil
}

func insertTransaction(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, t core.Transaction) (core.Transaction, error) {
	var rate any
	if t.ExchangeRate != nil {
		rate = *t.ExchangeRate
	}
	var transferID any
	if t.TransferID != "" {
		transferID = t.TransferID
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO transactions
			(date, type, amount_cents, description, counterparty, is_void,
			 exchange_rate, transfer_id, account_id, category_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Date.String(), string(t.Type), t.Amount.Cents, t.Description,
		t.Counterparty, t.IsVoid, rate, transferID, t.AccountID, t.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	t.ID = id
	return t, nil
}

// CreateTransaction inserts a single non-transfer transaction.
func (r *LedgerRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := insertTransaction(ctx, r.db, t)
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", created.ID,
		"type", created.Type,
		"amount_cents", created.Amount.Cents,
		"account_id", created.AccountID)
	return created, nil
}

// CreateTransferPair writes both legs of a transfer in one database
// transaction so either both persist or neither does.
func (r *LedgerRepository) CreateTransferPair(ctx context.Context, withdrawal, deposit core.Transaction) (core.Transaction, core.Transaction, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("begin transfer: %w", err)
	}
	defer dbTx.Rollback()

	w, err := insertTransaction(ctx, dbTx, withdrawal)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("withdrawal leg: %w", err)
	}
	d, err := insertTransaction(ctx, dbTx, deposit)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("deposit leg: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("commit transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer pair saved",
		"transfer_id", w.TransferID,
		"withdrawal_id", w.ID,
		"deposit_id", d.ID)
	return w, d, nil
}

func (r *LedgerRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// VoidTransaction marks a transaction void. Voiding an already-void
// transaction is a no-op; a missing id is a not-found error.
func (r *LedgerRepository) VoidTransaction(ctx context.Context, id int64) error {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check transaction: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET is_void = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("void transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction voided", "id", id)
	return nil
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter";
// void rows are hidden unless IncludeVoid is set.
type TransactionFilter struct {
	AccountID   int64
	CategoryID  int64
	IncludeVoid bool
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1 = 1`
	var args []any
	if f.AccountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if !f.IncludeVoid {
		query += ` AND is_void = 0`
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Splits ---

// CreateSplits attaches splits to an existing transaction atomically.
func (r *LedgerRepository) CreateSplits(ctx context.Context, transactionID int64, splits []core.TransactionSplit) ([]core.TransactionSplit, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin splits: %w", err)
	}
	defer dbTx.Rollback()

	created := make([]core.TransactionSplit, 0, len(splits))
	for _, s := range splits {
		res, err := dbTx.ExecContext(ctx, `
			INSERT INTO transaction_splits (amount_cents, description, transaction_id, category_id)
			VALUES (?, ?, ?, ?)`,
			s.Amount.Cents, s.Description, transactionID, s.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("insert split: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("split id: %w", err)
		}
		s.ID = id
		s.TransactionID = transactionID
		created = append(created, s)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit splits: %w", err)
	}
	return created, nil
}

func (r *LedgerRepository) ListSplits(ctx context.Context, transactionID int64) ([]core.TransactionSplit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, description, transaction_id, category_id
		FROM transaction_splits WHERE transaction_id = ? ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var out []core.TransactionSplit
	for rows.Next() {
		var s core.TransactionSplit
		if err := rows.Scan(&s.ID, &s.Amount.Cents, &s.Description, &s.TransactionID, &s.CategoryID); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Exchange rates ---

// LatestRate returns the newest stored rate by date.
func (r *LedgerRepository) LatestRate(ctx context.Context) (core.ExchangeRate, error) {
	var er core.ExchangeRate
	var date string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, date, usd_to_inr FROM exchange_rates
		ORDER BY date DESC LIMIT 1`).Scan(&er.ID, &date, &er.USDToINR)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExchangeRate{}, fmt.Errorf("exchange rate: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("latest rate: %w", err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("stored rate date: %w", err)
	}
	er.Date = d
	return er, nil
}

// UpsertRate inserts the rate for a date or updates the existing row.
func (r *LedgerRepository) UpsertRate(ctx context.Context, date core.Date, rate float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (date, usd_to_inr) VALUES (?, ?)
		ON CONFLICT (date) DO UPDATE SET usd_to_inr = excluded.usd_to_inr`,
		date.String(), rate)
	if err != nil {
		return fmt.Errorf("upsert rate: %w", err)
	}

	slog.InfoContext(ctx, "Exchange rate stored", "date", date.String(), "usd_to_inr", rate)
	return nil
}

// --- Balance and aggregation ---

// AccountBalance folds all non-void transactions of the account: income adds,
// expense subtracts. An account with no transactions has balance zero.
func (r *LedgerRepository) AccountBalance(ctx context.Context, accountID int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE type WHEN 'INCOME' THEN amount_cents ELSE -amount_cents END), 0)
		FROM transactions
		WHERE account_id = ? AND is_void = 0`, accountID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("account balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// MonthlyTotals groups non-void transactions by calendar month and type and
// pivots them into one row per month with income and expense columns, missing
// combinations filled with zero. A zero since date means no lower bound.
func (r *LedgerRepository) MonthlyTotals(ctx context.Context, since core.Date) ([]core.MonthlyTotal, error) {
	query := `
		SELECT strftime('%Y-%m', date) AS month, type, SUM(amount_cents)
		FROM transactions
		WHERE is_void = 0`
	var args []any
	if !since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, since.String())
	}
	query += ` GROUP BY month, type ORDER BY month`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	byMonth := make(map[string]*core.MonthlyTotal)
	var order []string
	for rows.Next() {
		var month, typ string
		var cents int64
		if err := rows.Scan(&month, &typ, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		mt, ok := byMonth[month]
		if !ok {
			mt = &core.MonthlyTotal{Month: month}
			byMonth[month] = mt
			order = append(order, month)
		}
		switch core.TransactionType(typ) {
		case core.Income:
			mt.Income = core.Money{Cents: cents}
		case core.Expense:
			mt.Expense = core.Money{Cents: cents}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]core.MonthlyTotal, 0, len(order))
	for _, m := range order {
		out = append(out, *byMonth[m])
	}
	return out, nil
}

// IncomeByCounterparty sums non-void income grouped by counterparty; rows
// without one are excluded.
func (r *LedgerRepository) IncomeByCounterparty(ctx context.Context) ([]core.CounterpartyIncome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT counterparty, SUM(amount_cents)
		FROM transactions
		WHERE type = 'INCOME' AND is_void = 0 AND counterparty <> ''
		GROUP BY counterparty ORDER BY SUM(amount_cents) DESC`)
	if err != nil {
		return nil, fmt.Errorf("income by counterparty: %w", err)
	}
	defer rows.Close()

	var out []core.CounterpartyIncome
	for rows.Next() {
		var ci core.CounterpartyIncome
		if err := rows.Scan(&ci.Counterparty, &ci.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan counterparty income: %w", err)
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

// ExpensesByCategory sums non-void expenses grouped by category name.
// Transfer categories are excluded so inter-account moves never show up as
// real spending.
func (r *LedgerRepository) ExpensesByCategory(ctx context.Context) ([]core.CategoryExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.name, SUM(t.amount_cents)
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.type = 'EXPENSE' AND t.is_void = 0 AND c.name NOT LIKE '%Transfer%'
		GROUP BY c.name ORDER BY SUM(t.amount_cents) DESC`)
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryExpense
	for rows.Next() {
		var ce core.CategoryExpense
		if err := rows.Scan(&ce.Category, &ce.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category expense: %w", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}
