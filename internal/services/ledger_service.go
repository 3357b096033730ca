// Package services orchestrates ledger operations across the store, the rate
// provider and the event publisher. Role checks belong to the caller layer;
// nothing here re-checks authorization.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rovledger/internal/amqp"
	"rovledger/internal/core"
	"rovledger/internal/storage"
)

// RateProvider supplies the current USD to INR rate. Implementations degrade
// to a fallback value instead of failing on network problems.
type RateProvider interface {
	Latest(ctx context.Context) (float64, error)
}

// EventPublisher notifies external consumers about ledger mutations.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, transactionID int64, transferID, action string) error
}

type Ledger struct {
	store  *storage.LedgerRepository
	rates  RateProvider
	events EventPublisher
}

// NewLedger builds the ledger service. events may be nil when no broker is
// configured; publishing is then skipped.
func NewLedger(store *storage.LedgerRepository, rates RateProvider, events EventPublisher) *Ledger {
	return &Ledger{
		store:  store,
		rates:  rates,
		events: events,
	}
}

type AddTransactionParams struct {
	Date         core.Date
	Type         core.TransactionType
	Amount       core.Money
	AccountID    int64
	CategoryID   int64
	Counterparty string
	Description  string
}

// AddTransaction validates and records a new non-void transaction. There is
// no balance check: accounts may go negative.
func (l *Ledger) AddTransaction(ctx context.Context, p AddTransactionParams) (core.Transaction, error) {
	tx := core.Transaction{
		Date:         p.Date,
		Type:         p.Type,
		Amount:       p.Amount,
		Description:  p.Description,
		Counterparty: p.Counterparty,
		AccountID:    p.AccountID,
		CategoryID:   p.CategoryID,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, err := l.store.GetAccount(ctx, p.AccountID); err != nil {
		return core.Transaction{}, err
	}
	if _, err := l.store.GetCategory(ctx, p.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	created, err := l.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	l.publish(ctx, created.ID, "", amqp.ActionCreated)
	return created, nil
}

// VoidTransaction soft-deletes a transaction. Voiding twice has the same
// effect as voiding once.
func (l *Ledger) VoidTransaction(ctx context.Context, id int64) error {
	if err := l.store.VoidTransaction(ctx, id); err != nil {
		return err
	}
	l.publish(ctx, id, "", amqp.ActionVoided)
	return nil
}

type TransferParams struct {
	Date          core.Date
	Amount        core.Money
	FromAccountID int64
	ToAccountID   int64
	Description   string
}

// Transfer moves money between the two currency accounts at the current rate.
// It writes an expense leg on the source account and an income leg on the
// destination for the converted amount; both legs share one transfer id and
// record the locked rate. The pair is persisted atomically.
func (l *Ledger) Transfer(ctx context.Context, p TransferParams) (core.Transaction, core.Transaction, error) {
	if p.FromAccountID == p.ToAccountID {
		return core.Transaction{}, core.Transaction{}, core.ErrSameAccount
	}
	if err := p.Date.Validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	if p.Amount.Cents <= 0 {
		return core.Transaction{}, core.Transaction{}, core.ErrInvalidAmount
	}

	from, err := l.store.GetAccount(ctx, p.FromAccountID)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	to, err := l.store.GetAccount(ctx, p.ToAccountID)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	outCat, err := l.store.GetCategoryByName(ctx, core.CategoryTransferOut)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("%w: reserved category %q missing", core.ErrIntegrity, core.CategoryTransferOut)
	}
	inCat, err := l.store.GetCategoryByName(ctx, core.CategoryTransferIn)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("%w: reserved category %q missing", core.ErrIntegrity, core.CategoryTransferIn)
	}

	rate, err := l.rates.Latest(ctx)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("obtain rate: %w", err)
	}

	var converted core.Money
	if from.CurrencyCode == core.CurrencyUSD {
		converted = p.Amount.ConvertUSDToINR(rate)
	} else {
		converted = p.Amount.ConvertINRToUSD(rate)
	}

	description := p.Description
	if description == "" {
		description = "Inter-Account Transfer"
	}
	transferID := uuid.NewString()

	withdrawal := core.Transaction{
		Date:         p.Date,
		Type:         core.Expense,
		Amount:       p.Amount,
		Description:  description,
		Counterparty: "Internal Transfer",
		ExchangeRate: &rate,
		TransferID:   transferID,
		AccountID:    from.ID,
		CategoryID:   outCat.ID,
	}
	deposit := core.Transaction{
		Date:         p.Date,
		Type:         core.Income,
		Amount:       converted,
		Description:  description,
		Counterparty: "Internal Transfer",
		ExchangeRate: &rate,
		TransferID:   transferID,
		AccountID:    to.ID,
		CategoryID:   inCat.ID,
	}

	w, d, err := l.store.CreateTransferPair(ctx, withdrawal, deposit)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("execute transfer: %w", err)
	}

	l.publish(ctx, w.ID, transferID, amqp.ActionTransferred)
	return w, d, nil
}

// AddSplits attaches category splits to an existing transaction. Splits are
// structural only: the parent amount stays the source for balances and
// category totals.
func (l *Ledger) AddSplits(ctx context.Context, transactionID int64, splits []core.TransactionSplit) ([]core.TransactionSplit, error) {
	if _, err := l.store.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	for _, s := range splits {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, err := l.store.GetCategory(ctx, s.CategoryID); err != nil {
			return nil, err
		}
	}
	return l.store.CreateSplits(ctx, transactionID, splits)
}

// ListSplits returns the informational splits recorded against a
// transaction. The parent must exist.
func (l *Ledger) ListSplits(ctx context.Context, transactionID int64) ([]core.TransactionSplit, error) {
	if _, err := l.store.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	return l.store.ListSplits(ctx, transactionID)
}

// Balance derives the account's current balance from its non-void
// transactions.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (core.Money, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return core.Money{}, err
	}
	return l.store.AccountBalance(ctx, accountID)
}

// Dashboard assembles the headline figures and chart feeds for the last
// months of activity.
func (l *Ledger) Dashboard(ctx context.Context, months int) (core.DashboardSummary, error) {
	usd, err := l.store.GetAccountByCurrency(ctx, core.CurrencyUSD)
	if err != nil {
		return core.DashboardSummary{}, fmt.Errorf("%w: USD account missing", core.ErrIntegrity)
	}
	inr, err := l.store.GetAccountByCurrency(ctx, core.CurrencyINR)
	if err != nil {
		return core.DashboardSummary{}, fmt.Errorf("%w: INR account missing", core.ErrIntegrity)
	}

	usdBalance, err := l.store.AccountBalance(ctx, usd.ID)
	if err != nil {
		return core.DashboardSummary{}, err
	}
	inrBalance, err := l.store.AccountBalance(ctx, inr.ID)
	if err != nil {
		return core.DashboardSummary{}, err
	}

	rate, err := l.rates.Latest(ctx)
	if err != nil {
		return core.DashboardSummary{}, fmt.Errorf("obtain rate: %w", err)
	}

	since := core.Date{}
	if months > 0 {
		since = core.Date{Time: time.Now().UTC().AddDate(0, 0, -30*months)}
	}
	monthly, err := l.store.MonthlyTotals(ctx, since)
	if err != nil {
		return core.DashboardSummary{}, err
	}
	income, err := l.store.IncomeByCounterparty(ctx)
	if err != nil {
		return core.DashboardSummary{}, err
	}
	expenses, err := l.store.ExpensesByCategory(ctx)
	if err != nil {
		return core.DashboardSummary{}, err
	}

	return core.DashboardSummary{
		USDBalance:     usdBalance,
		INRBalance:     inrBalance,
		CombinedUSD:    core.Money{Cents: usdBalance.Cents + inrBalance.ConvertINRToUSD(rate).Cents},
		USDToINR:       rate,
		MonthlyTotals:  monthly,
		IncomeSources:  income,
		ExpenseByGroup: expenses,
	}, nil
}

// --- read passthroughs for the API layer ---

func (l *Ledger) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) ListCategories(ctx context.Context) ([]core.Category, error) {
	return l.store.ListCategories(ctx)
}

func (l *Ledger) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return l.store.ListTransactions(ctx, f)
}

func (l *Ledger) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

func (l *Ledger) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return l.store.GetUserByUsername(ctx, username)
}

// publish sends a ledger event without ever failing the operation.
func (l *Ledger) publish(ctx context.Context, transactionID int64, transferID, action string) {
	if l.events == nil {
		return
	}
	if err := l.events.PublishLedgerEvent(ctx, transactionID, transferID, action); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", transactionID, "action", action, "error", err)
	}
}
