package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"rovledger/internal/amqp"
	"rovledger/internal/core"
	"rovledger/internal/storage"
)

type fixedRate struct {
	rate float64
	err  error
}

func (f fixedRate) Latest(ctx context.Context) (float64, error) {
	return f.rate, f.err
}

type recordedEvent struct {
	transactionID int64
	transferID    string
	action        string
}

type recordingPublisher struct {
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(ctx context.Context, transactionID int64, transferID, action string) error {
	p.events = append(p.events, recordedEvent{transactionID, transferID, action})
	return p.err
}

func newTestLedger(t *testing.T, rates RateProvider, events EventPublisher) (*Ledger, *storage.LedgerRepository) {
	t.Helper()
	repo, err := storage.NewLedgerRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewLedgerRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if err := repo.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return NewLedger(repo, rates, events), repo
}

func seededAccounts(t *testing.T, repo *storage.LedgerRepository) (usd, inr core.Account) {
	t.Helper()
	ctx := context.Background()
	usd, err := repo.GetAccountByCurrency(ctx, core.CurrencyUSD)
	if err != nil {
		t.Fatalf("USD account: %v", err)
	}
	inr, err = repo.GetAccountByCurrency(ctx, core.CurrencyINR)
	if err != nil {
		t.Fatalf("INR account: %v", err)
	}
	return usd, inr
}

func seededCategory(t *testing.T, repo *storage.LedgerRepository, name string) core.Category {
	t.Helper()
	c, err := repo.GetCategoryByName(context.Background(), name)
	if err != nil {
		t.Fatalf("category %q: %v", name, err)
	}
	return c
}

func TestAddTransactionPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, pub)
	usd, _ := seededAccounts(t, repo)
	revenue := seededCategory(t, repo, "Client Revenue")

	tx, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:         core.NewDate(2024, 1, 15),
		Type:         core.Income,
		Amount:       core.Money{Cents: 50000},
		AccountID:    usd.ID,
		CategoryID:   revenue.ID,
		Counterparty: "Acme Corp",
		Description:  "January invoice",
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if tx.ID == 0 {
		t.Fatal("expected persisted transaction to have an id")
	}
	if tx.IsVoid {
		t.Error("new transaction must not be void")
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if pub.events[0].action != amqp.ActionCreated || pub.events[0].transactionID != tx.ID {
		t.Errorf("unexpected event %+v", pub.events[0])
	}
}

func TestAddTransactionRejectsUnknownAccount(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	revenue := seededCategory(t, repo, "Client Revenue")

	_, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 1, 15),
		Type:       core.Income,
		Amount:     core.Money{Cents: 100},
		AccountID:  99999,
		CategoryID: revenue.ID,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddTransactionRejectsNegativeAmount(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, _ := seededAccounts(t, repo)
	revenue := seededCategory(t, repo, "Client Revenue")

	_, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 1, 15),
		Type:       core.Expense,
		Amount:     core.Money{Cents: -1},
		AccountID:  usd.ID,
		CategoryID: revenue.ID,
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAddTransactionAcceptsZeroAmount(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, _ := seededAccounts(t, repo)
	other := seededCategory(t, repo, "Other Expense")

	if _, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 1, 15),
		Type:       core.Expense,
		Amount:     core.Money{Cents: 0},
		AccountID:  usd.ID,
		CategoryID: other.ID,
	}); err != nil {
		t.Errorf("zero amount should be accepted, got %v", err)
	}
}

func TestAddTransactionSurvivesPublisherFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, pub)
	usd, _ := seededAccounts(t, repo)
	revenue := seededCategory(t, repo, "Client Revenue")

	tx, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 1, 15),
		Type:       core.Income,
		Amount:     core.Money{Cents: 100},
		AccountID:  usd.ID,
		CategoryID: revenue.ID,
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	if _, err := ledger.GetTransaction(context.Background(), tx.ID); err != nil {
		t.Errorf("transaction should be persisted: %v", err)
	}
}

func TestVoidTransaction(t *testing.T) {
	pub := &recordingPublisher{}
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, pub)
	usd, _ := seededAccounts(t, repo)
	revenue := seededCategory(t, repo, "Client Revenue")

	tx, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 1, 15),
		Type:       core.Income,
		Amount:     core.Money{Cents: 5000},
		AccountID:  usd.ID,
		CategoryID: revenue.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	if err := ledger.VoidTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("VoidTransaction: %v", err)
	}
	got, err := ledger.GetTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.IsVoid {
		t.Error("transaction should be void")
	}
	if len(pub.events) != 2 || pub.events[1].action != amqp.ActionVoided {
		t.Errorf("expected voided event, got %+v", pub.events)
	}

	if err := ledger.VoidTransaction(context.Background(), 99999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestTransferUSDToINR(t *testing.T) {
	pub := &recordingPublisher{}
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.5}, pub)
	usd, inr := seededAccounts(t, repo)

	w, d, err := ledger.Transfer(context.Background(), TransferParams{
		Date:          core.NewDate(2024, 2, 1),
		Amount:        core.Money{Cents: 10000}, // 100 USD
		FromAccountID: usd.ID,
		ToAccountID:   inr.ID,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if w.Type != core.Expense || w.AccountID != usd.ID {
		t.Errorf("withdrawal leg wrong: %+v", w)
	}
	if d.Type != core.Income || d.AccountID != inr.ID {
		t.Errorf("deposit leg wrong: %+v", d)
	}
	if d.Amount.Cents != 835000 { // 8350 INR
		t.Errorf("converted amount = %d, want 835000", d.Amount.Cents)
	}
	if w.TransferID == "" || w.TransferID != d.TransferID {
		t.Errorf("legs must share a transfer id: %q vs %q", w.TransferID, d.TransferID)
	}
	if w.ExchangeRate == nil || *w.ExchangeRate != 83.5 {
		t.Errorf("withdrawal should record the rate, got %v", w.ExchangeRate)
	}
	if w.Description != "Inter-Account Transfer" || w.Counterparty != "Internal Transfer" {
		t.Errorf("default labels wrong: %q / %q", w.Description, w.Counterparty)
	}

	outCat := seededCategory(t, repo, core.CategoryTransferOut)
	inCat := seededCategory(t, repo, core.CategoryTransferIn)
	if w.CategoryID != outCat.ID || d.CategoryID != inCat.ID {
		t.Error("transfer legs must use the reserved categories")
	}

	if len(pub.events) != 1 || pub.events[0].action != amqp.ActionTransferred || pub.events[0].transferID != w.TransferID {
		t.Errorf("expected transfer event, got %+v", pub.events)
	}
}

func TestTransferINRToUSD(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, inr := seededAccounts(t, repo)

	_, d, err := ledger.Transfer(context.Background(), TransferParams{
		Date:          core.NewDate(2024, 2, 1),
		Amount:        core.Money{Cents: 830000}, // 8300 INR
		FromAccountID: inr.ID,
		ToAccountID:   usd.ID,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if d.Amount.Cents != 10000 { // 100 USD
		t.Errorf("converted amount = %d, want 10000", d.Amount.Cents)
	}
}

func TestTransferRejectsSameAccount(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, _ := seededAccounts(t, repo)

	_, _, err := ledger.Transfer(context.Background(), TransferParams{
		Date:          core.NewDate(2024, 2, 1),
		Amount:        core.Money{Cents: 10000},
		FromAccountID: usd.ID,
		ToAccountID:   usd.ID,
	})
	if !errors.Is(err, core.ErrSameAccount) {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}

	txs, err := repo.ListTransactions(context.Background(), storage.TransactionFilter{IncludeVoid: true})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("rejected transfer must not write, found %d transactions", len(txs))
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, inr := seededAccounts(t, repo)

	for _, cents := range []int64{0, -100} {
		_, _, err := ledger.Transfer(context.Background(), TransferParams{
			Date:          core.NewDate(2024, 2, 1),
			Amount:        core.Money{Cents: cents},
			FromAccountID: usd.ID,
			ToAccountID:   inr.ID,
		})
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("cents=%d: expected ErrInvalidAmount, got %v", cents, err)
		}
	}
}

func TestTransferKeepsCustomDescription(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, inr := seededAccounts(t, repo)

	w, d, err := ledger.Transfer(context.Background(), TransferParams{
		Date:          core.NewDate(2024, 2, 1),
		Amount:        core.Money{Cents: 100},
		FromAccountID: usd.ID,
		ToAccountID:   inr.ID,
		Description:   "Payroll funding",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if w.Description != "Payroll funding" || d.Description != "Payroll funding" {
		t.Errorf("custom description lost: %q / %q", w.Description, d.Description)
	}
}

func TestAddSplitsRequiresExistingParent(t *testing.T) {
	ledger, _ := newTestLedger(t, fixedRate{rate: 83.0}, nil)

	_, err := ledger.AddSplits(context.Background(), 99999, []core.TransactionSplit{
		{Amount: core.Money{Cents: 100}, CategoryID: 1},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddSplitsDoesNotAffectBalance(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, _ := seededAccounts(t, repo)
	software := seededCategory(t, repo, "Software Expense")
	office := seededCategory(t, repo, "Office Supplies")

	tx, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:       core.NewDate(2024, 3, 1),
		Type:       core.Expense,
		Amount:     core.Money{Cents: 10000},
		AccountID:  usd.ID,
		CategoryID: software.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	splits, err := ledger.AddSplits(context.Background(), tx.ID, []core.TransactionSplit{
		{Amount: core.Money{Cents: 6000}, CategoryID: software.ID},
		{Amount: core.Money{Cents: 4000}, CategoryID: office.ID},
	})
	if err != nil {
		t.Fatalf("AddSplits: %v", err)
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}

	balance, err := ledger.Balance(context.Background(), usd.ID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Cents != -10000 {
		t.Errorf("balance = %d, want -10000 (splits must not double count)", balance.Cents)
	}

	listed, err := ledger.ListSplits(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("ListSplits: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("expected 2 listed splits, got %d", len(listed))
	}
}

func TestListSplitsRequiresExistingParent(t *testing.T) {
	ledger, _ := newTestLedger(t, fixedRate{rate: 83.0}, nil)

	_, err := ledger.ListSplits(context.Background(), 99999)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	ledger, repo := newTestLedger(t, fixedRate{rate: 83.0}, nil)
	usd, inr := seededAccounts(t, repo)
	revenue := seededCategory(t, repo, "Client Revenue")

	if _, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:         core.NewDate(2024, 1, 10),
		Type:         core.Income,
		Amount:       core.Money{Cents: 10000},
		AccountID:    usd.ID,
		CategoryID:   revenue.ID,
		Counterparty: "Acme Corp",
	}); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if _, err := ledger.AddTransaction(context.Background(), AddTransactionParams{
		Date:         core.NewDate(2024, 1, 12),
		Type:         core.Income,
		Amount:       core.Money{Cents: 830000},
		AccountID:    inr.ID,
		CategoryID:   revenue.ID,
		Counterparty: "Bharat Ltd",
	}); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	summary, err := ledger.Dashboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if summary.USDBalance.Cents != 10000 {
		t.Errorf("USD balance = %d, want 10000", summary.USDBalance.Cents)
	}
	if summary.INRBalance.Cents != 830000 {
		t.Errorf("INR balance = %d, want 830000", summary.INRBalance.Cents)
	}
	// 100 USD + 8300 INR at 83.0 = 200 USD combined.
	if summary.CombinedUSD.Cents != 20000 {
		t.Errorf("combined = %d, want 20000", summary.CombinedUSD.Cents)
	}
	if summary.USDToINR != 83.0 {
		t.Errorf("rate = %v, want 83.0", summary.USDToINR)
	}
	if len(summary.IncomeSources) != 2 {
		t.Errorf("expected 2 income sources, got %d", len(summary.IncomeSources))
	}
}

func TestDashboardFailsOnRateError(t *testing.T) {
	ledger, _ := newTestLedger(t, fixedRate{err: errors.New("store gone")}, nil)

	if _, err := ledger.Dashboard(context.Background(), 6); err == nil {
		t.Fatal("expected error when the rate provider fails")
	}
}
