package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rovledger/internal/auth"
	"rovledger/internal/core"
)

// Default entities created on first initialization. Accounts match by
// currency code, categories by name and users by username, so re-running the
// seed never duplicates rows.
var (
	seedAccounts = []core.Account{
		{Name: "US Business Account", CurrencyCode: core.CurrencyUSD},
		{Name: "India Business Account", CurrencyCode: core.CurrencyINR},
	}

	seedCategories = []string{
		"Client Revenue",
		"Software Expense",
		"Salary",
		"Office Supplies",
		"Marketing",
		"Contractor Fees",
		core.CategoryTransferIn,
		core.CategoryTransferOut,
		"Other Income",
		"Other Expense",
	}

	seedUsers = []struct {
		username string
		password string
		role     core.Role
	}{
		{"admin", "admin123", core.RoleAdmin},
		{"viewer", "view123", core.RoleViewer},
	}
)

// Seed populates the default accounts, categories and users. It is safe to
// call on every startup.
func (r *LedgerRepository) Seed(ctx context.Context) error {
	for _, a := range seedAccounts {
		_, err := r.GetAccountByCurrency(ctx, a.CurrencyCode)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("seed account lookup: %w", err)
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO accounts (name, currency_code) VALUES (?, ?)`,
			a.Name, a.CurrencyCode); err != nil {
			return fmt.Errorf("seed account %s: %w", a.CurrencyCode, err)
		}
		slog.InfoContext(ctx, "Created seed account", "currency", a.CurrencyCode)
	}

	for _, name := range seedCategories {
		_, err := r.GetCategoryByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("seed category lookup: %w", err)
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO categories (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("seed category %q: %w", name, err)
		}
	}

	for _, u := range seedUsers {
		_, err := r.GetUserByUsername(ctx, u.username)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("seed user lookup: %w", err)
		}
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", u.username, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
			u.username, hash, string(u.role)); err != nil {
			return fmt.Errorf("seed user %q: %w", u.username, err)
		}
		slog.InfoContext(ctx, "Created seed user", "username", u.username, "role", u.role)
	}

	return nil
}
