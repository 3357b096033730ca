package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	cases := []struct {
		in   string
		want TransactionType
		ok   bool
	}{
		{"INCOME", Income, true},
		{"EXPENSE", Expense, true},
		{"income", Income, true}, // legacy lowercase rows
		{"Expense", Expense, true},
		{" income ", Income, true},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTransactionType(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("Admin"); err != nil || r != RoleAdmin {
		t.Fatalf("expected admin, got %s (err=%v)", r, err)
	}
	if r, err := ParseRole("viewer"); err != nil || r != RoleViewer {
		t.Fatalf("expected viewer, got %s (err=%v)", r, err)
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 100}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	// Zero amounts are accepted.
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be valid, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:       NewDate(2024, 1, 5),
		Type:       Income,
		Amount:     Money{Cents: 50000},
		AccountID:  1,
		CategoryID: 1,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Date: Date{Time: time.Time{}}, Type: Income, Amount: Money{Cents: 1}, AccountID: 1, CategoryID: 1},
		{Date: NewDate(2024, 1, 5), Type: "refund", Amount: Money{Cents: 1}, AccountID: 1, CategoryID: 1},
		{Date: NewDate(2024, 1, 5), Type: Expense, Amount: Money{Cents: -1}, AccountID: 1, CategoryID: 1},
		{Date: NewDate(2024, 1, 5), Type: Expense, Amount: Money{Cents: 1}, AccountID: 0, CategoryID: 1},
		{Date: NewDate(2024, 1, 5), Type: Expense, Amount: Money{Cents: 1}, AccountID: 1, CategoryID: 0},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestConvertUSDToINR(t *testing.T) {
	cases := []struct {
		cents int64
		rate  float64
		want  int64
	}{
		{10000, 83.5, 835000}, // 100 USD at 83.5 -> 8350 INR
		{10000, 83.0, 830000},
		{1, 83.5, 84}, // 1 cent -> 0.835 INR, rounds to 84 paise
		{0, 83.5, 0},
	}
	for _, tc := range cases {
		got := Money{Cents: tc.cents}.ConvertUSDToINR(tc.rate)
		if got.Cents != tc.want {
			t.Fatalf("%d at %.2f expected %d, got %d", tc.cents, tc.rate, tc.want, got.Cents)
		}
	}
}

func TestConvertINRToUSD(t *testing.T) {
	cases := []struct {
		cents int64
		rate  float64
		want  int64
	}{
		{835000, 83.5, 10000}, // 8350 INR at 83.5 -> 100 USD
		{8350, 83.5, 100},
		{100, 83.0, 1}, // 1 INR -> 1.2 cents, rounds to 1
	}
	for _, tc := range cases {
		got := Money{Cents: tc.cents}.ConvertINRToUSD(tc.rate)
		if got.Cents != tc.want {
			t.Fatalf("%d at %.2f expected %d, got %d", tc.cents, tc.rate, tc.want, got.Cents)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-05")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2024-01-05" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	if _, err := ParseDate("05/01/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
