package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"

	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"

	CurrencyUSD = "USD"
	CurrencyINR = "INR"

	// Reserved categories used exclusively by the transfer operation.
	CategoryTransferIn  = "Inter-Account Transfer In"
	CategoryTransferOut = "Inter-Account Transfer Out"
)

type (
	TransactionType string

	Role string

	Date struct {
		time.Time
	}

	Account struct {
		ID           int64
		Name         string
		CurrencyCode string
	}

	Category struct {
		ID   int64
		Name string
	}

	Transaction struct {
		ID           int64
		Date         Date
		Type         TransactionType
		Amount       Money
		Description  string
		Counterparty string
		IsVoid       bool
		// ExchangeRate is set only on transfer legs and records the rate
		// locked at creation time.
		ExchangeRate *float64
		// TransferID links the two legs of one transfer.
		TransferID string
		AccountID  int64
		CategoryID int64
	}

	TransactionSplit struct {
		ID            int64
		Amount        Money
		Description   string
		TransactionID int64
		CategoryID    int64
	}

	ExchangeRate struct {
		ID       int64
		Date     Date
		USDToINR float64
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash string
		Role         Role
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRole   = errors.New("invalid role")
	ErrSameAccount   = errors.New("cannot transfer between the same account")
	ErrNotFound      = errors.New("not found")
	ErrIntegrity     = errors.New("integrity error")
)

// ParseTransactionType normalizes a type string to its canonical uppercase
// form. Lowercase values written by the legacy system are accepted here so
// imports never reintroduce mixed-case rows.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the canonical YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Validate checks the invariants a transaction must satisfy before it is
// written: a real date, a known type and a non-negative amount. The sign of
// the cash effect is carried by Type, never by Amount.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.AccountID == 0 {
		return fmt.Errorf("%w: account is required", ErrNotFound)
	}
	if t.CategoryID == 0 {
		return fmt.Errorf("%w: category is required", ErrNotFound)
	}
	return nil
}

func (s TransactionSplit) Validate() error {
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	if s.CategoryID == 0 {
		return fmt.Errorf("%w: category is required", ErrNotFound)
	}
	return nil
}
