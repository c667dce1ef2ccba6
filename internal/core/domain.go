package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	AccountType       string
	TransactionType   string
	TransactionStatus string
	RecurringInterval string
)

const (
	AccountCurrent AccountType = "CURRENT"
	AccountSavings AccountType = "SAVINGS"

	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"

	StatusCompleted TransactionStatus = "COMPLETED"

	Daily   RecurringInterval = "DAILY"
	Weekly  RecurringInterval = "WEEKLY"
	Monthly RecurringInterval = "MONTHLY"
	Yearly  RecurringInterval = "YEARLY"
)

type (
	// Account holds a single balance field; it is mutated only through the
	// store's atomic increment, never read-then-written from service code.
	Account struct {
		ID        string
		OwnerID   string
		Name      string
		Type      AccountType
		Balance   decimal.Decimal
		IsDefault bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Transaction is a ledger row. A row with IsRecurring set is a template
	// that periodically spawns derived, non-recurring rows.
	Transaction struct {
		ID                string
		OwnerID           string
		AccountID         string
		Type              TransactionType
		Amount            decimal.Decimal // never negative; sign implied by Type
		Category          string
		Description       string
		Date              time.Time
		IsRecurring       bool
		RecurringInterval RecurringInterval
		NextRecurringDate *time.Time
		LastProcessed     *time.Time
		Status            TransactionStatus
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// Budget is a monthly spending ceiling for an owner's default account.
	Budget struct {
		ID            string
		OwnerID       string
		Amount        decimal.Decimal
		LastAlertSent *time.Time
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}
)

func (t AccountType) Valid() bool {
	return t == AccountCurrent || t == AccountSavings
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (i RecurringInterval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// SignedAmount is the transaction's contribution to its account balance:
// +Amount for INCOME, -Amount for EXPENSE.
func (t Transaction) SignedAmount() decimal.Decimal {
	return Contribution(t.Type, t.Amount)
}

// Contribution returns the signed balance delta for a type/amount pair.
func Contribution(typ TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == Expense {
		return amount.Neg()
	}
	return amount
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: empty account name", ErrInvalid)
	}
	if len(a.Name) > 100 {
		return fmt.Errorf("%w: account name too long (max 100 characters)", ErrInvalid)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalid, a.Type)
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("%w: missing account id", ErrInvalid)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalid, t.Type)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalid)
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalid)
	}
	// Interval present iff recurring.
	if t.IsRecurring && !t.RecurringInterval.Valid() {
		return fmt.Errorf("%w: recurring transaction needs a valid interval", ErrInvalid)
	}
	if !t.IsRecurring && t.RecurringInterval != "" {
		return fmt.Errorf("%w: interval set on non-recurring transaction", ErrInvalid)
	}
	return nil
}

func (b Budget) Validate() error {
	if !b.Amount.IsPositive() {
		return fmt.Errorf("%w: budget amount must be positive", ErrInvalid)
	}
	return nil
}
