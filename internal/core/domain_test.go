package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		AccountID: "acc-1",
		Type:      Expense,
		Amount:    decimal.RequireFromString("42.00"),
		Category:  "groceries",
		Date:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:    StatusCompleted,
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{
			name:   "valid expense",
			mutate: func(*Transaction) {},
		},
		{
			name: "valid recurring with interval",
			mutate: func(tx *Transaction) {
				tx.IsRecurring = true
				tx.RecurringInterval = Monthly
			},
		},
		{
			name:    "zero amount",
			mutate:  func(tx *Transaction) { tx.Amount = decimal.Zero },
			wantErr: true,
		},
		{
			name:    "negative amount",
			mutate:  func(tx *Transaction) { tx.Amount = decimal.RequireFromString("-1") },
			wantErr: true,
		},
		{
			name:    "unknown type",
			mutate:  func(tx *Transaction) { tx.Type = "TRANSFER" },
			wantErr: true,
		},
		{
			name:    "recurring without interval",
			mutate:  func(tx *Transaction) { tx.IsRecurring = true },
			wantErr: true,
		},
		{
			name: "recurring with unknown interval",
			mutate: func(tx *Transaction) {
				tx.IsRecurring = true
				tx.RecurringInterval = "FORTNIGHTLY"
			},
			wantErr: true,
		},
		{
			name:    "interval on non-recurring",
			mutate:  func(tx *Transaction) { tx.RecurringInterval = Weekly },
			wantErr: true,
		},
		{
			name:    "missing account",
			mutate:  func(tx *Transaction) { tx.AccountID = "" },
			wantErr: true,
		},
		{
			name:    "missing date",
			mutate:  func(tx *Transaction) { tx.Date = time.Time{} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Validate() = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	acc := Account{Name: "Main", Type: AccountCurrent}
	if err := acc.Validate(); err != nil {
		t.Fatalf("valid account rejected: %v", err)
	}

	acc.Type = "CHECKING"
	if err := acc.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown account type: err = %v, want ErrInvalid", err)
	}

	acc = Account{Name: "   ", Type: AccountSavings}
	if err := acc.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank name: err = %v, want ErrInvalid", err)
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{Amount: decimal.RequireFromString("500")}
	if err := b.Validate(); err != nil {
		t.Fatalf("valid budget rejected: %v", err)
	}

	b.Amount = decimal.Zero
	if err := b.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("zero budget: err = %v, want ErrInvalid", err)
	}
}
