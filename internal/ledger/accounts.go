package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// AccountInput carries the user-settable fields of an account.
type AccountInput struct {
	Name      string
	Type      core.AccountType
	Balance   decimal.Decimal
	IsDefault bool
}

// CreateAccount opens an account for the caller. The owner's first
// account always becomes the default; an explicitly requested default
// demotes the previous one in the same unit of work.
func (s *Service) CreateAccount(ctx context.Context, token string, input AccountInput) (*core.Account, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	acc := &core.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      input.Name,
		Type:      input.Type,
		Balance:   input.Balance,
		IsDefault: input.IsDefault,
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(q storage.DBTX) error {
		count, err := s.store.CountAccounts(ctx, q, ownerID)
		if err != nil {
			return err
		}
		if count == 0 {
			acc.IsDefault = true
		} else if acc.IsDefault {
			if err := s.store.ClearDefaultAccount(ctx, q, ownerID); err != nil {
				return err
			}
		}
		return s.store.CreateAccount(ctx, q, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.InfoContext(ctx, "Account created",
		log.FieldAccountID, acc.ID,
		log.FieldOwnerID, ownerID,
		"is_default", acc.IsDefault)

	return acc, nil
}

// SetDefaultAccount switches the caller's default account atomically:
// the old default is demoted and the new one promoted in one unit of
// work, so the one-default invariant holds at every commit point.
func (s *Service) SetDefaultAccount(ctx context.Context, token, accountID string) error {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(q storage.DBTX) error {
		if err := s.store.ClearDefaultAccount(ctx, q, ownerID); err != nil {
			return err
		}
		return s.store.MarkDefaultAccount(ctx, q, ownerID, accountID)
	})
	if err != nil {
		return fmt.Errorf("set default account: %w", err)
	}

	s.log.InfoContext(ctx, "Default account switched",
		log.FieldAccountID, accountID,
		log.FieldOwnerID, ownerID)
	return nil
}

// GetAccountOverview returns the dashboard view for one account, served
// from the LRU cache when a fresh copy survives since the last mutation.
func (s *Service) GetAccountOverview(ctx context.Context, token, accountID string) (cache.AccountView, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return cache.AccountView{}, err
	}

	if view, ok := s.views.Get(accountID); ok && view.Account.OwnerID == ownerID {
		return view, nil
	}

	acc, err := s.store.GetAccount(ctx, ownerID, accountID)
	if err != nil {
		return cache.AccountView{}, err
	}
	txns, err := s.store.ListAccountTransactions(ctx, ownerID, accountID)
	if err != nil {
		return cache.AccountView{}, err
	}

	view := cache.AccountView{
		Account:      *acc,
		Transactions: txns,
		LoadedAt:     time.Now(),
	}
	s.views.Put(accountID, view)
	return view, nil
}

// CreateBudget sets the caller's monthly spending ceiling. One budget
// per owner; a second create surfaces the store's conflict.
func (s *Service) CreateBudget(ctx context.Context, token string, amount decimal.Decimal) (*core.Budget, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	b := &core.Budget{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Amount:  amount,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("create budget: %w", err)
	}

	s.log.InfoContext(ctx, "Budget created",
		log.FieldBudgetID, b.ID,
		log.FieldOwnerID, ownerID,
		log.FieldAmountCents, core.Cents(amount))
	return b, nil
}
