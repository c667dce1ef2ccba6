// Package ledger is the transaction lifecycle manager: it owns the
// balance-mutation protocol for create, edit and bulk-delete, keeping
// each account's balance equal to the sum of its rows' signed
// contributions at all times.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type Service struct {
	store *storage.Repository
	ids   identity.Resolver
	views *cache.Views
	log   *log.Logger
}

func NewService(store *storage.Repository, ids identity.Resolver, views *cache.Views, logger *log.Logger) *Service {
	return &Service{
		store: store,
		ids:   ids,
		views: views,
		log:   logger.WithComponent(log.ComponentLedger),
	}
}

// TransactionInput carries the user-settable fields of a transaction.
type TransactionInput struct {
	AccountID         string
	Type              core.TransactionType
	Amount            decimal.Decimal
	Category          string
	Description       string
	Date              time.Time
	IsRecurring       bool
	RecurringInterval core.RecurringInterval
}

func (s *Service) resolve(ctx context.Context, token string) (string, error) {
	ownerID, err := s.ids.Resolve(ctx, token)
	if err != nil {
		return "", fmt.Errorf("resolve caller: %w", err)
	}
	return ownerID, nil
}

// CreateTransaction validates the input, inserts the row and applies its
// signed contribution to the account balance in one unit of work.
func (s *Service) CreateTransaction(ctx context.Context, token string, input TransactionInput) (*core.Transaction, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	t := &core.Transaction{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		AccountID:         input.AccountID,
		Type:              input.Type,
		Amount:            input.Amount,
		Category:          input.Category,
		Description:       input.Description,
		Date:              input.Date,
		IsRecurring:       input.IsRecurring,
		RecurringInterval: input.RecurringInterval,
		Status:            core.StatusCompleted,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	// The account must exist and belong to the caller before anything
	// is written.
	if _, err := s.store.GetAccount(ctx, ownerID, input.AccountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", input.AccountID, err)
	}

	if t.IsRecurring {
		next := core.NextOccurrence(t.Date, t.RecurringInterval)
		t.NextRecurringDate = &next
	}

	err = s.store.WithTx(ctx, func(q storage.DBTX) error {
		if err := s.store.InsertTransaction(ctx, q, t); err != nil {
			return err
		}
		return s.store.ApplyBalanceDelta(ctx, q, t.AccountID, t.SignedAmount())
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.views.Invalidate(t.AccountID)
	s.log.InfoContext(ctx, "Transaction created",
		log.FieldID, t.ID,
		log.FieldAccountID, t.AccountID,
		log.FieldDeltaCents, core.Cents(t.SignedAmount()))

	return t, nil
}

// UpdateTransaction replaces a transaction's user-settable fields. The
// old contribution is reversed and the new one applied inside the same
// unit of work, so editing amount, type or account never double-counts
// or loses the prior contribution.
func (s *Service) UpdateTransaction(ctx context.Context, token, id string, input TransactionInput) (*core.Transaction, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	// Accounts never change hands, so the ownership check can run ahead
	// of the write. The pre-image itself must be read inside the unit of
	// work below: a copy taken earlier goes stale the moment a
	// concurrent edit commits, and reversing a stale contribution
	// corrupts the balance.
	if _, err := s.store.GetAccount(ctx, ownerID, input.AccountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", input.AccountID, err)
	}

	var updated *core.Transaction
	var previousAccountID string
	var previousDelta decimal.Decimal
	err = s.store.WithTx(ctx, func(q storage.DBTX) error {
		existing, err := s.store.GetTransaction(ctx, q, ownerID, id)
		if err != nil {
			return err
		}
		previousAccountID = existing.AccountID
		previousDelta = existing.SignedAmount()

		updated = &core.Transaction{
			ID:                existing.ID,
			OwnerID:           ownerID,
			AccountID:         input.AccountID,
			Type:              input.Type,
			Amount:            input.Amount,
			Category:          input.Category,
			Description:       input.Description,
			Date:              input.Date,
			IsRecurring:       input.IsRecurring,
			RecurringInterval: input.RecurringInterval,
			Status:            existing.Status,
			CreatedAt:         existing.CreatedAt,
		}
		if err := updated.Validate(); err != nil {
			return err
		}

		switch {
		case !updated.IsRecurring:
			// Recurrence switched off (or never on); the template stops.
		case existing.IsRecurring && existing.RecurringInterval == updated.RecurringInterval:
			// Unchanged schedule keeps its due date and processing history.
			updated.NextRecurringDate = existing.NextRecurringDate
			updated.LastProcessed = existing.LastProcessed
		default:
			next := core.NextOccurrence(updated.Date, updated.RecurringInterval)
			updated.NextRecurringDate = &next
		}

		// Reverse the old contribution, then apply the new one. Two
		// accounts are touched when the edit moves the transaction.
		if err := s.store.ApplyBalanceDelta(ctx, q, existing.AccountID, existing.SignedAmount().Neg()); err != nil {
			return err
		}
		if err := s.store.ApplyBalanceDelta(ctx, q, updated.AccountID, updated.SignedAmount()); err != nil {
			return err
		}
		return s.store.UpdateTransaction(ctx, q, updated)
	})
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}

	s.views.Invalidate(previousAccountID)
	s.views.Invalidate(updated.AccountID)
	s.log.InfoContext(ctx, "Transaction updated",
		log.FieldID, updated.ID,
		log.FieldAccountID, updated.AccountID,
		log.FieldDeltaCents, core.Cents(updated.SignedAmount().Sub(previousDelta)))

	return updated, nil
}

// BulkDeleteTransactions removes a set of the caller's transactions and
// reverses their contributions with one aggregated balance call per
// affected account. If any requested id is not the caller's, nothing is
// deleted and ErrPartialOwnership is returned.
func (s *Service) BulkDeleteTransactions(ctx context.Context, token string, ids []string) (int64, error) {
	ownerID, err := s.resolve(ctx, token)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	unique := dedupe(ids)

	// The rows are read, checked and reversed inside one unit of work so
	// a concurrent edit cannot slip in between the read and the delete
	// and leave a stale reversal on the balance.
	var deleted int64
	reversals := make(map[string]decimal.Decimal)
	err = s.store.WithTx(ctx, func(q storage.DBTX) error {
		owned, err := s.store.ListTransactionsByIDs(ctx, q, ownerID, unique)
		if err != nil {
			return err
		}
		if len(owned) != len(unique) {
			return fmt.Errorf("%d of %d transactions not owned by caller: %w",
				len(unique)-len(owned), len(unique), core.ErrPartialOwnership)
		}

		// Net reversal per account: the opposite of each row's original
		// contribution, summed once per account.
		for _, t := range owned {
			reversals[t.AccountID] = reversals[t.AccountID].Sub(t.SignedAmount())
		}

		deleted, err = s.store.DeleteTransactionsByIDs(ctx, q, ownerID, unique)
		if err != nil {
			return err
		}
		for accountID, delta := range reversals {
			if err := s.store.ApplyBalanceDelta(ctx, q, accountID, delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}

	for accountID := range reversals {
		s.views.Invalidate(accountID)
	}
	s.log.InfoContext(ctx, "Transactions deleted",
		log.FieldOwnerID, ownerID,
		log.FieldCount, deleted)

	return deleted, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
