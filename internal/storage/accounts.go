package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const accountColumns = `id, owner_id, name, type, balance_cents, is_default, created_at, updated_at`

// ApplyBalanceDelta is the sole writer of account.balance. It increments
// the balance with a single atomic expression so concurrent writers never
// lose updates, and must run inside the caller's unit of work alongside
// the transaction-row mutation it accompanies.
func (r *Repository) ApplyBalanceDelta(ctx context.Context, q DBTX, accountID string, delta decimal.Decimal) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET balance_cents = balance_cents + ?, updated_at = ?
		WHERE id = ?
	`, core.Cents(delta), encodeTime(time.Now()), accountID)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", mapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	return nil
}

// CreateAccount inserts an account. The caller decides IsDefault; the
// partial unique index turns a second default into ErrConflict.
func (r *Repository) CreateAccount(ctx context.Context, q DBTX, a *core.Account) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.OwnerID, a.Name, string(a.Type), core.Cents(a.Balance),
		boolToInt(a.IsDefault), encodeTime(now), encodeTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", mapSQLError(err))
	}
	return nil
}

// GetAccount loads an account owned by ownerID.
func (r *Repository) GetAccount(ctx context.Context, ownerID, id string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	return scanAccount(row)
}

// GetDefaultAccount returns the owner's default account or ErrNotFound.
func (r *Repository) GetDefaultAccount(ctx context.Context, ownerID string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner_id = ? AND is_default = 1
	`, ownerID)
	return scanAccount(row)
}

// CountAccounts reports how many accounts an owner has. Takes a DBTX so
// it can run inside the unit of work that creates the first account.
func (r *Repository) CountAccounts(ctx context.Context, q DBTX, ownerID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE owner_id = ?`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", mapSQLError(err))
	}
	return n, nil
}

// ClearDefaultAccount demotes the owner's current default, if any. Runs
// inside the same unit of work as the promotion that follows it.
func (r *Repository) ClearDefaultAccount(ctx context.Context, q DBTX, ownerID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE accounts SET is_default = 0, updated_at = ?
		WHERE owner_id = ? AND is_default = 1
	`, encodeTime(time.Now()), ownerID)
	if err != nil {
		return fmt.Errorf("clear default account: %w", mapSQLError(err))
	}
	return nil
}

// MarkDefaultAccount promotes one of the owner's accounts to default.
func (r *Repository) MarkDefaultAccount(ctx context.Context, q DBTX, ownerID, accountID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts SET is_default = 1, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, encodeTime(time.Now()), accountID, ownerID)
	if err != nil {
		return fmt.Errorf("mark default account: %w", mapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark default account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	return nil
}

func scanAccount(row *sql.Row) (*core.Account, error) {
	var (
		a                    core.Account
		typ                  string
		balanceCents         int64
		isDefault            int
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &typ, &balanceCents, &isDefault, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", mapSQLError(err))
	}

	a.Type = core.AccountType(typ)
	a.Balance = core.FromCents(balanceCents)
	a.IsDefault = isDefault == 1
	if a.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("account created_at: %w", err)
	}
	if a.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("account updated_at: %w", err)
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
