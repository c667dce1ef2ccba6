package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const budgetColumns = `id, owner_id, amount_cents, last_alert_sent, created_at, updated_at`

// CreateBudget inserts an owner's budget. One budget per owner; a second
// insert surfaces as ErrConflict.
func (r *Repository) CreateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.OwnerID, core.Cents(b.Amount), encodeNullTime(b.LastAlertSent),
		encodeTime(now), encodeTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert budget: %w", mapSQLError(err))
	}
	return nil
}

// GetBudget loads an owner's budget.
func (r *Repository) GetBudget(ctx context.Context, ownerID string) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+budgetColumns+` FROM budgets WHERE owner_id = ?
	`, ownerID)
	return scanBudget(row)
}

// ListBudgets returns every budget; the alert evaluator walks all of them
// each cycle.
func (r *Repository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", mapSQLError(err))
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b                    core.Budget
			amountCents          int64
			lastAlert            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&b.ID, &b.OwnerID, &amountCents, &lastAlert, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", mapSQLError(err))
		}
		b.Amount = core.FromCents(amountCents)
		if b.LastAlertSent, err = decodeNullTime(lastAlert); err != nil {
			return nil, fmt.Errorf("budget last_alert_sent: %w", err)
		}
		if b.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("budget created_at: %w", err)
		}
		if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
			return nil, fmt.Errorf("budget updated_at: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", mapSQLError(err))
	}
	return out, nil
}

// MarkAlertSent records the moment an alert went out. Written only after
// a successful send, so a failed send retries next cycle.
func (r *Repository) MarkAlertSent(ctx context.Context, budgetID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET last_alert_sent = ?, updated_at = ? WHERE id = ?
	`, encodeTime(at), encodeTime(time.Now()), budgetID)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", mapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("budget %s: %w", budgetID, core.ErrNotFound)
	}
	return nil
}

func scanBudget(row *sql.Row) (*core.Budget, error) {
	var (
		b                    core.Budget
		amountCents          int64
		lastAlert            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.OwnerID, &amountCents, &lastAlert, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget: %w", mapSQLError(err))
	}

	b.Amount = core.FromCents(amountCents)
	if b.LastAlertSent, err = decodeNullTime(lastAlert); err != nil {
		return nil, fmt.Errorf("budget last_alert_sent: %w", err)
	}
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("budget created_at: %w", err)
	}
	if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("budget updated_at: %w", err)
	}
	return &b, nil
}
