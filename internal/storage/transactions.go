package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const transactionColumns = `id, owner_id, account_id, type, amount_cents, category, description,
	date, is_recurring, recurring_interval, next_recurring_date, last_processed, status,
	created_at, updated_at`

// InsertTransaction writes a transaction row. It never touches the
// balance; the caller pairs it with ApplyBalanceDelta in one unit of work.
func (r *Repository) InsertTransaction(ctx context.Context, q DBTX, t *core.Transaction) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = core.StatusCompleted
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OwnerID, t.AccountID, string(t.Type), core.Cents(t.Amount),
		t.Category, t.Description, encodeTime(t.Date), boolToInt(t.IsRecurring),
		nullString(string(t.RecurringInterval)), encodeNullTime(t.NextRecurringDate),
		encodeNullTime(t.LastProcessed), string(t.Status),
		encodeTime(now), encodeTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapSQLError(err))
	}
	return nil
}

// UpdateTransaction rewrites a transaction's mutable fields. Balance
// reconciliation is the caller's job, inside the same unit of work.
func (r *Repository) UpdateTransaction(ctx context.Context, q DBTX, t *core.Transaction) error {
	t.UpdatedAt = time.Now()

	res, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = ?, type = ?, amount_cents = ?, category = ?, description = ?,
			date = ?, is_recurring = ?, recurring_interval = ?, next_recurring_date = ?,
			updated_at = ?
		WHERE id = ? AND owner_id = ?
	`,
		t.AccountID, string(t.Type), core.Cents(t.Amount), t.Category, t.Description,
		encodeTime(t.Date), boolToInt(t.IsRecurring),
		nullString(string(t.RecurringInterval)), encodeNullTime(t.NextRecurringDate),
		encodeTime(t.UpdatedAt), t.ID, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", mapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

// GetTransaction loads one transaction owned by ownerID. Takes a DBTX so
// pre-image reads for edit and materialization run inside the same unit
// of work as the mutation they feed.
func (r *Repository) GetTransaction(ctx context.Context, q DBTX, ownerID, id string) (*core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", mapSQLError(err))
	}
	list, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return &list[0], nil
}

// ListTransactionsByIDs returns the caller-owned subset of ids.
func (r *Repository) ListTransactionsByIDs(ctx context.Context, q DBTX, ownerID string, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions by ids: %w", mapSQLError(err))
	}
	return collectTransactions(rows)
}

// DeleteTransactionsByIDs removes the given rows for one owner and
// reports how many went away.
func (r *Repository) DeleteTransactionsByIDs(ctx context.Context, q DBTX, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := q.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", mapSQLError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return n, nil
}

// ListAccountTransactions returns an account's rows, newest economic date
// first. Feeds the dashboard view cache.
func (r *Repository) ListAccountTransactions(ctx context.Context, ownerID, accountID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ? AND account_id = ?
		ORDER BY date DESC, created_at DESC
	`, ownerID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", mapSQLError(err))
	}
	return collectTransactions(rows)
}

// DueRecurringTemplates finds recurring templates ready to materialize:
// never processed, or past their next due date.
func (r *Repository) DueRecurringTemplates(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring = 1 AND status = ?
			AND (last_processed IS NULL OR next_recurring_date <= ?)
	`, string(core.StatusCompleted), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("due recurring templates: %w", mapSQLError(err))
	}
	return collectTransactions(rows)
}

// AdvanceRecurringTemplate records a materialization: lastProcessed moves
// to now and the next due date is set. Part of the job's unit of work.
func (r *Repository) AdvanceRecurringTemplate(ctx context.Context, q DBTX, id string, lastProcessed, next time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET last_processed = ?, next_recurring_date = ?, updated_at = ?
		WHERE id = ? AND is_recurring = 1
	`, encodeTime(lastProcessed), encodeTime(next), encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("advance recurring template: %w", mapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance recurring template: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SumAccountExpenses totals EXPENSE amounts on one account in [start, end).
func (r *Repository) SumAccountExpenses(ctx context.Context, accountID string, start, end time.Time) (decimal.Decimal, error) {
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(amount_cents) FROM transactions
		WHERE account_id = ? AND type = ? AND date >= ? AND date < ?
	`, accountID, string(core.Expense), encodeTime(start), encodeTime(end)).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum account expenses: %w", mapSQLError(err))
	}
	return core.FromCents(cents.Int64), nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t                    core.Transaction
			typ, status          string
			amountCents          int64
			date                 string
			isRecurring          int
			interval             sql.NullString
			nextDate, lastProc   sql.NullString
			createdAt, updatedAt string
		)
		err := rows.Scan(
			&t.ID, &t.OwnerID, &t.AccountID, &typ, &amountCents, &t.Category,
			&t.Description, &date, &isRecurring, &interval, &nextDate, &lastProc,
			&status, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", mapSQLError(err))
		}

		t.Type = core.TransactionType(typ)
		t.Amount = core.FromCents(amountCents)
		t.IsRecurring = isRecurring == 1
		t.RecurringInterval = core.RecurringInterval(interval.String)
		t.Status = core.TransactionStatus(status)
		if t.Date, err = decodeTime(date); err != nil {
			return nil, fmt.Errorf("transaction date: %w", err)
		}
		if t.NextRecurringDate, err = decodeNullTime(nextDate); err != nil {
			return nil, fmt.Errorf("transaction next_recurring_date: %w", err)
		}
		if t.LastProcessed, err = decodeNullTime(lastProc); err != nil {
			return nil, fmt.Errorf("transaction last_processed: %w", err)
		}
		if t.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("transaction created_at: %w", err)
		}
		if t.UpdatedAt, err = decodeTime(updatedAt); err != nil {
			return nil, fmt.Errorf("transaction updated_at: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", mapSQLError(err))
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
