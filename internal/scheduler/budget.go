package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/storage"
)

// BudgetEvaluator walks every budget each cycle, compares the current
// month's spending on the owner's default account against the threshold
// and sends at most one alert per budget per calendar month.
type BudgetEvaluator struct {
	store        *storage.Repository
	sender       notify.Sender
	thresholdPct decimal.Decimal
	log          *log.Logger
}

func NewBudgetEvaluator(store *storage.Repository, sender notify.Sender, thresholdPct int64, logger *log.Logger) *BudgetEvaluator {
	return &BudgetEvaluator{
		store:        store,
		sender:       sender,
		thresholdPct: decimal.NewFromInt(thresholdPct),
		log:          logger.WithComponent(log.ComponentBudget),
	}
}

// RunCycle evaluates every budget at now and returns how many alerts went
// out. One budget's failure does not stop the rest.
func (e *BudgetEvaluator) RunCycle(ctx context.Context, now time.Time) (int, error) {
	budgets, err := e.store.ListBudgets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}

	alerts := 0
	for _, b := range budgets {
		sent, err := e.evaluate(ctx, b, now)
		if err != nil {
			e.log.ItemFailure(ctx, "budget alert", b.ID, err)
			continue
		}
		if sent {
			alerts++
		}
	}

	e.log.InfoContext(ctx, "Budget cycle finished",
		"budgets", len(budgets),
		"alerts", alerts)
	return alerts, nil
}

func (e *BudgetEvaluator) evaluate(ctx context.Context, b core.Budget, now time.Time) (bool, error) {
	acc, err := e.store.GetDefaultAccount(ctx, b.OwnerID)
	if errors.Is(err, core.ErrNotFound) {
		// Owner has no default account yet; nothing to measure against.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !b.Amount.IsPositive() {
		// The schema rejects these on write; a row that predates the
		// constraint must not take down the cycle with a zero division.
		return false, fmt.Errorf("budget amount %s: %w", b.Amount, core.ErrInvalid)
	}

	start, end := core.MonthBounds(now)
	spent, err := e.store.SumAccountExpenses(ctx, acc.ID, start, end)
	if err != nil {
		return false, err
	}

	pct := spent.Div(b.Amount).Mul(decimal.NewFromInt(100))
	if pct.LessThan(e.thresholdPct) {
		return false, nil
	}
	if b.LastAlertSent != nil && core.SameMonth(*b.LastAlertSent, now) {
		// Already alerted this month.
		return false, nil
	}

	if err := e.sender.Send(ctx, alertMessage(b, acc.Name, spent, pct)); err != nil {
		return false, fmt.Errorf("send alert: %w", err)
	}
	// Recorded only after a successful send; a failed send retries next
	// cycle instead of silencing the month.
	if err := e.store.MarkAlertSent(ctx, b.ID, now); err != nil {
		return false, err
	}

	e.log.InfoContext(ctx, "Budget alert sent",
		log.FieldBudgetID, b.ID,
		log.FieldOwnerID, b.OwnerID,
		log.FieldAccountID, acc.ID,
		"used_pct", pct.Round(1).String())
	return true, nil
}

func alertMessage(b core.Budget, accountName string, spent, pct decimal.Decimal) notify.Message {
	return notify.Message{
		To:      b.OwnerID,
		Subject: fmt.Sprintf("Budget Alert for %s", accountName),
		Body: fmt.Sprintf(
			"You've used %s%% of your monthly budget: %s spent of %s.",
			pct.Round(1).String(), spent.StringFixed(2), b.Amount.StringFixed(2)),
	}
}
