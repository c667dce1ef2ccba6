// Package worker turns due recurring templates into concrete
// transactions. Delivery from the queue is at-least-once; the processor
// re-checks due state against the database so duplicates and stale jobs
// are harmless no-ops.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type Processor struct {
	store    *storage.Repository
	views    *cache.Views
	throttle *Throttle
	timeout  time.Duration
	log      *log.Logger
}

func NewProcessor(store *storage.Repository, views *cache.Views, throttle *Throttle, timeout time.Duration, logger *log.Logger) *Processor {
	return &Processor{
		store:    store,
		views:    views,
		throttle: throttle,
		timeout:  timeout,
		log:      logger.WithComponent(log.ComponentWorker),
	}
}

// Handle materializes one template: insert the derived transaction,
// apply its balance contribution and advance the template's schedule,
// all in one unit of work. A returned error is retryable.
func (p *Processor) Handle(ctx context.Context, job *amqp.MaterializeJob) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.throttle.Wait(ctx, job.UserID); err != nil {
		return fmt.Errorf("throttle user %s: %w", job.UserID, err)
	}

	// Load and due-check inside the same unit of work as the mutation:
	// two deliveries of the same job serialize on the transaction, so
	// the loser re-reads the advanced template and drops out.
	now := time.Now()
	var derived *core.Transaction
	var interval core.RecurringInterval
	err := p.store.WithTx(ctx, func(q storage.DBTX) error {
		tmpl, err := p.store.GetTransaction(ctx, q, job.UserID, job.TransactionID)
		if err != nil {
			return err
		}
		if !dueNow(tmpl, now) {
			// A duplicate delivery, or the schedule was edited after
			// the job went out. The template's own state wins.
			return nil
		}
		derived = deriveTransaction(tmpl, now)
		interval = tmpl.RecurringInterval
		next := core.NextOccurrence(now, interval)

		if err := p.store.InsertTransaction(ctx, q, derived); err != nil {
			return err
		}
		if err := p.store.ApplyBalanceDelta(ctx, q, derived.AccountID, derived.SignedAmount()); err != nil {
			return err
		}
		return p.store.AdvanceRecurringTemplate(ctx, q, tmpl.ID, now, next)
	})
	if errors.Is(err, core.ErrNotFound) {
		// Deleted between scheduling and processing; nothing to do.
		p.log.InfoContext(ctx, "Template gone, dropping job",
			log.FieldJobID, job.JobID,
			log.FieldID, job.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("materialize template %s: %w", job.TransactionID, err)
	}
	if derived == nil {
		p.log.InfoContext(ctx, "Template not due, dropping job",
			log.FieldJobID, job.JobID,
			log.FieldID, job.TransactionID)
		return nil
	}

	p.views.Invalidate(derived.AccountID)
	p.log.InfoContext(ctx, "Template materialized",
		log.FieldJobID, job.JobID,
		log.FieldID, job.TransactionID,
		log.FieldAccountID, derived.AccountID,
		log.FieldDeltaCents, core.Cents(derived.SignedAmount()),
		log.FieldInterval, string(interval))
	return nil
}

// dueNow re-derives due state from the template row, not the job.
func dueNow(tmpl *core.Transaction, now time.Time) bool {
	if !tmpl.IsRecurring {
		return false
	}
	if tmpl.LastProcessed == nil {
		return true
	}
	return tmpl.NextRecurringDate != nil && !tmpl.NextRecurringDate.After(now)
}

// deriveTransaction builds the concrete row a template spawns: same
// economics, dated at the processing moment, never itself recurring.
func deriveTransaction(tmpl *core.Transaction, now time.Time) *core.Transaction {
	return &core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     tmpl.OwnerID,
		AccountID:   tmpl.AccountID,
		Type:        tmpl.Type,
		Amount:      tmpl.Amount,
		Category:    tmpl.Category,
		Description: tmpl.Description + " (Recurring)",
		Date:        now,
		Status:      core.StatusCompleted,
	}
}
