// Package scheduler holds the two periodic cycles: fanning out
// materialization jobs for due recurring templates, and evaluating
// budgets for threshold alerts. Each cycle is a single RunCycle call;
// the process entrypoints drive it on a ticker.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Publisher enqueues one materialization job.
type Publisher interface {
	PublishMaterialization(ctx context.Context, job *amqp.MaterializeJob) error
}

// Recurring fans out one job per due recurring template. It never
// materializes anything itself; the worker owns that unit of work.
type Recurring struct {
	store *storage.Repository
	queue Publisher
	log   *log.Logger
}

func NewRecurring(store *storage.Repository, queue Publisher, logger *log.Logger) *Recurring {
	return &Recurring{
		store: store,
		queue: queue,
		log:   logger.WithComponent(log.ComponentScheduler),
	}
}

// RunCycle publishes a job for every template due at now and returns how
// many went out. One template's publish failure does not stop the rest.
func (r *Recurring) RunCycle(ctx context.Context, now time.Time) (int, error) {
	due, err := r.store.DueRecurringTemplates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find due templates: %w", err)
	}

	published := 0
	for _, tmpl := range due {
		job := amqp.NewMaterializeJob(tmpl.ID, tmpl.OwnerID)
		if err := r.queue.PublishMaterialization(ctx, job); err != nil {
			r.log.ItemFailure(ctx, "publish materialization", tmpl.ID, err)
			continue
		}
		published++
	}

	r.log.InfoContext(ctx, "Recurring cycle finished",
		"due", len(due),
		"published", published)
	return published, nil
}
