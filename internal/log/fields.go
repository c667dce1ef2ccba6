package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldID          = "id"
	FieldOwnerID     = "owner_id"
	FieldAccountID   = "account_id"
	FieldBudgetID    = "budget_id"
	FieldJobID       = "job_id"
	FieldAmountCents = "amount_cents"
	FieldDeltaCents  = "delta_cents"
	FieldInterval    = "interval"
	FieldAttempt     = "attempt"
	FieldQueue       = "queue"
	FieldDuration    = "duration_ms"
	FieldCount       = "count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentScheduler = "scheduler"
	ComponentBudget    = "budget"
	ComponentWorker    = "worker"
	ComponentNotify    = "notify"
)
