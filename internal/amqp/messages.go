package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaterializeJob asks the worker to turn one due recurring template into a
// concrete transaction. Delivery is at-least-once; the worker's due-date
// guard makes duplicates harmless. Attempt counts redeliveries we
// scheduled ourselves through the retry queue.
type MaterializeJob struct {
	JobID         string    `json:"job_id"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Attempt       int       `json:"attempt"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewMaterializeJob creates a job for one template.
func NewMaterializeJob(transactionID, userID string) *MaterializeJob {
	return &MaterializeJob{
		JobID:         uuid.NewString(),
		TransactionID: transactionID,
		UserID:        userID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the job to JSON bytes
func (j *MaterializeJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// MaterializeJobFromJSON creates a job from JSON bytes
func MaterializeJobFromJSON(data []byte) (*MaterializeJob, error) {
	var j MaterializeJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
