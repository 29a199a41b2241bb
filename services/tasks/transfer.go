package tasks

import (
	"encoding/json"
	"time"

	"guardget/models"

	"github.com/hibiken/asynq"
)

const (
	TypeTransferEvent = "transfer:event"
	TypeExpireSweep   = "transfer:expire-sweep"
)

// NewTransferEventTask wraps a lifecycle event for push delivery.
func NewTransferEventTask(event models.TransferEvent) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeTransferEvent, b)
	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(30 * time.Second)}
	return task, opts, nil
}

// ParseTransferEvent decodes the payload of a TypeTransferEvent task.
func ParseTransferEvent(task *asynq.Task) (models.TransferEvent, error) {
	var event models.TransferEvent
	err := json.Unmarshal(task.Payload(), &event)
	return event, err
}

// NewExpireSweepTask is the periodic sweep of lapsed transfers. Unique keeps
// overlapping scheduler ticks from queueing the same sweep twice.
func NewExpireSweepTask(interval time.Duration) (*asynq.Task, []asynq.Option) {
	task := asynq.NewTask(TypeExpireSweep, nil)
	opts := []asynq.Option{asynq.Unique(interval), asynq.MaxRetry(1)}
	return task, opts
}
