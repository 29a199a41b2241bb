package notification

import (
	"context"

	"guardget/models"
	"guardget/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client used to publish events.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqEventPublisher queues lifecycle events for the worker. Publishing
// never fails the caller; queue errors are logged and dropped.
type AsynqEventPublisher struct {
	Client Enqueuer
	Logger *zap.Logger
}

func (p *AsynqEventPublisher) Publish(ctx context.Context, event models.TransferEvent) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	task, opts, err := tasks.NewTransferEventTask(event)
	if err != nil {
		logger.Error("failed to encode transfer event", zap.Error(err))
		return
	}
	if _, err := p.Client.EnqueueContext(ctx, task, opts...); err != nil {
		logger.Warn("failed to enqueue transfer event",
			zap.String("type", string(event.Type)),
			zap.String("transferId", event.TransferID),
			zap.Error(err))
	}
}

// NopPublisher drops events. Used when no queue is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.TransferEvent) {}
