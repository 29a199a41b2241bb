package cron

import (
	"context"
	"fmt"
	"time"

	"guardget/services/notification"
	"guardget/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Sweeper expires lapsed transfers.
type Sweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Worker runs transfer event delivery and the periodic expiry sweep.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	redisOpt  asynq.RedisClientOpt
	interval  time.Duration
	logger    *zap.Logger
}

// NewWorker wires the task handlers. interval is how often the sweep is queued.
func NewWorker(redisOpt asynq.RedisClientOpt, notifSvc notification.NotificationService, sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"default": 1,
		},
		Logger: logger.Sugar(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeTransferEvent, HandleTransferEvent(notifSvc, logger))
	mux.HandleFunc(tasks.TypeExpireSweep, HandleExpireSweep(sweeper, time.Now, logger))

	return &Worker{
		server:    srv,
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC, Logger: logger.Sugar()}),
		mux:       mux,
		redisOpt:  redisOpt,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the worker and scheduler in the background and returns
// once both are running.
func (w *Worker) Start(ctx context.Context) error {
	task, opts := tasks.NewExpireSweepTask(w.interval)
	if _, err := w.scheduler.Register("@every "+w.interval.String(), task, opts...); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	go w.monitorRedisConnection(ctx)

	w.logger.Info("starting transfer worker", zap.Duration("sweepInterval", w.interval))
	const maxAttempts = 5
	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = w.server.Start(w.mux); err == nil {
			break
		}
		w.logger.Warn("failed to start worker",
			zap.Int("attempt", attempts),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err))
		if attempts < maxAttempts {
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("worker did not start: %w", err)
	}

	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler and waits for in-flight tasks.
func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
	w.logger.Info("transfer worker stopped")
}

// HandleTransferEvent pushes lifecycle notifications to the parties.
func HandleTransferEvent(notifSvc notification.NotificationService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		event, err := tasks.ParseTransferEvent(task)
		if err != nil {
			logger.Error("invalid transfer event payload", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err := notifSvc.NotifyTransferEvent(ctx, event); err != nil {
			logger.Warn("failed to push transfer event",
				zap.String("type", string(event.Type)),
				zap.String("transferId", event.TransferID),
				zap.Error(err))
			return err
		}
		return nil
	}
}

// HandleExpireSweep runs one expiry pass.
func HandleExpireSweep(sweeper Sweeper, now func() time.Time, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := sweeper.ExpireStale(ctx, now().UTC())
		if err != nil {
			logger.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
			return err
		}
		logger.Debug("expiry sweep finished", zap.Int("expired", n))
		return nil
	}
}

// monitorRedisConnection pings the queue Redis periodically to detect failures at runtime.
func (w *Worker) monitorRedisConnection(ctx context.Context) {
	client := redis.NewClient(&redis.Options{
		Addr:     w.redisOpt.Addr,
		Password: w.redisOpt.Password,
		DB:       w.redisOpt.DB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				w.logger.Warn("queue redis connection lost", zap.Error(err))
			}
		}
	}
}
