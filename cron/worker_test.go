package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"guardget/models"
	"guardget/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifications struct {
	events []models.TransferEvent
	err    error
}

func (f *fakeNotifications) SendUserPushNotification(context.Context, string, string, string, map[string]string) error {
	return nil
}

func (f *fakeNotifications) NotifyTransferEvent(_ context.Context, event models.TransferEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeSweeper struct {
	calledAt time.Time
	n        int
	err      error
}

func (f *fakeSweeper) ExpireStale(_ context.Context, now time.Time) (int, error) {
	f.calledAt = now
	return f.n, f.err
}

func TestHandleTransferEvent(t *testing.T) {
	notifs := &fakeNotifications{}
	handler := HandleTransferEvent(notifs, zap.NewNop())

	task, _, err := tasks.NewTransferEventTask(models.TransferEvent{
		Type: models.EventTransferCompleted, TransferID: "t1", DeviceID: "d1",
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, notifs.events, 1)
	assert.Equal(t, models.EventTransferCompleted, notifs.events[0].Type)

	notifs.err = errors.New("fcm down")
	assert.Error(t, handler(context.Background(), task))

	err = handler(context.Background(), asynq.NewTask(tasks.TypeTransferEvent, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleExpireSweep(t *testing.T) {
	sweeper := &fakeSweeper{n: 2}
	at := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
	handler := HandleExpireSweep(sweeper, func() time.Time { return at }, zap.NewNop())

	require.NoError(t, handler(context.Background(), asynq.NewTask(tasks.TypeExpireSweep, nil)))
	assert.Equal(t, at, sweeper.calledAt)

	sweeper.err = errors.New("db down")
	assert.Error(t, handler(context.Background(), asynq.NewTask(tasks.TypeExpireSweep, nil)))
}
