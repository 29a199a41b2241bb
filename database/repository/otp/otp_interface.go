package otpRepo

import (
	"context"
	"time"

	"guardget/models"
)

// OtpRepository persists issued transfer codes. Every mutation is guarded so
// a consumed or invalidated session can never be changed again.
type OtpRepository interface {
	Create(ctx context.Context, session *models.OtpSession) error
	// Latest returns the most recently issued session of a request, or nil.
	Latest(ctx context.Context, transferRequestID string) (*models.OtpSession, error)
	// DecrementAttempts takes one attempt from a live session and returns
	// what is left. ok is false when the session was no longer live.
	DecrementAttempts(ctx context.Context, id string) (remaining int, ok bool, err error)
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	InvalidateAll(ctx context.Context, transferRequestID string, at time.Time) (int64, error)
}
