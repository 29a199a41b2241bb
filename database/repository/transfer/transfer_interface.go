package transferRepo

import (
	"context"
	"time"

	"guardget/models"
)

// Transition is a conditional status change of a transfer request. It only
// applies while the request is in one of From and, when set, its absolute or
// session deadline has passed the given instant.
type Transition struct {
	ID                string
	From              []models.TransferStatus
	To                models.TransferStatus
	At                time.Time
	ToUserID          string
	AbsoluteExpiredBy *time.Time
	SessionExpiredBy  *time.Time
}

// TransferRepository persists transfer requests. Getters return nil, nil
// when nothing matches.
type TransferRepository interface {
	// Create fails with database.ErrDuplicate when the device already has an open request.
	Create(ctx context.Context, req *models.TransferRequest) error
	GetByID(ctx context.Context, id string) (*models.TransferRequest, error)
	GetOpenByDevice(ctx context.Context, deviceID string) (*models.TransferRequest, error)
	// LockForUpdate reads the request and holds it against concurrent
	// writers until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, id string) (*models.TransferRequest, error)
	Transition(ctx context.Context, t Transition) (bool, error)
	// IncrementResend bumps resendCount while it is still below max.
	IncrementResend(ctx context.Context, id string, max int, at time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.TransferRequest, error)
}
