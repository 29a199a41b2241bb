package deviceRepo

import (
	"context"
	"time"

	"guardget/models"
)

// StatusUpdate describes one conditional write to a device row. The write
// only happens when the current status is one of From and, if OwnerID is set,
// the device still belongs to OwnerID.
type StatusUpdate struct {
	DeviceID   string
	From       []models.DeviceStatus
	To         models.DeviceStatus
	OwnerID    string
	NewOwnerID string
	Location   *string
	ReportedAt *time.Time
	At         time.Time
}

// DeviceRepository defines persistence of the device registry. Getters return
// nil, nil when nothing matches.
type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	GetByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Device, error)
	// CompareAndSwap applies u and reports whether a row matched the guards.
	CompareAndSwap(ctx context.Context, u StatusUpdate) (bool, error)
}
