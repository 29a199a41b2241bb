package registry

import (
	"context"
	"time"

	"guardget/database/repository"
	"guardget/models"
	"guardget/services/audit"

	"go.uber.org/zap"
)

// DeviceRegistry owns device records. Every status or owner change is one
// conditional update so concurrent transfers and reports cannot interleave.
type DeviceRegistry interface {
	Register(ctx context.Context, ownerID string, reg models.DeviceRegistration) (*models.Device, error)
	Lookup(ctx context.Context, deviceID string) (*models.Device, error)
	LookupByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Device, error)

	TryLock(ctx context.Context, deviceID string) error
	Unlock(ctx context.Context, deviceID string, to models.DeviceStatus) error
	ReassignOwner(ctx context.Context, deviceID, newOwnerID string) error

	ReportStatus(ctx context.Context, report models.StatusReport) (*models.Device, error)
}

// CacheInvalidator drops cached public lookups for the given identifiers.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, identifiers ...string)
}

// DefaultDeviceRegistry is the production implementation.
type DefaultDeviceRegistry struct {
	Repo   repository.DeviceRepository
	Audit  audit.AuditService
	Tx     repository.TxRunner
	Cache  CacheInvalidator
	Now    func() time.Time
	Logger *zap.Logger
}

func (r *DefaultDeviceRegistry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *DefaultDeviceRegistry) log() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

// withTx runs fn in a transaction and once more if storage hiccups.
func (r *DefaultDeviceRegistry) withTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	run := func() error {
		if r.Tx == nil {
			return fn(ctx)
		}
		return r.Tx.WithTransaction(ctx, fn)
	}
	return models.RetryTransient(run, func(err error) {
		r.log().Warn("retrying device operation", zap.String("op", op), zap.Error(err))
	})
}
