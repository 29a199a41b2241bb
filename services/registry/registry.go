package registry

import (
	"context"

	"guardget/database/repository"
	"guardget/models"
	"guardget/services/audit"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (r *DefaultDeviceRegistry) Register(ctx context.Context, ownerID string, reg models.DeviceRegistration) (*models.Device, error) {
	if ownerID == "" {
		return nil, models.NewValidationError("owner is required")
	}
	if err := validateRegistration(&reg); err != nil {
		return nil, err
	}

	now := r.now()
	device := &models.Device{
		ID:           uuid.NewString(),
		Name:         reg.Name,
		Type:         reg.Type,
		SerialNumber: reg.SerialNumber,
		IMEI1:        reg.IMEI1,
		IMEI2:        reg.IMEI2,
		Status:       models.DeviceActive,
		OwnerID:      ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.withTx(ctx, "register", func(ctx context.Context) error {
		for _, id := range device.Identifiers() {
			existing, err := r.Repo.GetByIdentifier(ctx, id, models.IdentifierAny)
			if err != nil {
				return models.NewTransientError(err)
			}
			if existing != nil {
				return models.ErrDeviceExists
			}
		}
		if err := r.Repo.Create(ctx, device); err != nil {
			return models.NewTransientError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, device)
	r.log().Info("device registered", zap.String("deviceId", device.ID), zap.String("ownerId", ownerID))
	return device, nil
}

func (r *DefaultDeviceRegistry) Lookup(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := r.Repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if device == nil {
		return nil, models.NewNotFoundError("device")
	}
	return device, nil
}

func (r *DefaultDeviceRegistry) LookupByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error) {
	if kind == models.IdentifierSerial {
		identifier = NormalizeSerial(identifier)
	}
	device, err := r.Repo.GetByIdentifier(ctx, identifier, kind)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if device == nil && kind == models.IdentifierAny {
		// serials are stored upper-cased
		if upper := NormalizeSerial(identifier); upper != identifier {
			device, err = r.Repo.GetByIdentifier(ctx, upper, kind)
			if err != nil {
				return nil, models.NewTransientError(err)
			}
		}
	}
	if device == nil {
		return nil, models.NewNotFoundError("device")
	}
	return device, nil
}

func (r *DefaultDeviceRegistry) ListByOwner(ctx context.Context, ownerID string) ([]models.Device, error) {
	devices, err := r.Repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	return devices, nil
}

// TryLock moves an active device to transfer_pending.
func (r *DefaultDeviceRegistry) TryLock(ctx context.Context, deviceID string) error {
	ok, err := r.Repo.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID: deviceID,
		From:     []models.DeviceStatus{models.DeviceActive},
		To:       models.DeviceTransferPending,
		At:       r.now(),
	})
	if err != nil {
		return models.NewTransientError(err)
	}
	if !ok {
		return r.classifyMiss(ctx, deviceID)
	}
	r.invalidateID(ctx, deviceID)
	return nil
}

// Unlock releases a transfer_pending device into to.
func (r *DefaultDeviceRegistry) Unlock(ctx context.Context, deviceID string, to models.DeviceStatus) error {
	ok, err := r.Repo.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID: deviceID,
		From:     []models.DeviceStatus{models.DeviceTransferPending},
		To:       to,
		At:       r.now(),
	})
	if err != nil {
		return models.NewTransientError(err)
	}
	if !ok {
		return r.classifyMiss(ctx, deviceID)
	}
	r.invalidateID(ctx, deviceID)
	return nil
}

// ReassignOwner hands a locked device to newOwnerID and unlocks it in the same write.
func (r *DefaultDeviceRegistry) ReassignOwner(ctx context.Context, deviceID, newOwnerID string) error {
	ok, err := r.Repo.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID:   deviceID,
		From:       []models.DeviceStatus{models.DeviceTransferPending},
		To:         models.DeviceActive,
		NewOwnerID: newOwnerID,
		At:         r.now(),
	})
	if err != nil {
		return models.NewTransientError(err)
	}
	if !ok {
		return r.classifyMiss(ctx, deviceID)
	}
	r.invalidateID(ctx, deviceID)
	return nil
}

// ReportStatus applies an owner's status report and records it in the audit log.
func (r *DefaultDeviceRegistry) ReportStatus(ctx context.Context, report models.StatusReport) (*models.Device, error) {
	if !report.Status.IsReportable() {
		return nil, models.NewValidationError("status must be one of active, inactive, missing, stolen")
	}

	var updated *models.Device
	err := r.withTx(ctx, "report_status", func(ctx context.Context) error {
		updated = nil
		device, err := r.Lookup(ctx, report.DeviceID)
		if err != nil {
			return err
		}
		if device.OwnerID != report.ActorID {
			return models.ErrNotOwner
		}
		if device.Status == models.DeviceTransferPending {
			return models.ErrAlreadyPending
		}

		now := r.now()
		location := ""
		if report.Status.Flagged() {
			location = report.Location
		}
		ok, err := r.Repo.CompareAndSwap(ctx, repository.StatusUpdate{
			DeviceID:   device.ID,
			From:       []models.DeviceStatus{device.Status},
			To:         report.Status,
			OwnerID:    report.ActorID,
			Location:   &location,
			ReportedAt: &now,
			At:         now,
		})
		if err != nil {
			return models.NewTransientError(err)
		}
		if !ok {
			return r.classifyMiss(ctx, device.ID)
		}

		if err := r.Audit.RecordStatusChange(ctx, audit.StatusChangeRecord{
			DeviceID: device.ID,
			ActorID:  report.ActorID,
			Previous: device.Status,
			Next:     report.Status,
			Location: location,
			At:       now,
		}); err != nil {
			return err
		}

		device.Status = report.Status
		device.LastKnownLocation = location
		device.StatusReportedAt = &now
		device.UpdatedAt = now
		updated = device
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, updated)
	r.log().Info("device status reported",
		zap.String("deviceId", updated.ID),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// classifyMiss explains why a conditional update matched nothing.
func (r *DefaultDeviceRegistry) classifyMiss(ctx context.Context, deviceID string) error {
	device, err := r.Lookup(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.Status == models.DeviceTransferPending {
		return models.ErrAlreadyPending
	}
	return models.ErrNotActive
}

func (r *DefaultDeviceRegistry) invalidateID(ctx context.Context, deviceID string) {
	if r.Cache == nil {
		return
	}
	device, err := r.Repo.GetByID(ctx, deviceID)
	if err != nil || device == nil {
		return
	}
	r.invalidate(ctx, device)
}

func (r *DefaultDeviceRegistry) invalidate(ctx context.Context, device *models.Device) {
	if r.Cache == nil || device == nil {
		return
	}
	r.Cache.Invalidate(ctx, device.Identifiers()...)
}
