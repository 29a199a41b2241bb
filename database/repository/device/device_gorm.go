package deviceRepo

import (
	"context"
	"errors"
	"fmt"

	"guardget/database/gormdb"
	"guardget/models"

	"gorm.io/gorm"
)

// GormDeviceRepo implements DeviceRepository on a SQL database.
type GormDeviceRepo struct {
	db *gorm.DB
}

func NewGormDeviceRepo(db *gorm.DB) *GormDeviceRepo {
	return &GormDeviceRepo{db: db}
}

func (r *GormDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	if err := gormdb.Conn(ctx, r.db).Create(device).Error; err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *GormDeviceRepo) first(query *gorm.DB) (*models.Device, error) {
	var device models.Device
	if err := query.First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *GormDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	device, err := r.first(gormdb.Conn(ctx, r.db).Where("id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device with id %s: %w", id, err)
	}
	return device, nil
}

func (r *GormDeviceRepo) GetByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error) {
	q := gormdb.Conn(ctx, r.db)
	switch kind {
	case models.IdentifierSerial:
		q = q.Where("serial_number = ?", identifier)
	case models.IdentifierIMEI:
		q = q.Where("imei1 = ? OR imei2 = ?", identifier, identifier)
	default:
		q = q.Where("serial_number = ? OR imei1 = ? OR imei2 = ?", identifier, identifier, identifier)
	}
	device, err := r.first(q)
	if err != nil {
		return nil, fmt.Errorf("failed to look up device by identifier: %w", err)
	}
	return device, nil
}

func (r *GormDeviceRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Device, error) {
	devices := []models.Device{}
	err := gormdb.Conn(ctx, r.db).Where("owner_id = ?", ownerID).Order("created_at asc").Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for owner %s: %w", ownerID, err)
	}
	return devices, nil
}

func (r *GormDeviceRepo) CompareAndSwap(ctx context.Context, u StatusUpdate) (bool, error) {
	q := gormdb.Conn(ctx, r.db).Model(&models.Device{}).
		Where("id = ?", u.DeviceID).
		Where("status IN ?", u.From)
	if u.OwnerID != "" {
		q = q.Where("owner_id = ?", u.OwnerID)
	}

	updates := map[string]interface{}{
		"status":     u.To,
		"updated_at": u.At,
	}
	if u.NewOwnerID != "" {
		updates["owner_id"] = u.NewOwnerID
	}
	if u.Location != nil {
		updates["last_known_location"] = *u.Location
	}
	if u.ReportedAt != nil {
		updates["status_reported_at"] = *u.ReportedAt
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update device %s: %w", u.DeviceID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
