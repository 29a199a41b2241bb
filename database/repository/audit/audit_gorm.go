package auditRepo

import (
	"context"
	"fmt"

	"guardget/database"
	"guardget/database/gormdb"
	"guardget/models"

	"gorm.io/gorm"
)

// GormAuditRepo implements AuditRepository on a SQL database.
type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

func (r *GormAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := gormdb.Conn(ctx, r.db).Create(entry).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("audit entry for device %s: %w", entry.DeviceID, database.ErrDuplicate)
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *GormAuditRepo) ListByDevice(ctx context.Context, deviceID string, kinds ...models.AuditKind) ([]models.AuditEntry, error) {
	q := gormdb.Conn(ctx, r.db).Where("device_id = ?", deviceID)
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	entries := []models.AuditEntry{}
	if err := q.Order("occurred_at asc").Order("seq asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries for %s: %w", deviceID, err)
	}
	return entries, nil
}
