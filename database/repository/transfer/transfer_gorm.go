package transferRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardget/database"
	"guardget/database/gormdb"
	"guardget/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTransferRepo implements TransferRepository on a SQL database.
type GormTransferRepo struct {
	db *gorm.DB
}

func NewGormTransferRepo(db *gorm.DB) *GormTransferRepo {
	return &GormTransferRepo{db: db}
}

func (r *GormTransferRepo) Create(ctx context.Context, req *models.TransferRequest) error {
	if err := gormdb.Conn(ctx, r.db).Create(req).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("transfer for device %s: %w", req.DeviceID, database.ErrDuplicate)
		}
		return fmt.Errorf("failed to create transfer request: %w", err)
	}
	return nil
}

func (r *GormTransferRepo) first(query *gorm.DB) (*models.TransferRequest, error) {
	var req models.TransferRequest
	if err := query.First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *GormTransferRepo) GetByID(ctx context.Context, id string) (*models.TransferRequest, error) {
	req, err := r.first(gormdb.Conn(ctx, r.db).Where("id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer %s: %w", id, err)
	}
	return req, nil
}

func (r *GormTransferRepo) GetOpenByDevice(ctx context.Context, deviceID string) (*models.TransferRequest, error) {
	req, err := r.first(gormdb.Conn(ctx, r.db).Where("open_device_key = ?", deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open transfer for device %s: %w", deviceID, err)
	}
	return req, nil
}

// LockForUpdate issues SELECT ... FOR UPDATE. SQLite has no row locks; its
// single writer connection already serializes transactions.
func (r *GormTransferRepo) LockForUpdate(ctx context.Context, id string) (*models.TransferRequest, error) {
	q := gormdb.Conn(ctx, r.db)
	if !gormdb.IsSQLite(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	req, err := r.first(q.Where("id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock transfer %s: %w", id, err)
	}
	return req, nil
}

func (r *GormTransferRepo) Transition(ctx context.Context, t Transition) (bool, error) {
	q := gormdb.Conn(ctx, r.db).Model(&models.TransferRequest{}).
		Where("id = ?", t.ID).
		Where("status IN ?", t.From)
	if t.AbsoluteExpiredBy != nil {
		q = q.Where("absolute_expires_at <= ?", *t.AbsoluteExpiredBy)
	}
	if t.SessionExpiredBy != nil {
		q = q.Where("session_expires_at <= ?", *t.SessionExpiredBy)
	}

	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": t.At,
	}
	if t.ToUserID != "" {
		updates["to_user_id"] = t.ToUserID
	}
	if t.To.IsTerminal() {
		updates["resolved_at"] = t.At
		updates["open_device_key"] = gorm.Expr("NULL")
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move transfer %s to %s: %w", t.ID, t.To, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormTransferRepo) IncrementResend(ctx context.Context, id string, max int, at time.Time) (bool, error) {
	res := gormdb.Conn(ctx, r.db).Model(&models.TransferRequest{}).
		Where("id = ? AND resend_count < ?", id, max).
		Updates(map[string]interface{}{
			"resend_count": gorm.Expr("resend_count + 1"),
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to count resend for transfer %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormTransferRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.TransferRequest, error) {
	reqs := []models.TransferRequest{}
	err := gormdb.Conn(ctx, r.db).
		Where("status IN ? AND absolute_expires_at <= ?", models.OpenTransferStatuses, now).
		Order("absolute_expires_at asc").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired transfers: %w", err)
	}
	return reqs, nil
}
