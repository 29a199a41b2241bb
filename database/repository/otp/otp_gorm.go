package otpRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardget/database/gormdb"
	"guardget/models"

	"gorm.io/gorm"
)

// GormOtpRepo implements OtpRepository on a SQL database.
type GormOtpRepo struct {
	db *gorm.DB
}

func NewGormOtpRepo(db *gorm.DB) *GormOtpRepo {
	return &GormOtpRepo{db: db}
}

const liveClause = "consumed_at IS NULL AND invalidated_at IS NULL"

func (r *GormOtpRepo) Create(ctx context.Context, session *models.OtpSession) error {
	if err := gormdb.Conn(ctx, r.db).Create(session).Error; err != nil {
		return fmt.Errorf("failed to store otp session: %w", err)
	}
	return nil
}

func (r *GormOtpRepo) Latest(ctx context.Context, transferRequestID string) (*models.OtpSession, error) {
	var session models.OtpSession
	err := gormdb.Conn(ctx, r.db).
		Where("transfer_request_id = ?", transferRequestID).
		Order("seq desc").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch otp session for %s: %w", transferRequestID, err)
	}
	return &session, nil
}

func (r *GormOtpRepo) DecrementAttempts(ctx context.Context, id string) (int, bool, error) {
	conn := gormdb.Conn(ctx, r.db)
	res := conn.Model(&models.OtpSession{}).
		Where("id = ? AND attempts_remaining > 0 AND "+liveClause, id).
		Update("attempts_remaining", gorm.Expr("attempts_remaining - 1"))
	if res.Error != nil {
		return 0, false, fmt.Errorf("failed to record otp attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	var session models.OtpSession
	if err := conn.Where("id = ?", id).First(&session).Error; err != nil {
		return 0, false, fmt.Errorf("failed to reload otp session: %w", err)
	}
	return session.AttemptsRemaining, true, nil
}

func (r *GormOtpRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	res := gormdb.Conn(ctx, r.db).Model(&models.OtpSession{}).
		Where("id = ? AND attempts_remaining > 0 AND "+liveClause, id).
		Update("consumed_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume otp session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOtpRepo) InvalidateAll(ctx context.Context, transferRequestID string, at time.Time) (int64, error) {
	res := gormdb.Conn(ctx, r.db).Model(&models.OtpSession{}).
		Where("transfer_request_id = ? AND "+liveClause, transferRequestID).
		Update("invalidated_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to invalidate otp sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
