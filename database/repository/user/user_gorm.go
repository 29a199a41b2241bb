package userRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardget/database"
	"guardget/database/gormdb"
	"guardget/models"

	"gorm.io/gorm"
)

// GormUserRepo implements UserRepository on a SQL database.
type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) first(query *gorm.DB) (*models.User, error) {
	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := r.first(gormdb.Conn(ctx, r.db).Omit("token_hash").Where("id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user with id %s: %w", id, err)
	}
	return user, nil
}

func (r *GormUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := r.first(gormdb.Conn(ctx, r.db).Omit("token_hash").Where("email = ?", models.NormalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user with email %s: %w", email, err)
	}
	return user, nil
}

func (r *GormUserRepo) GetByTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if hash == "" {
		return nil, nil
	}
	user, err := r.first(gormdb.Conn(ctx, r.db).Where("token_hash = ?", hash))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user by token: %w", err)
	}
	return user, nil
}

func (r *GormUserRepo) Create(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if err := gormdb.Conn(ctx, r.db).Create(user).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("user %s: %w", user.Email, database.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *GormUserRepo) UpdateTokenHash(ctx context.Context, id, hash string) (string, error) {
	var previous string
	err := gormdb.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id", "token_hash").Where("id = ?", id).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user with id %s not found", id)
			}
			return err
		}
		previous = user.TokenHash
		return tx.Model(&models.User{}).Where("id = ?", id).
			Updates(map[string]interface{}{"token_hash": hash, "updated_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to update token for user %s: %w", id, err)
	}
	return previous, nil
}
