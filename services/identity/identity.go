package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guardget/database"
	"guardget/database/repository"
	"guardget/models"
	"guardget/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityProvider resolves platform users. Account management itself lives
// outside this service; only lookups and token bookkeeping happen here.
type IdentityProvider interface {
	ResolveByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	// Authenticate maps a bearer token to its user.
	Authenticate(ctx context.Context, token string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
}

// TokenCache forgets a validated bearer token so a rotated token stops
// working before its cache entry expires.
type TokenCache interface {
	Forget(ctx context.Context, tokenHash string) error
}

// RedisTokenCache drops entries written by the bearer auth middleware.
type RedisTokenCache struct {
	Client *redis.Client
}

func (c *RedisTokenCache) Forget(ctx context.Context, tokenHash string) error {
	return c.Client.Del(ctx, utils.AuthCachePrefix+tokenHash).Err()
}

// DefaultIdentityService is the production implementation.
type DefaultIdentityService struct {
	Repo       repository.UserRepository
	TokenCache TokenCache
	Logger     *zap.Logger
}

func (s *DefaultIdentityService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DefaultIdentityService) ResolveByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Repo.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if user == nil {
		return nil, models.ErrRecipientNotFound
	}
	return user, nil
}

func (s *DefaultIdentityService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if user == nil {
		return nil, models.NewNotFoundError("user")
	}
	return user, nil
}

func (s *DefaultIdentityService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if _, err := utils.ExtractIDFromToken(token); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	user, err := s.Repo.GetByTokenHash(ctx, utils.HashToken(token))
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if user == nil {
		return nil, errors.New("token revoked or unknown")
	}
	return user, nil
}

func (s *DefaultIdentityService) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = models.NormalizeEmail(user.Email)
	if user.Name == "" || !strings.Contains(user.Email, "@") {
		return nil, models.NewValidationError("name and a valid email are required")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			exists := *models.ErrEmailExists
			exists.Err = err
			return nil, &exists
		}
		return nil, models.NewTransientError(err)
	}
	return user, nil
}

// IssueToken mints a bearer token and stores its hash, revoking the previous one.
func (s *DefaultIdentityService) IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	token, err := utils.GenerateToken(user.ID, user.Email, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	previous, err := s.Repo.UpdateTokenHash(ctx, user.ID, utils.HashToken(token))
	if err != nil {
		return "", models.NewTransientError(err)
	}
	if previous != "" && s.TokenCache != nil {
		if err := s.TokenCache.Forget(ctx, previous); err != nil {
			s.log().Warn("failed to drop revoked token from auth cache", zap.String("userId", user.ID), zap.Error(err))
		}
	}
	return token, nil
}
