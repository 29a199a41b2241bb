package middleware

import (
	"context"
	"net/http"
	"strings"

	"guardget/models"
	"guardget/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Authenticator maps a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// JWTAuthUserMiddleware resolves the bearer token to a user and stores the
// user id under "userID". Validated token hashes are cached in Redis; a nil
// cache means every request goes to the store.
func JWTAuthUserMiddleware(auth Authenticator, authCache *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := utils.GetLogger()
		ctx := c.Request.Context()

		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if !strings.HasPrefix(authHeader, "Bearer ") || tokenString == "" {
			abortUnauthorized(c)
			return
		}

		// Signature and expiry are checked on every request, cached or not.
		userID, err := utils.ExtractIDFromToken(tokenString)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		computedHash := utils.HashToken(tokenString)
		cacheKey := utils.AuthCachePrefix + computedHash

		if authCache != nil {
			cachedID, err := authCache.Get(ctx, cacheKey).Result()
			if err == nil && cachedID == userID {
				c.Set("userID", userID)
				c.Next()
				return
			}
			if err != nil && err != redis.Nil {
				logger.Warn("auth cache read failed, falling back to store", zap.Error(err))
			}
		}

		user, err := auth.Authenticate(ctx, tokenString)
		if err != nil || user == nil || user.ID != userID {
			if appErr, ok := models.AsAppError(err); ok && appErr.Kind == models.KindTransient {
				utils.RespondError(c, appErr)
				c.Abort()
				return
			}
			abortUnauthorized(c)
			return
		}

		if authCache != nil {
			if err := authCache.Set(ctx, cacheKey, user.ID, utils.AuthCacheTTL).Err(); err != nil {
				logger.Warn("auth cache write failed", zap.Error(err))
			}
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{
		Message: "Insufficient authorization",
		Code:    "UNAUTHORIZED",
	})
}

// CurrentUserID returns the id stored by JWTAuthUserMiddleware.
func CurrentUserID(c *gin.Context) string {
	return c.GetString("userID")
}
