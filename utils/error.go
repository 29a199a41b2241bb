package utils

import (
	"errors"
	"net/http"
	"time"

	"guardget/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message           string     `json:"message"`
	Code              string     `json:"code,omitempty"`
	Details           string     `json:"details,omitempty"`
	AttemptsRemaining *int       `json:"attemptsRemaining,omitempty"`
	RetryAt           *time.Time `json:"retryAt,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger := GetLogger()
				Logger.Error("Unhandled panic", zap.Any("error", err))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	Logger := GetLogger()
	Logger.Warn(message, zap.String("details", details))
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// RespondError maps a service error onto the matching HTTP response.
func RespondError(c *gin.Context, err error) {
	appErr, ok := models.AsAppError(err)
	if !ok {
		GetLogger().Error("unclassified error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error"})
		return
	}

	resp := ErrorResponse{Message: appErr.Message, Code: appErr.Code, RetryAt: appErr.RetryAt}
	if errors.Is(appErr, models.ErrInvalidOtp) {
		remaining := appErr.AttemptsRemaining
		resp.AttemptsRemaining = &remaining
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		GetLogger().Error(appErr.Message, zap.String("code", appErr.Code), zap.Error(appErr.Err))
	} else {
		GetLogger().Debug(appErr.Message, zap.String("code", appErr.Code))
	}
	c.JSON(status, resp)
}
