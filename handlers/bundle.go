package handlers

import (
	"guardget/middleware"

	"github.com/go-redis/redis/v8"
)

// HandlerBundle groups the endpoint handlers and what the routes need to guard them.
type HandlerBundle struct {
	Auth      middleware.Authenticator
	AuthCache *redis.Client
	Geo       *middleware.GeoLocator

	MaxRequestsPerMin int

	Transfers *TransferHandler
	Devices   *DeviceHandler
	Verify    *VerifyHandler
}
