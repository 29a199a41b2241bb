package routes

import (
	"time"

	"guardget/handlers"
	"guardget/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// publicLookupsPerMin caps anonymous status lookups per IP.
const publicLookupsPerMin = 20

// RegisterTransferRoutes registers the ownership transfer endpoints.
func RegisterTransferRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/transfers")
	{
		api.Use(middleware.JWTAuthUserMiddleware(hb.Auth, hb.AuthCache))
		api.POST("", hb.Transfers.InitiateTransferHandler)
		api.POST("/verify", hb.Transfers.VerifyTransferOtpHandler)
		api.POST("/resend", hb.Transfers.ResendTransferOtpHandler)
		api.POST("/cancel", hb.Transfers.CancelTransferHandler)
		api.POST("/status", hb.Transfers.TransferStatusHandler)
	}
}

// RegisterDeviceRoutes registers the owner device endpoints.
func RegisterDeviceRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/devices")
	{
		api.Use(middleware.JWTAuthUserMiddleware(hb.Auth, hb.AuthCache))
		api.POST("", hb.Devices.RegisterDeviceHandler)
		api.GET("", hb.Devices.ListDevicesHandler)
		api.GET("/:id", hb.Devices.GetDeviceHandler)
		api.GET("/:id/history", hb.Devices.DeviceHistoryHandler)

		report := []gin.HandlerFunc{}
		if hb.Geo != nil {
			report = append(report, hb.Geo.Middleware())
		}
		report = append(report, hb.Devices.ReportStatusHandler)
		api.PUT("/:id/status", report...)
	}
}

// RegisterVerifyRoutes registers the public lookup with its own, stricter limit.
func RegisterVerifyRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/api/verify", middleware.RateLimitMiddleware(publicLookupsPerMin, 5), hb.Verify.VerifyDeviceStatusHandler)
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", handlers.HealthHandler)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware(hb.MaxRequestsPerMin, 0))

	RegisterTransferRoutes(r, hb)
	RegisterDeviceRoutes(r, hb)
	RegisterVerifyRoutes(r, hb)
	RegisterHealthRoute(r)
}
