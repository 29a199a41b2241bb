package cmd

import (
	"context"
	"fmt"

	"guardget/config"
	"guardget/database"
	"guardget/database/gormdb"
	"guardget/database/repository"
	"guardget/handlers"
	"guardget/middleware"
	"guardget/services/audit"
	"guardget/services/identity"
	"guardget/services/notification"
	"guardget/services/otp"
	"guardget/services/registry"
	"guardget/services/transfer"
	"guardget/services/verification"
	"guardget/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// app holds the wired services shared by every command.
type app struct {
	logger *zap.Logger
	stores *repository.Stores

	identity      *identity.DefaultIdentityService
	audit         *audit.DefaultAuditService
	registry      *registry.DefaultDeviceRegistry
	issuer        *otp.DefaultOtpIssuer
	coordinator   *transfer.DefaultCoordinator
	verification  *verification.DefaultVerificationService
	notifications *notification.DefaultNotificationService

	redisUp bool
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.AppConfig
	logger := utils.GetLogger()
	a := &app{logger: logger}

	stores, err := a.openStores(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = stores

	if err := utils.InitCache(); err != nil {
		logger.Warn("redis unavailable, running without cache and job queue", zap.Error(err))
	} else {
		a.redisUp = true
		a.closers = append(a.closers, utils.CloseCache)
	}

	var events notification.EventPublisher = notification.NopPublisher{}
	if a.redisUp {
		queue := asynq.NewClient(utils.QueueRedisOpt())
		a.closers = append(a.closers, func() { _ = queue.Close() })
		events = &notification.AsynqEventPublisher{Client: queue, Logger: logger}
	}

	a.identity = &identity.DefaultIdentityService{Repo: stores.Users, Logger: logger}
	if client := utils.GetAuthCacheClient(); client != nil {
		a.identity.TokenCache = &identity.RedisTokenCache{Client: client}
	}
	a.audit = &audit.DefaultAuditService{Repo: stores.Audit}
	a.registry = &registry.DefaultDeviceRegistry{
		Repo:   stores.Devices,
		Audit:  a.audit,
		Tx:     stores.Tx,
		Logger: logger,
	}
	a.issuer = &otp.DefaultOtpIssuer{
		Repo:     stores.Otps,
		Notifier: notification.NewWhatsAppNotifier(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIToken, logger),
		Policy:   cfg.OTP(),
		Logger:   logger,
	}
	a.coordinator = &transfer.DefaultCoordinator{
		Tx:        stores.Tx,
		Transfers: stores.Transfers,
		Registry:  a.registry,
		Issuer:    a.issuer,
		Audit:     a.audit,
		Identity:  a.identity,
		Events:    events,
		Policy:    cfg.Transfer(),
		Logger:    logger,
	}
	a.verification = &verification.DefaultVerificationService{
		Registry: a.registry,
		Audit:    a.audit,
		Users:    a.identity,
		Logger:   logger,
	}
	if client := utils.GetCacheClient(); client != nil {
		cache := &verification.RedisLookupCache{Client: client, TTL: cfg.LookupCacheTTL, Logger: logger}
		a.verification.Cache = cache
		a.registry.Cache = cache
	}

	a.notifications = &notification.DefaultNotificationService{Users: a.identity, Logger: logger}
	fcm, err := utils.FirebaseInit(ctx, cfg.FirebaseCredentials)
	if err != nil {
		logger.Warn("firebase unavailable, push notifications disabled", zap.Error(err))
	} else if fcm != nil {
		a.notifications.FCM = fcm
	}

	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg config.Config) (*repository.Stores, error) {
	switch cfg.DBDriver {
	case "", "mongo":
		client, err := database.InitDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		a.logger.Info("using MongoDB store", zap.String("database", cfg.DatabaseName))
		return repository.NewMongoStores(ctx, client.Database(cfg.DatabaseName))

	case gormdb.DriverMySQL, gormdb.DriverSQLite:
		db, err := gormdb.Open(cfg.DBDriver, cfg.SQLDSN, a.logger)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		if err := gormdb.Migrate(db); err != nil {
			return nil, err
		}
		a.logger.Info("using SQL store", zap.String("driver", cfg.DBDriver))
		return repository.NewGormStores(db), nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}

func (a *app) handlerBundle() *handlers.HandlerBundle {
	hb := &handlers.HandlerBundle{
		Auth:              a.identity,
		AuthCache:         utils.GetAuthCacheClient(),
		MaxRequestsPerMin: config.AppConfig.MaxRequestsPerMin,
		Transfers:         handlers.NewTransferHandler(a.coordinator),
		Devices:           handlers.NewDeviceHandler(a.registry, a.audit),
		Verify:            handlers.NewVerifyHandler(a.verification),
	}
	if url := config.AppConfig.GeolocationAPIURL; url != "" {
		hb.Geo = middleware.NewGeoLocator(url, a.logger)
	}
	return hb
}

// Close waits for pending code deliveries and releases connections.
func (a *app) Close() {
	if a.issuer != nil {
		a.issuer.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
