package repository

import (
	"context"
	"fmt"

	auditRepo "guardget/database/repository/audit"
	deviceRepo "guardget/database/repository/device"
	otpRepo "guardget/database/repository/otp"
	transferRepo "guardget/database/repository/transfer"
	userRepo "guardget/database/repository/user"

	"guardget/database"
	"guardget/database/gormdb"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Re-export the repository interfaces and their parameter types.
type (
	UserRepository     = userRepo.UserRepository
	DeviceRepository   = deviceRepo.DeviceRepository
	TransferRepository = transferRepo.TransferRepository
	OtpRepository      = otpRepo.OtpRepository
	AuditRepository    = auditRepo.AuditRepository

	StatusUpdate = deviceRepo.StatusUpdate
	Transition   = transferRepo.Transition
)

// TxRunner runs a unit of work atomically. Repositories called with the ctx
// handed to fn take part in the transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles every repository over one backing database.
type Stores struct {
	Tx        TxRunner
	Users     UserRepository
	Devices   DeviceRepository
	Transfers TransferRepository
	Otps      OtpRepository
	Audit     AuditRepository
	// Ping probes the backing database for the health endpoint.
	Ping func(ctx context.Context) error
}

// NewMongoStores builds the stores on a MongoDB database, creating indexes.
func NewMongoStores(ctx context.Context, db *mongo.Database) (*Stores, error) {
	users, err := userRepo.NewMongoUserRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	devices, err := deviceRepo.NewMongoDeviceRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	transfers, err := transferRepo.NewMongoTransferRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("transfers: %w", err)
	}
	otps, err := otpRepo.NewMongoOtpRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("otp sessions: %w", err)
	}
	audit, err := auditRepo.NewMongoAuditRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	client := db.Client()
	return &Stores{
		Tx:        database.MongoTxRunner{Client: client},
		Users:     users,
		Devices:   devices,
		Transfers: transfers,
		Otps:      otps,
		Audit:     audit,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	}, nil
}

// NewGormStores builds the stores on a SQL database. Call gormdb.Migrate first.
func NewGormStores(db *gorm.DB) *Stores {
	return &Stores{
		Tx:        gormdb.TxRunner{DB: db},
		Users:     userRepo.NewGormUserRepo(db),
		Devices:   deviceRepo.NewGormDeviceRepo(db),
		Transfers: transferRepo.NewGormTransferRepo(db),
		Otps:      otpRepo.NewGormOtpRepo(db),
		Audit:     auditRepo.NewGormAuditRepo(db),
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}
