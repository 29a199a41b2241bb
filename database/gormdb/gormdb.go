// Package gormdb opens the SQL backed stores (MySQL in deployments, SQLite for
// local runs and tests) and carries the transaction handle through contexts.
package gormdb

import (
	"context"
	"fmt"
	"time"

	"guardget/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const maxDBRetries = 5

// Open connects to driver at dsn. MySQL connections are retried a few times
// before giving up since the database container often starts after us.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	cfg := Config(NewLogger(log))

	switch driver {
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite %s: %w", dsn, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers; one connection keeps transactions from
		// fighting over the file lock.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverMySQL:
		var (
			db  *gorm.DB
			err error
		)
		for attempt := 1; ; attempt++ {
			db, err = gorm.Open(mysql.Open(dsn), cfg)
			if err == nil {
				return db, nil
			}
			if attempt >= maxDBRetries {
				return nil, fmt.Errorf("failed to open mysql after %d attempts: %w", attempt, err)
			}
			time.Sleep(3 * time.Second)
		}
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Migrate creates or updates every table the services use.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Device{},
		&models.TransferRequest{},
		&models.OtpSession{},
		&models.AuditEntry{},
	)
}

// Config is the gorm configuration shared by servers and tests.
func Config(l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:         l,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

type txKey struct{}

// Conn returns the transaction bound to ctx, or db when there is none.
// Every repository call goes through Conn so work issued inside
// WithTransaction lands on the same connection.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// IsSQLite reports whether db talks to SQLite, which has no row locks.
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == DriverSQLite
}

// TxRunner runs units of work in a gorm transaction.
type TxRunner struct {
	DB *gorm.DB
}

// WithTransaction runs fn in a transaction, joining the caller's transaction
// when ctx already carries one.
func (r TxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// NewLogger routes gorm's logger through zap. A nil zap logger silences it.
func NewLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.New(zapWriter{log: log.Sugar()}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}
