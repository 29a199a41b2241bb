// Package repotest opens throwaway SQLite backed stores for tests.
package repotest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"guardget/database/gormdb"
	"guardget/database/repository"
	"guardget/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB opens an isolated in-memory database with every table migrated.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), gormdb.Config(logger.Default.LogMode(logger.Silent)))
	require.NoErrorf(t, err, "gorm.Open failed: %s", err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gormdb.Migrate(db), "migration failed")
	return db
}

// NewStores returns gorm stores over a fresh database.
func NewStores(t *testing.T) *repository.Stores {
	t.Helper()
	return repository.NewGormStores(OpenDB(t))
}

// SeedUser inserts a user with the given name; email and phone derive from it.
func SeedUser(t *testing.T, stores *repository.Stores, name string) *models.User {
	t.Helper()
	user := &models.User{
		ID:          uuid.NewString(),
		Name:        name,
		Email:       name + "@example.com",
		PhoneNumber: "+2547000" + fmt.Sprintf("%05d", len(name)*137%100000),
	}
	require.NoError(t, stores.Users.Create(context.Background(), user))
	return user
}

// SeedDevice registers an active laptop owned by owner with a unique serial.
func SeedDevice(t *testing.T, stores *repository.Stores, owner *models.User) *models.Device {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	device := &models.Device{
		ID:           uuid.NewString(),
		Name:         "ThinkPad",
		Type:         models.DeviceTypeLaptop,
		SerialNumber: "SN" + strings.ToUpper(uuid.NewString()[:8]),
		Status:       models.DeviceActive,
		OwnerID:      owner.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, stores.Devices.Create(context.Background(), device))
	return device
}
