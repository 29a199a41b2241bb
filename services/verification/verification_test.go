package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guardget/database/repository"
	"guardget/database/repository/repotest"
	"guardget/models"
	"guardget/services/audit"
	"guardget/services/identity"
	"guardget/services/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]models.DeviceStatusQuery
	hits    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]models.DeviceStatusQuery{}}
}

func (c *memoryCache) Get(_ context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(identifier, kind)]
	if !ok {
		return nil, false
	}
	c.hits++
	return &e, true
}

func (c *memoryCache) Set(_ context.Context, identifier string, kind models.IdentifierKind, result *models.DeviceStatusQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(identifier, kind)] = *result
}

func (c *memoryCache) Invalidate(_ context.Context, identifiers ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range identifiers {
		for _, kind := range cachedKinds {
			delete(c.entries, cacheKey(id, kind))
		}
	}
}

type fixture struct {
	svc      *DefaultVerificationService
	registry *registry.DefaultDeviceRegistry
	audit    *audit.DefaultAuditService
	stores   *repository.Stores
	cache    *memoryCache
	owner    *models.User
	device   *models.Device
}

func newFixture(t *testing.T) *fixture {
	stores := repotest.NewStores(t)
	cache := newMemoryCache()
	auditSvc := &audit.DefaultAuditService{Repo: stores.Audit}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reg := &registry.DefaultDeviceRegistry{
		Repo: stores.Devices, Audit: auditSvc, Tx: stores.Tx, Cache: cache,
		Now: func() time.Time { return now },
	}
	owner := repotest.SeedUser(t, stores, "carol")
	return &fixture{
		svc: &DefaultVerificationService{
			Registry: reg,
			Audit:    auditSvc,
			Users:    &identity.DefaultIdentityService{Repo: stores.Users},
			Cache:    cache,
		},
		registry: reg,
		audit:    auditSvc,
		stores:   stores,
		cache:    cache,
		owner:    owner,
		device:   repotest.SeedDevice(t, stores, owner),
	}
}

func TestUnknownIdentifierLooksClean(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	known, err := f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierSerial)
	require.NoError(t, err)
	unknown, err := f.svc.Lookup(ctx, "NOPE-0000", models.IdentifierSerial)
	require.NoError(t, err)

	known.Identifier, unknown.Identifier = "", ""
	assert.Equal(t, known, unknown)
	assert.Equal(t, models.DeviceActive, unknown.Status)
	assert.NotNil(t, unknown.History)
	assert.Empty(t, unknown.History)

	blank, err := f.svc.Lookup(ctx, "   ", models.IdentifierAny)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, blank.Status)
}

func TestStolenDeviceShowsContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.registry.ReportStatus(ctx, models.StatusReport{
		DeviceID: f.device.ID, ActorID: f.owner.ID, Status: models.DeviceStolen, Location: "Westlands, Nairobi",
	})
	require.NoError(t, err)

	result, err := f.svc.Lookup(ctx, strings.ToLower(f.device.SerialNumber), models.IdentifierAny)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStolen, result.Status)
	assert.True(t, result.Flagged)
	assert.Equal(t, "Westlands, Nairobi", result.LastKnownLocation)
	require.NotNil(t, result.ReportedAt)
	require.NotNil(t, result.OwnerContact)
	assert.Equal(t, "c****@example.com", result.OwnerContact.Email)
	assert.NotContains(t, result.OwnerContact.Phone, f.owner.PhoneNumber[:6])
	assert.True(t, strings.HasSuffix(f.owner.PhoneNumber, strings.TrimLeft(result.OwnerContact.Phone, "*")))
}

func TestActiveDeviceHidesContactButShowsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	buyer := repotest.SeedUser(t, f.stores, "dave")

	require.NoError(t, f.audit.RecordTransfer(ctx, audit.TransferRecord{
		Request: &models.TransferRequest{
			ID: "req-1", DeviceID: f.device.ID, FromUserID: f.owner.ID, ToUserEmail: buyer.Email, Reason: "gift",
		},
		FinalStatus: models.TransferCompleted,
		From:        f.owner,
		To:          buyer,
		At:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}))

	result, err := f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierSerial)
	require.NoError(t, err)
	assert.False(t, result.Flagged)
	assert.Nil(t, result.OwnerContact)
	assert.Empty(t, result.LastKnownLocation)
	require.Len(t, result.History, 1)
	assert.Equal(t, models.TransferCompleted, result.History[0].FinalStatus)
	assert.Equal(t, "d***@example.com", result.History[0].To.Email)
	assert.Equal(t, "gift", result.History[0].Reason)
}

func TestStatusChangeInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierAny)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, first.Status)

	_, err = f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierAny)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.registry.ReportStatus(ctx, models.StatusReport{
		DeviceID: f.device.ID, ActorID: f.owner.ID, Status: models.DeviceMissing,
	})
	require.NoError(t, err)

	after, err := f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierAny)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceMissing, after.Status)
	assert.Equal(t, 1, f.cache.hits)
}

type brokenRegistry struct {
	registry.DeviceRegistry
	mu    sync.Mutex
	calls int
	fails int
}

func (b *brokenRegistry) LookupByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error) {
	b.mu.Lock()
	b.calls++
	failing := b.fails < 0 || b.calls <= b.fails
	b.mu.Unlock()
	if failing {
		return nil, models.NewTransientError(errors.New("connection reset"))
	}
	return b.DeviceRegistry.LookupByIdentifier(ctx, identifier, kind)
}

func TestStorageFailureIsTransient(t *testing.T) {
	broken := &brokenRegistry{fails: -1}
	svc := &DefaultVerificationService{Registry: broken}
	_, err := svc.Lookup(context.Background(), "SN123456", models.IdentifierAny)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.Equal(t, 2, broken.calls)
}

func TestLookupRetriesOnceAfterHiccup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	flaky := &brokenRegistry{DeviceRegistry: f.registry, fails: 1}
	f.svc.Registry = flaky

	unknown, err := f.svc.Lookup(ctx, "NOPE-0000", models.IdentifierSerial)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, unknown.Status)
	assert.Equal(t, 2, flaky.calls)

	flaky.calls, flaky.fails = 0, 0
	known, err := f.svc.Lookup(ctx, f.device.SerialNumber, models.IdentifierSerial)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, known.Status)
	assert.Equal(t, 1, flaky.calls)
}
