package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"guardget/database"
	"guardget/database/repository"
	"guardget/database/repository/repotest"
	"guardget/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	owner := repotest.SeedUser(t, stores, "alice")
	device := repotest.SeedDevice(t, stores, owner)
	now := time.Now().UTC().Truncate(time.Second)

	ok, err := stores.Devices.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID: device.ID,
		From:     []models.DeviceStatus{models.DeviceActive},
		To:       models.DeviceTransferPending,
		At:       now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// second lock attempt loses
	ok, err = stores.Devices.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID: device.ID,
		From:     []models.DeviceStatus{models.DeviceActive},
		To:       models.DeviceTransferPending,
		At:       now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// owner guard
	ok, err = stores.Devices.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID:   device.ID,
		From:       []models.DeviceStatus{models.DeviceTransferPending},
		To:         models.DeviceActive,
		OwnerID:    "someone-else",
		NewOwnerID: "bob",
		At:         now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = stores.Devices.CompareAndSwap(ctx, repository.StatusUpdate{
		DeviceID:   device.ID,
		From:       []models.DeviceStatus{models.DeviceTransferPending},
		To:         models.DeviceActive,
		NewOwnerID: "bob",
		At:         now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := stores.Devices.GetByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.OwnerID)
	assert.Equal(t, models.DeviceActive, got.Status)

	missing, err := stores.Devices.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeviceLookupByIdentifierKind(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	owner := repotest.SeedUser(t, stores, "alice")
	now := time.Now().UTC()
	phone := &models.Device{
		ID: uuid.NewString(), Name: "Pixel", Type: models.DeviceTypePhone,
		SerialNumber: "PX1", IMEI1: "490154203237518", Status: models.DeviceActive,
		OwnerID: owner.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, stores.Devices.Create(ctx, phone))

	for _, tc := range []struct {
		identifier string
		kind       models.IdentifierKind
		found      bool
	}{
		{"490154203237518", models.IdentifierIMEI, true},
		{"490154203237518", models.IdentifierAny, true},
		{"490154203237518", models.IdentifierSerial, false},
		{"PX1", models.IdentifierSerial, true},
		{"PX1", models.IdentifierIMEI, false},
	} {
		got, err := stores.Devices.GetByIdentifier(ctx, tc.identifier, tc.kind)
		require.NoError(t, err)
		assert.Equal(t, tc.found, got != nil, "%s/%s", tc.identifier, tc.kind)
	}
}

func TestOneOpenTransferPerDevice(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	owner := repotest.SeedUser(t, stores, "alice")
	device := repotest.SeedDevice(t, stores, owner)
	now := time.Now().UTC().Truncate(time.Second)

	newReq := func() *models.TransferRequest {
		key := device.ID
		return &models.TransferRequest{
			ID: uuid.NewString(), DeviceID: device.ID, OpenDeviceKey: &key,
			FromUserID: owner.ID, ToUserEmail: "bob@example.com", Status: models.TransferInitiated,
			CreatedAt: now, UpdatedAt: now, AbsoluteExpiresAt: now.Add(time.Hour), SessionExpiresAt: now.Add(time.Minute),
		}
	}

	first := newReq()
	require.NoError(t, stores.Transfers.Create(ctx, first))
	err := stores.Transfers.Create(ctx, newReq())
	assert.True(t, errors.Is(err, database.ErrDuplicate), "got %v", err)

	open, err := stores.Transfers.GetOpenByDevice(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, first.ID, open.ID)

	// terminal transition frees the slot
	ok, err := stores.Transfers.Transition(ctx, repository.Transition{
		ID: first.ID, From: models.OpenTransferStatuses, To: models.TransferRejected, At: now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	open, err = stores.Transfers.GetOpenByDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
	require.NoError(t, stores.Transfers.Create(ctx, newReq()))

	// a terminal request never moves again
	ok, err = stores.Transfers.Transition(ctx, repository.Transition{
		ID: first.ID, From: models.OpenTransferStatuses, To: models.TransferExpired, At: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionDeadlineGuards(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	owner := repotest.SeedUser(t, stores, "alice")
	device := repotest.SeedDevice(t, stores, owner)
	now := time.Now().UTC().Truncate(time.Second)
	key := device.ID
	req := &models.TransferRequest{
		ID: uuid.NewString(), DeviceID: device.ID, OpenDeviceKey: &key, FromUserID: owner.ID,
		ToUserEmail: "bob@example.com", Status: models.TransferOtpSent,
		CreatedAt: now, UpdatedAt: now, AbsoluteExpiresAt: now.Add(time.Hour), SessionExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, stores.Transfers.Create(ctx, req))

	early := now.Add(30 * time.Minute)
	ok, err := stores.Transfers.Transition(ctx, repository.Transition{
		ID: req.ID, From: models.OpenTransferStatuses, To: models.TransferExpired, At: early, AbsoluteExpiredBy: &early,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	expired, err := stores.Transfers.ListExpired(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	late := now.Add(2 * time.Hour)
	ok, err = stores.Transfers.Transition(ctx, repository.Transition{
		ID: req.ID, From: models.OpenTransferStatuses, To: models.TransferExpired, At: late, AbsoluteExpiredBy: &late,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := stores.Transfers.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferExpired, got.Status)
	assert.Nil(t, got.OpenDeviceKey)
	require.NotNil(t, got.ResolvedAt)
}

func TestIncrementResendStopsAtCap(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	owner := repotest.SeedUser(t, stores, "alice")
	device := repotest.SeedDevice(t, stores, owner)
	now := time.Now().UTC()
	req := &models.TransferRequest{
		ID: uuid.NewString(), DeviceID: device.ID, FromUserID: owner.ID, ToUserEmail: "bob@example.com",
		Status: models.TransferOtpSent, CreatedAt: now, UpdatedAt: now,
		AbsoluteExpiresAt: now.Add(time.Hour), SessionExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, stores.Transfers.Create(ctx, req))

	for i := 0; i < 2; i++ {
		ok, err := stores.Transfers.IncrementResend(ctx, req.ID, 2, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := stores.Transfers.IncrementResend(ctx, req.ID, 2, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOtpSessionGuards(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	now := time.Now().UTC().Truncate(time.Second)
	reqID := uuid.NewString()

	first := &models.OtpSession{ID: uuid.NewString(), TransferRequestID: reqID, Seq: 1, CodeHash: "h1",
		IssuedAt: now, ExpiresAt: now.Add(15 * time.Minute), AttemptsRemaining: 2, ResendCooldownUntil: now}
	second := &models.OtpSession{ID: uuid.NewString(), TransferRequestID: reqID, Seq: 2, CodeHash: "h2",
		IssuedAt: now, ExpiresAt: now.Add(15 * time.Minute), AttemptsRemaining: 2, ResendCooldownUntil: now}
	require.NoError(t, stores.Otps.Create(ctx, first))

	remaining, ok, err := stores.Otps.DecrementAttempts(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	n, err := stores.Otps.InvalidateAll(ctx, reqID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err = stores.Otps.DecrementAttempts(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ok, "invalidated session must not change")

	require.NoError(t, stores.Otps.Create(ctx, second))
	latest, err := stores.Otps.Latest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	ok, err = stores.Otps.Consume(ctx, second.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = stores.Otps.Consume(ctx, second.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditAppendOnlyAndUnique(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	deviceID := uuid.NewString()
	reqID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)

	entry := func(seq int64, transferID *string, kind models.AuditKind) *models.AuditEntry {
		return &models.AuditEntry{ID: uuid.NewString(), Kind: kind, DeviceID: deviceID,
			TransferRequestID: transferID, OccurredAt: base, Seq: seq}
	}

	require.NoError(t, stores.Audit.Append(ctx, entry(1, nil, models.AuditStatusChange)))
	require.NoError(t, stores.Audit.Append(ctx, entry(2, &reqID, models.AuditTransfer)))
	require.NoError(t, stores.Audit.Append(ctx, entry(3, nil, models.AuditStatusChange)))

	err := stores.Audit.Append(ctx, entry(4, &reqID, models.AuditTransfer))
	assert.True(t, errors.Is(err, database.ErrDuplicate), "got %v", err)

	all, err := stores.Audit.ListByDevice(ctx, deviceID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.EqualValues(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	transfers, err := stores.Audit.ListByDevice(ctx, deviceID, models.AuditTransfer)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}

func TestUserLookups(t *testing.T) {
	ctx := context.Background()
	stores := repotest.NewStores(t)
	user := repotest.SeedUser(t, stores, "Carol")

	got, err := stores.Users.GetByEmail(ctx, "  CAROL@example.com ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	previous, err := stores.Users.UpdateTokenHash(ctx, user.ID, "abc")
	require.NoError(t, err)
	assert.Empty(t, previous)
	previous, err = stores.Users.UpdateTokenHash(ctx, user.ID, "def")
	require.NoError(t, err)
	assert.Equal(t, "abc", previous)
	previous, err = stores.Users.UpdateTokenHash(ctx, user.ID, "abc")
	require.NoError(t, err)
	assert.Equal(t, "def", previous)
	byToken, err := stores.Users.GetByTokenHash(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, user.ID, byToken.ID)

	none, err := stores.Users.GetByTokenHash(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	dup := &models.User{ID: uuid.NewString(), Name: "again", Email: "carol@example.com"}
	assert.True(t, errors.Is(stores.Users.Create(ctx, dup), database.ErrDuplicate))
}
