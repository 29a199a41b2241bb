package transfer

import (
	"context"
	"time"

	"guardget/config"
	"guardget/database/repository"
	"guardget/models"
	"guardget/services/audit"
	"guardget/services/identity"
	"guardget/services/notification"
	"guardget/services/otp"
	"guardget/services/registry"

	"go.uber.org/zap"
)

// TransferCoordinator drives the transfer state machine:
// INITIATED -> OTP_SENT -> OTP_VERIFIED -> COMPLETED, OTP_SENT/OTP_VERIFIED -> REJECTED
// and any open state -> EXPIRED. Every call after Initiate carries the
// session token issued by Initiate.
type TransferCoordinator interface {
	Initiate(ctx context.Context, req models.InitiateTransferRequest) (*models.TransferSession, error)
	VerifyOtp(ctx context.Context, callerID, sessionToken, code string) (*models.TransferResult, error)
	ResendOtp(ctx context.Context, callerID, sessionToken string) (*models.ResendResult, error)
	Cancel(ctx context.Context, callerID, sessionToken string) (*models.TransferResult, error)
	Status(ctx context.Context, callerID, sessionToken string) (*models.TransferStatusView, error)
	// ExpireStale expires open requests past their absolute deadline and
	// returns how many it expired.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// DefaultCoordinator is the production implementation.
type DefaultCoordinator struct {
	Tx        repository.TxRunner
	Transfers repository.TransferRepository
	Registry  registry.DeviceRegistry
	Issuer    otp.OtpIssuer
	Audit     audit.AuditService
	Identity  identity.IdentityProvider
	Events    notification.EventPublisher
	Policy    config.TransferPolicy
	Now       func() time.Time
	Logger    *zap.Logger
}

func (c *DefaultCoordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *DefaultCoordinator) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *DefaultCoordinator) publish(ctx context.Context, event models.TransferEvent) {
	if c.Events == nil {
		return
	}
	c.Events.Publish(ctx, event)
}

// inTx runs fn in a transaction and retries once when storage reports a
// transient failure.
func (c *DefaultCoordinator) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	run := func() error {
		if c.Tx == nil {
			return fn(ctx)
		}
		return c.Tx.WithTransaction(ctx, fn)
	}

	err := models.RetryTransient(run, func(err error) {
		c.log().Warn("retrying transfer operation", zap.String("op", op), zap.Error(err))
	})
	if err == nil {
		return nil
	}
	if _, ok := models.AsAppError(err); !ok {
		c.log().Error("transfer operation failed", zap.String("op", op), zap.Error(err))
		return models.NewTransientError(err)
	}
	return err
}
