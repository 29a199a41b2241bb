package transfer

import (
	"context"
	"errors"
	"strings"
	"time"

	"guardget/database"
	"guardget/database/repository"
	"guardget/models"
	"guardget/services/audit"
	"guardget/services/otp"
	"guardget/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (c *DefaultCoordinator) Initiate(ctx context.Context, req models.InitiateTransferRequest) (*models.TransferSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	owner, err := c.Identity.GetUser(ctx, req.FromUserID)
	if err != nil {
		return nil, err
	}
	recipient, err := c.Identity.ResolveByEmail(ctx, req.ToUserEmail)
	if err != nil {
		return nil, err
	}
	if recipient.ID == owner.ID {
		return nil, models.ErrSelfTransfer
	}
	phone := owner.OtpPhone()
	if phone == "" {
		return nil, models.ErrNoKeyholder
	}

	var (
		request *models.TransferRequest
		device  *models.Device
		issued  *otp.Issued
		token   string
		stale   *models.TransferRequest
	)
	err = c.inTx(ctx, "initiate", func(ctx context.Context) error {
		request, device, issued, token, stale = nil, nil, nil, "", nil
		now := c.now()

		d, err := c.Registry.Lookup(ctx, req.DeviceID)
		if err != nil {
			return err
		}
		if d.OwnerID != owner.ID {
			return models.ErrNotOwner
		}
		if d.Status == models.DeviceTransferPending {
			if stale, err = c.takeOverStale(ctx, d.ID, owner.ID, now); err != nil {
				return err
			}
		}
		if err := c.Registry.TryLock(ctx, d.ID); err != nil {
			return err
		}

		id := uuid.NewString()
		sessionExpiresAt := now.Add(c.Policy.SessionTTL)
		signed, tokenHash, err := signSession(id, d.ID, owner.ID, now, sessionExpiresAt)
		if err != nil {
			return err
		}
		openKey := d.ID
		r := &models.TransferRequest{
			ID:                id,
			DeviceID:          d.ID,
			OpenDeviceKey:     &openKey,
			FromUserID:        owner.ID,
			ToUserEmail:       req.ToUserEmail,
			Reason:            req.Reason,
			Status:            models.TransferInitiated,
			TokenHash:         tokenHash,
			CreatedAt:         now,
			UpdatedAt:         now,
			AbsoluteExpiresAt: now.Add(c.Policy.TransferTTL),
			SessionExpiresAt:  sessionExpiresAt,
		}
		if err := c.Transfers.Create(ctx, r); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return models.ErrAlreadyPending
			}
			return models.NewTransientError(err)
		}

		code, err := c.Issuer.Issue(ctx, r.ID)
		if err != nil {
			return err
		}
		if err := c.transition(ctx, repository.Transition{
			ID:   r.ID,
			From: []models.TransferStatus{models.TransferInitiated},
			To:   models.TransferOtpSent,
			At:   now,
		}); err != nil {
			return err
		}
		r.Status = models.TransferOtpSent

		request, device, issued, token = r, d, code, signed
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Issuer.Deliver(phone, issued)
	if stale != nil {
		c.publish(ctx, closedEvent(stale, models.EventTransferExpired, device.Name, request.CreatedAt))
	}
	c.publish(ctx, models.TransferEvent{
		Type:       models.EventTransferInitiated,
		TransferID: request.ID,
		DeviceID:   device.ID,
		DeviceName: device.Name,
		FromUserID: owner.ID,
		ToUserID:   recipient.ID,
		OccurredAt: request.CreatedAt,
	})
	c.log().Info("transfer initiated",
		zap.String("transferId", request.ID),
		zap.String("deviceId", device.ID),
		zap.String("recipient", utils.MaskEmail(request.ToUserEmail)))

	return &models.TransferSession{
		SessionToken:      token,
		TransferID:        request.ID,
		Status:            request.Status,
		SessionExpiresAt:  request.SessionExpiresAt,
		OtpExpiresAt:      issued.Session.ExpiresAt,
		ResendAvailableAt: issued.Session.ResendCooldownUntil,
	}, nil
}

// takeOverStale expires the owner's own open request when its session
// envelope has lapsed, so a new one can be started. Other open requests are
// left for TryLock to reject.
func (c *DefaultCoordinator) takeOverStale(ctx context.Context, deviceID, ownerID string, now time.Time) (*models.TransferRequest, error) {
	open, err := c.Transfers.GetOpenByDevice(ctx, deviceID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if open == nil || open.FromUserID != ownerID || !now.After(open.SessionExpiresAt) {
		return nil, nil
	}
	won, err := c.closeRequest(ctx, open, repository.Transition{
		ID:               open.ID,
		From:             models.OpenTransferStatuses,
		To:               models.TransferExpired,
		At:               now,
		SessionExpiredBy: &now,
	})
	if err != nil || !won {
		return nil, err
	}
	c.log().Info("stale transfer taken over", zap.String("transferId", open.ID))
	return open, nil
}

func (c *DefaultCoordinator) VerifyOtp(ctx context.Context, callerID, sessionToken, code string) (*models.TransferResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, models.NewValidationError("code is required")
	}
	claims, err := parseSession(sessionToken, c.now(), false)
	if err != nil {
		return nil, err
	}

	var (
		result    *models.TransferResult
		rejection error
		event     models.TransferEvent
	)
	err = c.inTx(ctx, "verify", func(ctx context.Context) error {
		result, rejection = nil, nil
		now := c.now()

		req, err := c.loadSession(ctx, claims, callerID, sessionToken)
		if err != nil {
			return err
		}
		if err := openForCode(req, now); err != nil {
			return err
		}

		outcome, err := c.Issuer.Verify(ctx, req.ID, code)
		if err != nil {
			return err
		}
		switch outcome.Status {
		case otp.VerifyInvalid:
			rejection = models.NewInvalidOtpError(outcome.AttemptsRemaining)
			return nil
		case otp.VerifyExpired:
			rejection = models.ErrOtpExpired
			return nil
		case otp.VerifyLocked:
			rejection = models.ErrOtpLocked
			return nil
		case otp.VerifyConsumed:
			return models.ErrAlreadyCompleted
		}

		recipient, err := c.Identity.ResolveByEmail(ctx, req.ToUserEmail)
		if err != nil {
			return err
		}
		device, err := c.Registry.Lookup(ctx, req.DeviceID)
		if err != nil {
			return err
		}
		if device.OwnerID != req.FromUserID {
			return models.ErrNotOwner
		}

		if err := c.transition(ctx, repository.Transition{
			ID:       req.ID,
			From:     []models.TransferStatus{models.TransferOtpSent},
			To:       models.TransferOtpVerified,
			At:       now,
			ToUserID: recipient.ID,
		}); err != nil {
			return err
		}
		if err := c.Registry.ReassignOwner(ctx, device.ID, recipient.ID); err != nil {
			return err
		}
		if err := c.transition(ctx, repository.Transition{
			ID:   req.ID,
			From: []models.TransferStatus{models.TransferOtpVerified},
			To:   models.TransferCompleted,
			At:   now,
		}); err != nil {
			return err
		}
		req.ToUserID = recipient.ID

		from, err := c.userOrNil(ctx, req.FromUserID)
		if err != nil {
			return err
		}
		if err := c.Audit.RecordTransfer(ctx, audit.TransferRecord{
			Request:     req,
			FinalStatus: models.TransferCompleted,
			From:        from,
			To:          recipient,
			At:          now,
		}); err != nil {
			return err
		}

		result = &models.TransferResult{
			TransferID: req.ID,
			DeviceID:   device.ID,
			Status:     models.TransferCompleted,
			OwnerID:    recipient.ID,
		}
		event = closedEvent(req, models.EventTransferCompleted, device.Name, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		c.log().Info("transfer code rejected",
			zap.String("transferId", claims.TransferID),
			zap.Error(rejection))
		return nil, rejection
	}

	c.publish(ctx, event)
	c.log().Info("transfer completed",
		zap.String("transferId", result.TransferID),
		zap.String("deviceId", result.DeviceID))
	return result, nil
}

func (c *DefaultCoordinator) ResendOtp(ctx context.Context, callerID, sessionToken string) (*models.ResendResult, error) {
	claims, err := parseSession(sessionToken, c.now(), false)
	if err != nil {
		return nil, err
	}

	var (
		result *models.ResendResult
		issued *otp.Issued
		phone  string
	)
	err = c.inTx(ctx, "resend", func(ctx context.Context) error {
		result, issued, phone = nil, nil, ""
		now := c.now()

		req, err := c.loadSession(ctx, claims, callerID, sessionToken)
		if err != nil {
			return err
		}
		if err := openForCode(req, now); err != nil {
			return err
		}
		owner, err := c.Identity.GetUser(ctx, req.FromUserID)
		if err != nil {
			return err
		}
		if phone = owner.OtpPhone(); phone == "" {
			return models.ErrNoKeyholder
		}

		ok, err := c.Transfers.IncrementResend(ctx, req.ID, c.Policy.MaxResends, now)
		if err != nil {
			return models.NewTransientError(err)
		}
		if !ok {
			return models.ErrResendLimit
		}
		if issued, err = c.Issuer.Resend(ctx, req.ID); err != nil {
			return err
		}

		result = &models.ResendResult{
			TransferID:        req.ID,
			OtpExpiresAt:      issued.Session.ExpiresAt,
			ResendAvailableAt: issued.Session.ResendCooldownUntil,
			ResendsRemaining:  c.Policy.MaxResends - req.ResendCount - 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Issuer.Deliver(phone, issued)
	c.log().Info("transfer code resent", zap.String("transferId", result.TransferID))
	return result, nil
}

func (c *DefaultCoordinator) Cancel(ctx context.Context, callerID, sessionToken string) (*models.TransferResult, error) {
	claims, err := parseSession(sessionToken, c.now(), true)
	if err != nil {
		return nil, err
	}

	var (
		result *models.TransferResult
		event  models.TransferEvent
	)
	err = c.inTx(ctx, "cancel", func(ctx context.Context) error {
		result = nil
		now := c.now()

		req, err := c.loadSession(ctx, claims, callerID, sessionToken)
		if err != nil {
			return err
		}
		if err := terminalError(req.Status); err != nil {
			return err
		}
		won, err := c.closeRequest(ctx, req, repository.Transition{
			ID:   req.ID,
			From: []models.TransferStatus{models.TransferOtpSent, models.TransferOtpVerified},
			To:   models.TransferRejected,
			At:   now,
		})
		if err != nil {
			return err
		}
		if !won {
			return models.ErrAlreadyTerminal
		}

		result = &models.TransferResult{
			TransferID: req.ID,
			DeviceID:   req.DeviceID,
			Status:     models.TransferRejected,
			OwnerID:    req.FromUserID,
		}
		event = closedEvent(req, models.EventTransferRejected, "", now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, event)
	c.log().Info("transfer cancelled", zap.String("transferId", result.TransferID))
	return result, nil
}

func (c *DefaultCoordinator) Status(ctx context.Context, callerID, sessionToken string) (*models.TransferStatusView, error) {
	now := c.now()
	claims, err := parseSession(sessionToken, now, true)
	if err != nil {
		return nil, err
	}
	req, err := c.Transfers.GetByID(ctx, claims.TransferID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if err := checkSession(req, claims, callerID, sessionToken); err != nil {
		return nil, err
	}

	view := &models.TransferStatusView{
		TransferID:        req.ID,
		DeviceID:          req.DeviceID,
		ToUserEmail:       req.ToUserEmail,
		Status:            req.Status,
		SessionExpired:    now.After(req.SessionExpiresAt),
		SessionExpiresAt:  req.SessionExpiresAt,
		AbsoluteExpiresAt: req.AbsoluteExpiresAt,
	}
	if req.Status == models.TransferOtpSent {
		session, err := c.Issuer.Latest(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if session != nil && session.InvalidatedAt == nil {
			view.OtpExpiresAt = &session.ExpiresAt
			view.AttemptsRemaining = session.AttemptsRemaining
			view.ResendAvailableAt = &session.ResendCooldownUntil
		}
	}
	return view, nil
}

// loadSession locks the request named by the token and checks that the
// token is its current one and belongs to the caller.
func (c *DefaultCoordinator) loadSession(ctx context.Context, claims *sessionClaims, callerID, token string) (*models.TransferRequest, error) {
	req, err := c.Transfers.LockForUpdate(ctx, claims.TransferID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if err := checkSession(req, claims, callerID, token); err != nil {
		return nil, err
	}
	return req, nil
}

func checkSession(req *models.TransferRequest, claims *sessionClaims, callerID, token string) error {
	if req == nil || req.TokenHash != utils.HashToken(token) || req.DeviceID != claims.DeviceID {
		return models.NewNotFoundError("transfer session")
	}
	if claims.Subject != callerID || req.FromUserID != callerID {
		return models.ErrNotOwner
	}
	return nil
}

// openForCode rejects verify and resend on requests that can no longer take a code.
func openForCode(req *models.TransferRequest, now time.Time) error {
	if err := terminalError(req.Status); err != nil {
		return err
	}
	if now.After(req.AbsoluteExpiresAt) {
		return models.ErrSessionExpired
	}
	if req.Status != models.TransferOtpSent {
		return models.ErrAlreadyTerminal
	}
	return nil
}

func terminalError(status models.TransferStatus) error {
	switch status {
	case models.TransferCompleted:
		return models.ErrAlreadyCompleted
	case models.TransferRejected, models.TransferExpired:
		return models.ErrAlreadyTerminal
	}
	return nil
}

// transition applies a status change that must win.
func (c *DefaultCoordinator) transition(ctx context.Context, t repository.Transition) error {
	ok, err := c.Transfers.Transition(ctx, t)
	if err != nil {
		return models.NewTransientError(err)
	}
	if !ok {
		return models.ErrAlreadyTerminal
	}
	return nil
}

// closeRequest applies a terminal transition and, when it wins, releases the
// device, kills outstanding codes and records the outcome. A lost race
// returns false with no side effects.
func (c *DefaultCoordinator) closeRequest(ctx context.Context, req *models.TransferRequest, t repository.Transition) (bool, error) {
	ok, err := c.Transfers.Transition(ctx, t)
	if err != nil {
		return false, models.NewTransientError(err)
	}
	if !ok {
		return false, nil
	}

	if err := c.Registry.Unlock(ctx, req.DeviceID, models.DeviceActive); err != nil {
		if !errors.Is(err, models.ErrNotActive) {
			return false, err
		}
		c.log().Warn("device was not locked for closing transfer",
			zap.String("transferId", req.ID),
			zap.String("deviceId", req.DeviceID))
	}
	if err := c.Issuer.InvalidateAll(ctx, req.ID); err != nil {
		return false, err
	}

	from, err := c.userOrNil(ctx, req.FromUserID)
	if err != nil {
		return false, err
	}
	var to *models.User
	if req.ToUserID != "" {
		to, err = c.userOrNil(ctx, req.ToUserID)
	} else {
		to, err = c.Identity.ResolveByEmail(ctx, req.ToUserEmail)
		if errors.Is(err, models.ErrRecipientNotFound) {
			to, err = nil, nil
		}
	}
	if err != nil {
		return false, err
	}
	if err := c.Audit.RecordTransfer(ctx, audit.TransferRecord{
		Request:     req,
		FinalStatus: t.To,
		From:        from,
		To:          to,
		At:          t.At,
	}); err != nil {
		return false, err
	}
	req.Status = t.To
	return true, nil
}

func (c *DefaultCoordinator) userOrNil(ctx context.Context, id string) (*models.User, error) {
	user, err := c.Identity.GetUser(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func closedEvent(req *models.TransferRequest, kind models.TransferEventType, deviceName string, at time.Time) models.TransferEvent {
	return models.TransferEvent{
		Type:       kind,
		TransferID: req.ID,
		DeviceID:   req.DeviceID,
		DeviceName: deviceName,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		OccurredAt: at,
	}
}
