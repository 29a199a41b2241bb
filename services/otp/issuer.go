package otp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"guardget/config"
	"guardget/database/repository"
	"guardget/models"
	"guardget/services/notification"
	"guardget/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// VerifyStatus is the outcome of checking a code.
type VerifyStatus string

const (
	VerifyOK       VerifyStatus = "ok"
	VerifyInvalid  VerifyStatus = "invalid"
	VerifyExpired  VerifyStatus = "expired"
	VerifyLocked   VerifyStatus = "locked"
	VerifyConsumed VerifyStatus = "consumed"
)

// VerifyResult carries the outcome and, for invalid codes, the attempts left.
type VerifyResult struct {
	Status            VerifyStatus
	AttemptsRemaining int
}

// Issued is a freshly stored session together with its plaintext code. The
// code exists only in memory until it is delivered.
type Issued struct {
	Session *models.OtpSession
	Code    string
}

// OtpIssuer issues and checks the single-use codes that authorize a transfer.
type OtpIssuer interface {
	Issue(ctx context.Context, transferRequestID string) (*Issued, error)
	Verify(ctx context.Context, transferRequestID, code string) (VerifyResult, error)
	// Resend invalidates every live session of the request and issues a new one.
	Resend(ctx context.Context, transferRequestID string) (*Issued, error)
	InvalidateAll(ctx context.Context, transferRequestID string) error
	Latest(ctx context.Context, transferRequestID string) (*models.OtpSession, error)
	// Deliver sends the code in the background. Call it only after the
	// transaction that stored the session has committed.
	Deliver(phone string, issued *Issued)
}

// DefaultOtpIssuer is the production implementation.
type DefaultOtpIssuer struct {
	Repo     repository.OtpRepository
	Notifier notification.Notifier
	Policy   config.OTPPolicy
	Now      func() time.Time
	Logger   *zap.Logger

	deliveries sync.WaitGroup
}

func (s *DefaultOtpIssuer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DefaultOtpIssuer) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DefaultOtpIssuer) Issue(ctx context.Context, transferRequestID string) (*Issued, error) {
	prev, err := s.Repo.Latest(ctx, transferRequestID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	seq := 1
	if prev != nil {
		seq = prev.Seq + 1
	}

	code, err := utils.GenerateSecureCode(s.Policy.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer code: %w", err)
	}
	cost := s.Policy.HashCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash transfer code: %w", err)
	}

	now := s.now()
	session := &models.OtpSession{
		ID:                  uuid.NewString(),
		TransferRequestID:   transferRequestID,
		Seq:                 seq,
		CodeHash:            string(hash),
		IssuedAt:            now,
		ExpiresAt:           now.Add(s.Policy.TTL),
		AttemptsRemaining:   s.Policy.MaxAttempts,
		ResendCooldownUntil: now.Add(s.Policy.ResendCooldown),
	}
	if err := s.Repo.Create(ctx, session); err != nil {
		return nil, models.NewTransientError(err)
	}
	return &Issued{Session: session, Code: code}, nil
}

func (s *DefaultOtpIssuer) Verify(ctx context.Context, transferRequestID, code string) (VerifyResult, error) {
	session, err := s.Repo.Latest(ctx, transferRequestID)
	if err != nil {
		return VerifyResult{}, models.NewTransientError(err)
	}

	switch {
	case session == nil || session.InvalidatedAt != nil:
		return VerifyResult{Status: VerifyExpired}, nil
	case session.ConsumedAt != nil:
		return VerifyResult{Status: VerifyConsumed}, nil
	case session.AttemptsRemaining <= 0:
		return VerifyResult{Status: VerifyLocked}, nil
	case s.now().After(session.ExpiresAt):
		return VerifyResult{Status: VerifyExpired}, nil
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if bcrypt.CompareHashAndPassword([]byte(session.CodeHash), []byte(code)) != nil {
		remaining, ok, err := s.Repo.DecrementAttempts(ctx, session.ID)
		if err != nil {
			return VerifyResult{}, models.NewTransientError(err)
		}
		if !ok || remaining <= 0 {
			return VerifyResult{Status: VerifyLocked}, nil
		}
		return VerifyResult{Status: VerifyInvalid, AttemptsRemaining: remaining}, nil
	}

	ok, err := s.Repo.Consume(ctx, session.ID, s.now())
	if err != nil {
		return VerifyResult{}, models.NewTransientError(err)
	}
	if !ok {
		return VerifyResult{Status: VerifyConsumed}, nil
	}
	return VerifyResult{Status: VerifyOK}, nil
}

func (s *DefaultOtpIssuer) Resend(ctx context.Context, transferRequestID string) (*Issued, error) {
	latest, err := s.Repo.Latest(ctx, transferRequestID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	if latest != nil && s.now().Before(latest.ResendCooldownUntil) {
		return nil, models.NewCooldownError(latest.ResendCooldownUntil)
	}
	if err := s.InvalidateAll(ctx, transferRequestID); err != nil {
		return nil, err
	}
	return s.Issue(ctx, transferRequestID)
}

func (s *DefaultOtpIssuer) InvalidateAll(ctx context.Context, transferRequestID string) error {
	if _, err := s.Repo.InvalidateAll(ctx, transferRequestID, s.now()); err != nil {
		return models.NewTransientError(err)
	}
	return nil
}

func (s *DefaultOtpIssuer) Latest(ctx context.Context, transferRequestID string) (*models.OtpSession, error) {
	session, err := s.Repo.Latest(ctx, transferRequestID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	return session, nil
}

func (s *DefaultOtpIssuer) Deliver(phone string, issued *Issued) {
	if s.Notifier == nil || issued == nil {
		return
	}
	minutes := int(s.Policy.TTL / time.Minute)
	message := fmt.Sprintf("Your GuardGet transfer code is %s. It expires in %d minutes. Only share it if you want to hand over your device.", issued.Code, minutes)

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Notifier.Send(ctx, phone, message); err != nil {
			s.log().Warn("transfer code delivery failed",
				zap.String("transferId", issued.Session.TransferRequestID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *DefaultOtpIssuer) Wait() {
	s.deliveries.Wait()
}
