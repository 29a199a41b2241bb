package audit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"guardget/database"
	"guardget/database/repository"
	"guardget/models"
	"guardget/utils"

	"github.com/google/uuid"
)

// AuditService is the append-only provenance ledger.
type AuditService interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	RecordTransfer(ctx context.Context, rec TransferRecord) error
	RecordStatusChange(ctx context.Context, change StatusChangeRecord) error
	// HistoryFor returns every entry of a device, oldest first.
	HistoryFor(ctx context.Context, deviceID string) ([]models.AuditEntry, error)
	// TransferHistory returns only the ownership chain.
	TransferHistory(ctx context.Context, deviceID string) ([]models.AuditEntry, error)
}

// TransferRecord is the closing record of a transfer request. To may be nil
// when the recipient never resolved.
type TransferRecord struct {
	Request     *models.TransferRequest
	FinalStatus models.TransferStatus
	From        *models.User
	To          *models.User
	At          time.Time
}

// StatusChangeRecord captures one status report.
type StatusChangeRecord struct {
	DeviceID string
	ActorID  string
	Previous models.DeviceStatus
	Next     models.DeviceStatus
	Location string
	At       time.Time
}

// DefaultAuditService is the production implementation.
type DefaultAuditService struct {
	Repo repository.AuditRepository
}

// Snapshot freezes a user's identity with a masked email. fallbackEmail is
// used when the user is unknown.
func Snapshot(u *models.User, fallbackEmail string) models.UserSnapshot {
	if u == nil {
		return models.UserSnapshot{Email: utils.MaskEmail(fallbackEmail)}
	}
	return models.UserSnapshot{ID: u.ID, Name: u.Name, Email: utils.MaskEmail(u.Email)}
}

var lastSeq atomic.Int64

// nextSeq is a strictly increasing, clock-based tiebreak for entries that
// share an OccurredAt.
func nextSeq() int64 {
	for {
		prev := lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastSeq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func (s *DefaultAuditService) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Seq == 0 {
		entry.Seq = nextSeq()
	}
	if err := s.Repo.Append(ctx, entry); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			dup := *models.ErrHistoryExists
			dup.Err = err
			return &dup
		}
		return err
	}
	return nil
}

func (s *DefaultAuditService) RecordTransfer(ctx context.Context, rec TransferRecord) error {
	req := rec.Request
	reqID := req.ID
	return s.Append(ctx, &models.AuditEntry{
		Kind:              models.AuditTransfer,
		DeviceID:          req.DeviceID,
		TransferRequestID: &reqID,
		From:              Snapshot(rec.From, ""),
		To:                Snapshot(rec.To, req.ToUserEmail),
		FinalStatus:       rec.FinalStatus,
		Reason:            req.Reason,
		ActorID:           req.FromUserID,
		OccurredAt:        rec.At,
	})
}

func (s *DefaultAuditService) RecordStatusChange(ctx context.Context, change StatusChangeRecord) error {
	return s.Append(ctx, &models.AuditEntry{
		Kind:           models.AuditStatusChange,
		DeviceID:       change.DeviceID,
		ActorID:        change.ActorID,
		PreviousStatus: change.Previous,
		NewStatus:      change.Next,
		Location:       change.Location,
		OccurredAt:     change.At,
	})
}

func (s *DefaultAuditService) HistoryFor(ctx context.Context, deviceID string) ([]models.AuditEntry, error) {
	return s.Repo.ListByDevice(ctx, deviceID)
}

func (s *DefaultAuditService) TransferHistory(ctx context.Context, deviceID string) ([]models.AuditEntry, error) {
	return s.Repo.ListByDevice(ctx, deviceID, models.AuditTransfer)
}
