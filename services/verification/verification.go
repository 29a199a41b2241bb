package verification

import (
	"context"
	"errors"
	"strings"

	"guardget/models"
	"guardget/services/audit"
	"guardget/services/notification"
	"guardget/services/registry"
	"guardget/utils"

	"go.uber.org/zap"
)

// VerificationService answers public "is this device clean" lookups.
// An unknown identifier gets the same answer as a registered active device
// with no history, and the only possible error is a transient one.
type VerificationService interface {
	Lookup(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, error)
}

type DefaultVerificationService struct {
	Registry registry.DeviceRegistry
	Audit    audit.AuditService
	Users    notification.UserLookup
	Cache    LookupCache
	Logger   *zap.Logger
}

func (s *DefaultVerificationService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DefaultVerificationService) Lookup(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.CleanStatusQuery(identifier, kind), nil
	}
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, identifier, kind); ok {
			cached.Identifier = identifier
			return cached, nil
		}
	}

	var result *models.DeviceStatusQuery
	err := models.RetryTransient(func() error {
		var err error
		result, err = s.lookup(ctx, identifier, kind)
		return err
	}, func(err error) {
		s.log().Warn("retrying device lookup", zap.String("identifierType", string(kind)), zap.Error(err))
	})
	if err != nil {
		s.log().Error("device lookup failed", zap.String("identifierType", string(kind)), zap.Error(err))
		if appErr, ok := models.AsAppError(err); ok && appErr.Kind == models.KindTransient {
			return nil, appErr
		}
		return nil, models.NewTransientError(err)
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, identifier, kind, result)
	}
	return result, nil
}

func (s *DefaultVerificationService) lookup(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.DeviceStatusQuery, error) {
	device, err := s.Registry.LookupByIdentifier(ctx, identifier, kind)
	if errors.Is(err, models.ErrNotFound) {
		return models.CleanStatusQuery(identifier, kind), nil
	}
	if err != nil {
		return nil, err
	}

	result := models.CleanStatusQuery(identifier, kind)
	result.Status = device.Status
	result.Flagged = device.Status.Flagged()

	if device.Status != models.DeviceActive {
		result.LastKnownLocation = device.LastKnownLocation
		result.ReportedAt = device.StatusReportedAt

		owner, err := s.Users.GetUser(ctx, device.OwnerID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			result.OwnerContact = &models.OwnerContact{
				Email: utils.MaskEmail(owner.Email),
				Phone: utils.MaskPhone(owner.PhoneNumber),
			}
		}
	}

	entries, err := s.Audit.TransferHistory(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		result.History = append(result.History, models.HistoryItem{
			TransferDate: e.OccurredAt,
			From:         e.From,
			To:           e.To,
			FinalStatus:  e.FinalStatus,
			Reason:       e.Reason,
		})
	}
	return result, nil
}
