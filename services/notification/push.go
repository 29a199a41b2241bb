package notification

import (
	"context"
	"fmt"

	"guardget/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// DefaultNotificationService is the production implementation. A nil FCM
// client disables pushes.
type DefaultNotificationService struct {
	Users  UserLookup
	FCM    FCMSender
	Logger *zap.Logger
}

func (s *DefaultNotificationService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// SendUserPushNotification looks up a user's FCM token and sends a push.
func (s *DefaultNotificationService) SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error {
	if s.FCM == nil {
		s.log().Debug("push disabled", zap.String("userId", userID), zap.String("title", title))
		return nil
	}
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("SendUserPushNotification: could not find user %s: %w", userID, err)
	}
	if u.FCMToken == "" {
		s.log().Debug("user has no FCM token", zap.String("userId", userID))
		return nil
	}

	msg := &messaging.Message{
		Token: u.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := s.FCM.Send(ctx, msg); err != nil {
		return fmt.Errorf("SendUserPushNotification: failed to send FCM message: %w", err)
	}
	return nil
}

type push struct {
	userID string
	title  string
	body   string
}

// pushesFor decides who hears about an event and what they are told.
func pushesFor(event models.TransferEvent) []push {
	device := event.DeviceName
	if device == "" {
		device = "a device"
	}
	switch event.Type {
	case models.EventTransferInitiated:
		return []push{
			{event.FromUserID, "Transfer started", fmt.Sprintf("Enter the code sent to your phone to hand over %s.", device)},
			{event.ToUserID, "Incoming device transfer", fmt.Sprintf("%s is being transferred to you.", device)},
		}
	case models.EventTransferCompleted:
		return []push{
			{event.FromUserID, "Transfer complete", fmt.Sprintf("%s now belongs to its new owner.", device)},
			{event.ToUserID, "You own a new device", fmt.Sprintf("%s has been transferred to you.", device)},
		}
	case models.EventTransferRejected:
		return []push{
			{event.ToUserID, "Transfer cancelled", fmt.Sprintf("The transfer of %s was cancelled.", device)},
		}
	case models.EventTransferExpired:
		return []push{
			{event.FromUserID, "Transfer expired", fmt.Sprintf("The transfer of %s expired and the device was released.", device)},
		}
	}
	return nil
}

// NotifyTransferEvent pushes an event to everyone involved. Individual
// failures are logged; the first one is returned so the task can retry.
func (s *DefaultNotificationService) NotifyTransferEvent(ctx context.Context, event models.TransferEvent) error {
	data := map[string]string{
		"type":       string(event.Type),
		"transferId": event.TransferID,
		"deviceId":   event.DeviceID,
	}
	var firstErr error
	for _, p := range pushesFor(event) {
		if p.userID == "" {
			continue
		}
		if err := s.SendUserPushNotification(ctx, p.userID, p.title, p.body, data); err != nil {
			s.log().Warn("transfer push failed", zap.String("userId", p.userID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
