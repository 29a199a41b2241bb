package notification

import (
	"context"

	"guardget/models"

	"firebase.google.com/go/v4/messaging"
)

// Notifier delivers a text message to a phone number. Delivery is
// best-effort; callers never roll back on a failed send.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// NotificationService defines methods for sending FCM pushes.
type NotificationService interface {
	SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error
	NotifyTransferEvent(ctx context.Context, event models.TransferEvent) error
}

// EventPublisher hands lifecycle events to the background worker.
type EventPublisher interface {
	Publish(ctx context.Context, event models.TransferEvent)
}

// FCMSender is the part of the Firebase messaging client used here.
type FCMSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// UserLookup resolves push targets.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}
