package models

import (
	"strings"
	"time"
)

// TransferStatus is the state of a TransferRequest.
type TransferStatus string

const (
	TransferInitiated   TransferStatus = "INITIATED"
	TransferOtpSent     TransferStatus = "OTP_SENT"
	TransferOtpVerified TransferStatus = "OTP_VERIFIED"
	TransferCompleted   TransferStatus = "COMPLETED"
	TransferRejected    TransferStatus = "REJECTED"
	TransferExpired     TransferStatus = "EXPIRED"
)

// OpenTransferStatuses are the non-terminal states.
var OpenTransferStatuses = []TransferStatus{TransferInitiated, TransferOtpSent, TransferOtpVerified}

// IsTerminal reports whether no further transition can leave s.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferCompleted || s == TransferRejected || s == TransferExpired
}

// TransferRequest is one attempt to move a device from its owner to a recipient.
// OpenDeviceKey holds the device id while the request is open and is cleared on
// terminal transitions; a unique index on it keeps one open request per device.
type TransferRequest struct {
	ID                string         `gorm:"primaryKey;size:36" bson:"id" json:"id"`
	DeviceID          string         `gorm:"size:36;index" bson:"deviceId" json:"deviceId"`
	OpenDeviceKey     *string        `gorm:"size:36;uniqueIndex" bson:"openDeviceKey,omitempty" json:"-"`
	FromUserID        string         `gorm:"size:36;index" bson:"fromUserId" json:"fromUserId"`
	ToUserEmail       string         `gorm:"size:255" bson:"toUserEmail" json:"toUserEmail"`
	ToUserID          string         `gorm:"size:36" bson:"toUserId,omitempty" json:"toUserId,omitempty"`
	Reason            string         `gorm:"size:500" bson:"reason,omitempty" json:"reason,omitempty"`
	Status            TransferStatus `gorm:"size:16;index" bson:"status" json:"status"`
	TokenHash         string         `gorm:"size:64" bson:"tokenHash" json:"-"`
	ResendCount       int            `bson:"resendCount" json:"resendCount"`
	LockVersion       int64          `bson:"lockVersion" json:"-"`
	CreatedAt         time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time      `bson:"updatedAt" json:"updatedAt"`
	AbsoluteExpiresAt time.Time      `gorm:"index" bson:"absoluteExpiresAt" json:"absoluteExpiresAt"`
	SessionExpiresAt  time.Time      `bson:"sessionExpiresAt" json:"sessionExpiresAt"`
	ResolvedAt        *time.Time     `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}

// InitiateTransferRequest is the input of TransferCoordinator.Initiate.
type InitiateTransferRequest struct {
	DeviceID    string `json:"deviceId" binding:"required"`
	FromUserID  string `json:"-"`
	ToUserEmail string `json:"recipientEmail" binding:"required"`
	Reason      string `json:"reason"`
}

// Validate checks the request shape before any storage is touched.
func (r *InitiateTransferRequest) Validate() error {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.ToUserEmail = NormalizeEmail(r.ToUserEmail)
	r.Reason = strings.TrimSpace(r.Reason)
	switch {
	case r.DeviceID == "":
		return NewValidationError("deviceId is required")
	case r.FromUserID == "":
		return NewValidationError("caller identity is required")
	case r.ToUserEmail == "" || !strings.Contains(r.ToUserEmail, "@"):
		return NewValidationError("a valid recipientEmail is required")
	case len(r.Reason) > 500:
		return NewValidationError("reason must be at most 500 characters")
	}
	return nil
}

// TransferSession is returned to the client after a successful initiate.
type TransferSession struct {
	SessionToken      string         `json:"sessionToken"`
	TransferID        string         `json:"transferId"`
	Status            TransferStatus `json:"status"`
	SessionExpiresAt  time.Time      `json:"sessionExpiresAt"`
	OtpExpiresAt      time.Time      `json:"otpExpiresAt"`
	ResendAvailableAt time.Time      `json:"resendAvailableAt"`
}

// TransferResult reports the terminal outcome of verify or cancel.
type TransferResult struct {
	TransferID string         `json:"transferId"`
	DeviceID   string         `json:"deviceId"`
	Status     TransferStatus `json:"status"`
	OwnerID    string         `json:"ownerId"`
}

// ResendResult describes the freshly issued code.
type ResendResult struct {
	TransferID        string    `json:"transferId"`
	OtpExpiresAt      time.Time `json:"otpExpiresAt"`
	ResendAvailableAt time.Time `json:"resendAvailableAt"`
	ResendsRemaining  int       `json:"resendsRemaining"`
}

// TransferStatusView is the client refresh view of a transfer session.
type TransferStatusView struct {
	TransferID        string         `json:"transferId"`
	DeviceID          string         `json:"deviceId"`
	ToUserEmail       string         `json:"recipientEmail"`
	Status            TransferStatus `json:"status"`
	SessionExpired    bool           `json:"sessionExpired"`
	SessionExpiresAt  time.Time      `json:"sessionExpiresAt"`
	AbsoluteExpiresAt time.Time      `json:"absoluteExpiresAt"`
	OtpExpiresAt      *time.Time     `json:"otpExpiresAt,omitempty"`
	AttemptsRemaining int            `json:"attemptsRemaining"`
	ResendAvailableAt *time.Time     `json:"resendAvailableAt,omitempty"`
}

// TransferEventType names lifecycle events published after commit.
type TransferEventType string

const (
	EventTransferInitiated TransferEventType = "transfer.initiated"
	EventTransferCompleted TransferEventType = "transfer.completed"
	EventTransferRejected  TransferEventType = "transfer.rejected"
	EventTransferExpired   TransferEventType = "transfer.expired"
)

// TransferEvent is the payload of a lifecycle notification.
type TransferEvent struct {
	Type       TransferEventType `json:"type"`
	TransferID string            `json:"transferId"`
	DeviceID   string            `json:"deviceId"`
	DeviceName string            `json:"deviceName,omitempty"`
	FromUserID string            `json:"fromUserId"`
	ToUserID   string            `json:"toUserId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
