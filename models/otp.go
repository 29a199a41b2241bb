package models

import "time"

// OtpSession is one issued transfer code. Only the bcrypt hash is stored.
type OtpSession struct {
	ID                  string     `gorm:"primaryKey;size:36" bson:"id" json:"id"`
	TransferRequestID   string     `gorm:"size:36;index:idx_otp_request_seq,priority:1" bson:"transferRequestId" json:"transferRequestId"`
	Seq                 int        `gorm:"index:idx_otp_request_seq,priority:2" bson:"seq" json:"seq"`
	CodeHash            string     `gorm:"size:80" bson:"codeHash" json:"-"`
	IssuedAt            time.Time  `bson:"issuedAt" json:"issuedAt"`
	ExpiresAt           time.Time  `bson:"expiresAt" json:"expiresAt"`
	AttemptsRemaining   int        `bson:"attemptsRemaining" json:"attemptsRemaining"`
	ResendCooldownUntil time.Time  `bson:"resendCooldownUntil" json:"resendCooldownUntil"`
	ConsumedAt          *time.Time `bson:"consumedAt,omitempty" json:"consumedAt,omitempty"`
	InvalidatedAt       *time.Time `bson:"invalidatedAt,omitempty" json:"invalidatedAt,omitempty"`
}

