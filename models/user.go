// models/user.go
package models

import (
	"time"
)

// User is the identity record backing transfer recipients and bearer auth.
type User struct {
	ID             string    `gorm:"primaryKey;size:36" bson:"id" json:"id"`
	Name           string    `gorm:"size:120" bson:"name" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex" bson:"email" json:"email"`
	PhoneNumber    string    `gorm:"size:32" bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	KeyholderPhone string    `gorm:"size:32" bson:"keyholderPhone,omitempty" json:"keyholderPhone,omitempty"`
	FCMToken       string    `gorm:"column:fcm_token;size:255" bson:"fcmToken,omitempty" json:"-"`
	TokenHash      string    `gorm:"size:64;index" bson:"tokenHash,omitempty" json:"-"` // sha256 of the current bearer token
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}

// OtpPhone is where transfer codes for this owner are delivered.
func (u *User) OtpPhone() string {
	if u.KeyholderPhone != "" {
		return u.KeyholderPhone
	}
	return u.PhoneNumber
}
