package models

import "time"

// AuditKind distinguishes ledger entries.
type AuditKind string

const (
	AuditTransfer     AuditKind = "transfer"
	AuditStatusChange AuditKind = "status_change"
)

// UserSnapshot freezes a party's identity at the time of the entry.
type UserSnapshot struct {
	ID    string `gorm:"size:36" bson:"id" json:"id"`
	Name  string `gorm:"size:120" bson:"name" json:"name"`
	Email string `gorm:"size:255" bson:"email" json:"email"` // masked
}

// AuditEntry is one append-only ledger row. Transfer entries carry
// TransferRequestID, which is unique across the ledger.
type AuditEntry struct {
	ID                string         `gorm:"primaryKey;size:36" bson:"id" json:"id"`
	Kind              AuditKind      `gorm:"size:16;index" bson:"kind" json:"kind"`
	DeviceID          string         `gorm:"size:36;index" bson:"deviceId" json:"deviceId"`
	TransferRequestID *string        `gorm:"size:36;uniqueIndex" bson:"transferRequestId,omitempty" json:"transferRequestId,omitempty"`
	From              UserSnapshot   `gorm:"embedded;embeddedPrefix:from_" bson:"from,omitempty" json:"from,omitempty"`
	To                UserSnapshot   `gorm:"embedded;embeddedPrefix:to_" bson:"to,omitempty" json:"to,omitempty"`
	FinalStatus       TransferStatus `gorm:"size:16" bson:"finalStatus,omitempty" json:"finalStatus,omitempty"`
	Reason            string         `gorm:"size:500" bson:"reason,omitempty" json:"reason,omitempty"`
	ActorID           string         `gorm:"size:36" bson:"actorId,omitempty" json:"actorId,omitempty"`
	PreviousStatus    DeviceStatus   `gorm:"size:24" bson:"previousStatus,omitempty" json:"previousStatus,omitempty"`
	NewStatus         DeviceStatus   `gorm:"size:24" bson:"newStatus,omitempty" json:"newStatus,omitempty"`
	Location          string         `gorm:"size:255" bson:"location,omitempty" json:"location,omitempty"`
	OccurredAt        time.Time      `gorm:"index" bson:"occurredAt" json:"occurredAt"`
	Seq               int64          `gorm:"index" bson:"seq" json:"-"` // insertion order tiebreak
}

// TableName keeps the ledger table name stable across stores.
func (AuditEntry) TableName() string { return "audit_log" }
