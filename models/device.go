// File: guardget/models/device.go
package models

import (
	"strings"
	"time"
)

// DeviceStatus is the lifecycle status of a registered device.
type DeviceStatus string

const (
	DeviceActive          DeviceStatus = "active"
	DeviceInactive        DeviceStatus = "inactive"
	DeviceMissing         DeviceStatus = "missing"
	DeviceStolen          DeviceStatus = "stolen"
	DeviceTransferPending DeviceStatus = "transfer_pending"
)

// ReportableStatuses are the statuses the reporting feature may set or leave.
var ReportableStatuses = []DeviceStatus{DeviceActive, DeviceInactive, DeviceMissing, DeviceStolen}

// IsReportable reports whether the status can be set through a status report.
func (s DeviceStatus) IsReportable() bool {
	for _, r := range ReportableStatuses {
		if s == r {
			return true
		}
	}
	return false
}

// Flagged is true for statuses a buyer should be warned about.
func (s DeviceStatus) Flagged() bool {
	return s == DeviceMissing || s == DeviceStolen
}

// DeviceType is the kind of hardware registered.
type DeviceType string

const (
	DeviceTypePhone  DeviceType = "phone"
	DeviceTypeTablet DeviceType = "tablet"
	DeviceTypeLaptop DeviceType = "laptop"
	DeviceTypeWatch  DeviceType = "watch"
	DeviceTypeOther  DeviceType = "other"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypePhone, DeviceTypeTablet, DeviceTypeLaptop, DeviceTypeWatch, DeviceTypeOther:
		return true
	}
	return false
}

// PhoneLike devices carry IMEIs.
func (t DeviceType) PhoneLike() bool {
	return t == DeviceTypePhone || t == DeviceTypeTablet || t == DeviceTypeWatch
}

// IdentifierKind selects which identifier field a lookup matches.
type IdentifierKind string

const (
	IdentifierAny    IdentifierKind = ""
	IdentifierSerial IdentifierKind = "serial"
	IdentifierIMEI   IdentifierKind = "imei"
)

// ParseIdentifierKind maps user input to an IdentifierKind. Unknown values match any identifier.
func ParseIdentifierKind(s string) IdentifierKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "serialnumber", "serial_number":
		return IdentifierSerial
	case "imei", "imei1", "imei2":
		return IdentifierIMEI
	}
	return IdentifierAny
}

// Device is the canonical registry record.
type Device struct {
	ID                string       `gorm:"primaryKey;size:36" bson:"id" json:"id"`
	Name              string       `gorm:"size:120" bson:"name" json:"name"`
	Type              DeviceType   `gorm:"size:16" bson:"type" json:"type"`
	SerialNumber      string       `gorm:"size:64;index" bson:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	IMEI1             string       `gorm:"column:imei1;size:20;index" bson:"imei1,omitempty" json:"imei1,omitempty"`
	IMEI2             string       `gorm:"column:imei2;size:20;index" bson:"imei2,omitempty" json:"imei2,omitempty"`
	Status            DeviceStatus `gorm:"size:24;index" bson:"status" json:"status"`
	OwnerID           string       `gorm:"size:36;index" bson:"ownerId" json:"ownerId"`
	LastKnownLocation string       `gorm:"size:255" bson:"lastKnownLocation,omitempty" json:"lastKnownLocation,omitempty"`
	StatusReportedAt  *time.Time   `bson:"statusReportedAt,omitempty" json:"statusReportedAt,omitempty"`
	CreatedAt         time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// Identifiers returns every non-empty identifier of the device.
func (d *Device) Identifiers() []string {
	var ids []string
	for _, id := range []string{d.SerialNumber, d.IMEI1, d.IMEI2} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeviceRegistration is the input for registering a device.
type DeviceRegistration struct {
	Name         string     `json:"name" binding:"required"`
	Type         DeviceType `json:"type" binding:"required"`
	SerialNumber string     `json:"serialNumber"`
	IMEI1        string     `json:"imei1"`
	IMEI2        string     `json:"imei2"`
}

// StatusReport is a status change requested by the reporting feature.
type StatusReport struct {
	DeviceID string       `json:"-"`
	ActorID  string       `json:"-"`
	Status   DeviceStatus `json:"status" binding:"required"`
	Location string       `json:"location"`
}
