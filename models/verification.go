package models

import "time"

// OwnerContact is the masked owner contact shown on flagged devices.
type OwnerContact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// HistoryItem is one hop of the public provenance chain.
type HistoryItem struct {
	TransferDate time.Time      `json:"transferDate"`
	From         UserSnapshot   `json:"from"`
	To           UserSnapshot   `json:"to"`
	FinalStatus  TransferStatus `json:"finalStatus"`
	Reason       string         `json:"reason,omitempty"`
}

// DeviceStatusQuery is the public lookup result. An unmatched identifier
// produces the same shape as a clean active device with no history.
type DeviceStatusQuery struct {
	Identifier        string         `json:"identifier"`
	IdentifierType    IdentifierKind `json:"identifierType,omitempty"`
	Status            DeviceStatus   `json:"status"`
	Flagged           bool           `json:"flagged"`
	LastKnownLocation string         `json:"lastKnownLocation,omitempty"`
	ReportedAt        *time.Time     `json:"reportedAt,omitempty"`
	OwnerContact      *OwnerContact  `json:"ownerContact,omitempty"`
	History           []HistoryItem  `json:"history"`
}

// CleanStatusQuery is the default lookup answer.
func CleanStatusQuery(identifier string, kind IdentifierKind) *DeviceStatusQuery {
	return &DeviceStatusQuery{
		Identifier:     identifier,
		IdentifierType: kind,
		Status:         DeviceActive,
		History:        []HistoryItem{},
	}
}
