package model

import "time"

// Serial is one issued serial number. Exactly one of MachineID and PanelID is
// set: a serial belongs to either a machine unit or a panel unit, never both.
// Serials are minted only as a side effect of order creation, are never
// mutated, and are removed only by cascade when their order is deleted.
type Serial struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	OrderID      int64     `gorm:"index;not null" json:"orderId"`
	MachineID    *int64    `gorm:"index" json:"machineId,omitempty"`
	PanelID      *int64    `gorm:"index" json:"panelId,omitempty"`
	SerialNumber string    `gorm:"uniqueIndex;size:128;not null" json:"serialNumber"`
	IssuedBy     int64     `gorm:"index" json:"issuedBy"`
	IssuedAt     time.Time `gorm:"not null" json:"issuedAt"`

	// Associations
	Order Order `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// SerialCounter tracks the highest numeric suffix issued for one product-code
// prefix. Rows are created lazily: the first allocation for a prefix seeds
// the counter from a scan of existing serials.
type SerialCounter struct {
	Prefix     string `gorm:"primaryKey;size:64"`
	LastNumber int64  `gorm:"not null"`
}
