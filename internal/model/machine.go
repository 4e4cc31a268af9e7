package model

import "time"

// Machine represents a sellable machine in the product catalog. ProductCode
// is the prefix of every serial minted for it and is immutable after
// creation: changing it would orphan the lineage of already-issued serials.
type Machine struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	ProductCode string    `gorm:"uniqueIndex;size:64;not null" json:"productCode"`
	CreatedBy   int64     `gorm:"index" json:"createdBy"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`

	// Associations
	Panels []Panel `gorm:"foreignKey:MachineID" json:"panels,omitempty"`
}

// Panel represents a panel that is attached to exactly one machine. When an
// order includes N units of the machine, N serials are minted for every
// attached panel as well.
type Panel struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	PanelCode string    `gorm:"uniqueIndex;size:64;not null" json:"panelCode"`
	MachineID int64     `gorm:"index;not null" json:"machineId"`
	CreatedBy int64     `gorm:"index" json:"createdBy"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`

	// Associations
	Machine Machine `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
