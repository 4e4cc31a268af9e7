package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Progress status values for an order. The two status enumerations are
// independent: no transition graph is enforced between them.
const (
	ProgressPending    = "Pending"
	ProgressInProgress = "InProgress"
	ProgressCompleted  = "Completed"
	ProgressConfirmed  = "Confirmed"
)

// Payment status values for an order.
const (
	PaymentPending = "Pending"
	PaymentPartial = "Partial"
	PaymentPaid    = "Paid"
)

// ValidProgressStatus reports whether s is a recognized progress status.
func ValidProgressStatus(s string) bool {
	switch s {
	case ProgressPending, ProgressInProgress, ProgressCompleted, ProgressConfirmed:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a recognized payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid:
		return true
	}
	return false
}

// MachineLine is one {machine, quantity} entry within an order.
type MachineLine struct {
	MachineID int64 `json:"machineId"`
	Quantity  int   `json:"quantity"`
}

// MachineLines is stored as a JSON column on the order row. The lines have no
// independent lifecycle: they are written once with the order and never
// individually mutated.
type MachineLines []MachineLine

func (m MachineLines) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *MachineLines) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported machine lines column type %T", value)
	}
}

// Order represents a customer order for machines (and, transitively, their
// panels).
type Order struct {
	ID               int64        `gorm:"primaryKey" json:"id"`
	CustomerName     string       `gorm:"size:256;not null" json:"customerName"`
	ShippingLocation string       `gorm:"size:256" json:"shippingLocation"`
	CountryID        int64        `gorm:"index;not null" json:"countryId"`
	QuoteNumber      string       `gorm:"size:64" json:"quoteNumber"`
	InvoiceNumber    string       `gorm:"size:64" json:"invoiceNumber"`
	DueDate          *time.Time   `json:"dueDate"`
	ProgressStatus   string       `gorm:"size:32;not null" json:"progressStatus"`
	PaymentStatus    string       `gorm:"size:32;not null" json:"paymentStatus"`
	MachineLines     MachineLines `gorm:"type:text" json:"machineLines"`
	CreatedBy        int64        `gorm:"index" json:"createdBy"`
	CreatedAt        time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updatedAt"`

	// Associations
	Country Country  `json:"-"`
	Serials []Serial `gorm:"foreignKey:OrderID" json:"serials,omitempty"`
}
