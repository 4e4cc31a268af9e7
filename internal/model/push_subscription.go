package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers follow individual orders and are notified on status changes
// and due-date reminders.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Orders []*Order `gorm:"many2many:subscription_order_mapping;"`
}
