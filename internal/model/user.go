package model

import "time"

// User represents an account that can log in and act on orders.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null" json:"isAdmin"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
}
