package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert is one delivered notification, kept for the admin surface.
type Alert struct {
	Id      int64  `gorm:"primaryKey;autoIncrement"`
	Monitor string `gorm:"index"` // monitor kind that fired the alert
	Key     string `gorm:"index"` // token id or tracked address
	Title   string
	Message string
	// Value is the magnitude behind the alert: the current price for price
	// alerts, the net change for position alerts, the cash amount for
	// account activity.
	Value     decimal.Decimal `gorm:"type:decimal(20,8)"`
	CreatedAt time.Time       `gorm:"index"`
}
