package models

import "time"

// Batch is one manufactured lot. Immutable after creation except for
// Status and CurrentHolderID.
type Batch struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	TradeItemCode   string `gorm:"size:14;not null;uniqueIndex:idx_batches_code_lot"`
	BatchID         string `gorm:"size:100;not null;uniqueIndex:idx_batches_code_lot"`
	ProductName     string `gorm:"size:255;not null"`
	ManufacturerID  int64  `gorm:"not null;index"`
	ManufactureDate time.Time `gorm:"not null"`
	ExpiryDate      time.Time `gorm:"not null"`
	QuantityMade    int32     `gorm:"not null"`
	UnitPrice       *string   `gorm:"type:decimal(18,2)"`
	Status          string    `gorm:"size:32;not null"`
	Link            string    `gorm:"size:512;not null"`
	CurrentHolderID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
