package models

import "time"

// InventoryRecord is the authoritative stock position of one batch at one
// retailer. Never deleted; QuantityOnHand >= QuantityReserved >= 0 at all
// times.
type InventoryRecord struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	RetailerID       int64 `gorm:"not null;uniqueIndex:idx_inventory_retailer_batch"`
	BatchID          int64 `gorm:"not null;uniqueIndex:idx_inventory_retailer_batch"`
	QuantityOnHand   int32 `gorm:"not null"`
	QuantityReserved int32 `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Batch *Batch `gorm:"foreignKey:BatchID"`
}

// Sale rows are append-only; never mutated or deleted.
type Sale struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RetailerID   int64  `gorm:"not null;index:idx_sales_retailer_batch"`
	BatchID      int64  `gorm:"not null;index:idx_sales_retailer_batch"`
	QuantitySold int32  `gorm:"not null"`
	UnitPrice    string `gorm:"type:decimal(18,2);not null"`
	TotalPrice   string `gorm:"type:decimal(18,2);not null"`
	SoldAt       time.Time `gorm:"not null;index"`
	DayOfWeek    int32     `gorm:"not null"`
	IsWeekend    bool      `gorm:"not null"`
	WeatherTag   *string   `gorm:"size:64"`
	CreatedAt    time.Time
}

const (
	DonationStatusPending   = "pending"
	DonationStatusConfirmed = "confirmed"
)

type Donation struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	Reference         string `gorm:"size:64;uniqueIndex;not null"`
	RetailerID        int64  `gorm:"not null;index"`
	NgoID             int64  `gorm:"not null;index"`
	BatchID           int64  `gorm:"not null;index"`
	QuantityRequested int32  `gorm:"not null"`
	QuantityConfirmed *int32
	UnitValue         *string `gorm:"type:decimal(18,2)"`
	TotalValue        *string `gorm:"type:decimal(18,2)"`
	RewardAmount      *string `gorm:"type:decimal(18,8)"`
	Status            string  `gorm:"size:32;not null"`
	CreatedAt         time.Time
	ConfirmedAt       *time.Time
}

// RewardBalance keeps one row per user; LifetimeEarned never decreases.
type RewardBalance struct {
	UserID         int64  `gorm:"primaryKey"`
	Balance        string `gorm:"type:decimal(18,8);not null"`
	LifetimeEarned string `gorm:"type:decimal(18,8);not null"`
	UpdatedAt      time.Time
}
