package models

import "time"

type User struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Email         string `gorm:"uniqueIndex;not null"`
	Password      string `gorm:"not null"`
	Name          string `gorm:"not null"`
	Company       *string
	Role          string  `gorm:"size:32;not null;index"`
	WalletAddress *string `gorm:"size:64"`
	IsActive      bool    `gorm:"default:true"`
	CreatedAt     *time.Time `gorm:"autoCreateTime"`
	UpdatedAt     *time.Time `gorm:"autoUpdateTime"`
}

type AuditLog struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	UserID     int64  `gorm:"not null;index"`
	Action     string `gorm:"size:64;not null"`
	EntityType string `gorm:"size:32;not null"`
	EntityID   int64  `gorm:"not null"`
	Details    *string `gorm:"type:text"`
	CreatedAt  time.Time
}
