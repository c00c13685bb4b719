// Package storage is the query interface between the core services and the
// backing store. The postgres driver is the production implementation; the
// memory driver backs tests and local development.
package storage

import (
	"context"
	"errors"
	"time"

	"freshtrace-system/internal/database/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict marks a transaction the store could not serialize; the
	// caller may retry a bounded number of times.
	ErrConflict = errors.New("transaction conflict")
)

// DailySales is one day of aggregated sales for a (retailer, batch) pair.
type DailySales struct {
	Day      time.Time
	Quantity int64
}

// BatchStats are the per-state batch tallies for one manufacturer.
type BatchStats struct {
	Status string
	Count  int64
}

// Store exposes every read and write the core issues. InTransaction runs fn
// against a store view whose mutations apply all-or-nothing; inside a
// transaction, reads of an inventory record are serialized against
// concurrent writers of the same record.
type Store interface {
	InTransaction(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)

	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, tradeItemCode, batchID string) (*models.Batch, error)
	GetBatchByID(ctx context.Context, id int64) (*models.Batch, error)
	SaveBatch(ctx context.Context, batch *models.Batch) error
	ListBatchesByManufacturer(ctx context.Context, manufacturerID int64) ([]models.Batch, error)
	BatchStatsByManufacturer(ctx context.Context, manufacturerID int64) ([]BatchStats, error)
	// AggregateOnHand sums on-hand stock for a batch across all retailers.
	AggregateOnHand(ctx context.Context, batchID int64) (int64, error)

	GetInventoryRecord(ctx context.Context, retailerID, batchID int64) (*models.InventoryRecord, error)
	CreateInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error
	SaveInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error
	ListInventoryByRetailer(ctx context.Context, retailerID int64) ([]models.InventoryRecord, error)

	CreateSale(ctx context.Context, sale *models.Sale) error
	SalesTotalSince(ctx context.Context, retailerID, batchID int64, since time.Time) (int64, error)
	DailySalesSince(ctx context.Context, retailerID, batchID int64, since time.Time) ([]DailySales, error)

	CreateDonation(ctx context.Context, donation *models.Donation) error
	GetDonation(ctx context.Context, id int64) (*models.Donation, error)
	SaveDonation(ctx context.Context, donation *models.Donation) error
	ListDonationsByNGO(ctx context.Context, ngoID int64) ([]models.Donation, error)
	ListDonationsByRetailer(ctx context.Context, retailerID int64) ([]models.Donation, error)

	GetRewardBalance(ctx context.Context, userID int64) (*models.RewardBalance, error)
	SaveRewardBalance(ctx context.Context, balance *models.RewardBalance) error

	AppendAudit(ctx context.Context, entry *models.AuditLog) error
}
