// Package postgres implements storage.Store on gorm. Transactional reads of
// inventory records take a row lock so check-then-act sequences against the
// same record serialize at the database.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/storage"
)

type Postgres struct {
	db   *gorm.DB
	inTx bool
}

func New(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) InTransaction(ctx context.Context, fn func(storage.Store) error) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx, inTx: true})
	})
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicate
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLSTATE 23505") {
		return storage.ErrDuplicate
	}
	// serialization failure / deadlock detected
	if strings.Contains(msg, "SQLSTATE 40001") || strings.Contains(msg, "SQLSTATE 40P01") {
		return storage.ErrConflict
	}
	return err
}

// --- Users ---

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	return translate(p.db.WithContext(ctx).Create(user).Error)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (p *Postgres) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	if err := p.db.WithContext(ctx).Where("role = ? AND is_active = ?", role, true).Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// --- Batches ---

func (p *Postgres) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return translate(p.db.WithContext(ctx).Create(batch).Error)
}

func (p *Postgres) GetBatch(ctx context.Context, tradeItemCode, batchID string) (*models.Batch, error) {
	var batch models.Batch
	err := p.db.WithContext(ctx).
		Where("trade_item_code = ? AND batch_id = ?", tradeItemCode, batchID).
		First(&batch).Error
	if err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (p *Postgres) GetBatchByID(ctx context.Context, id int64) (*models.Batch, error) {
	var batch models.Batch
	if err := p.db.WithContext(ctx).First(&batch, id).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (p *Postgres) SaveBatch(ctx context.Context, batch *models.Batch) error {
	return translate(p.db.WithContext(ctx).Save(batch).Error)
}

func (p *Postgres) ListBatchesByManufacturer(ctx context.Context, manufacturerID int64) ([]models.Batch, error) {
	var batches []models.Batch
	err := p.db.WithContext(ctx).
		Where("manufacturer_id = ?", manufacturerID).
		Order("created_at DESC").
		Find(&batches).Error
	if err != nil {
		return nil, translate(err)
	}
	return batches, nil
}

func (p *Postgres) BatchStatsByManufacturer(ctx context.Context, manufacturerID int64) ([]storage.BatchStats, error) {
	var stats []storage.BatchStats
	err := p.db.WithContext(ctx).
		Model(&models.Batch{}).
		Select("status, count(*) as count").
		Where("manufacturer_id = ?", manufacturerID).
		Group("status").
		Scan(&stats).Error
	if err != nil {
		return nil, translate(err)
	}
	return stats, nil
}

func (p *Postgres) AggregateOnHand(ctx context.Context, batchID int64) (int64, error) {
	var total *int64
	err := p.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Select("sum(quantity_on_hand)").
		Where("batch_id = ?", batchID).
		Scan(&total).Error
	if err != nil {
		return 0, translate(err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// --- Inventory ---

func (p *Postgres) GetInventoryRecord(ctx context.Context, retailerID, batchID int64) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	q := p.db.WithContext(ctx)
	if p.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("retailer_id = ? AND batch_id = ?", retailerID, batchID).First(&rec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (p *Postgres) CreateInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error {
	return translate(p.db.WithContext(ctx).Create(rec).Error)
}

func (p *Postgres) SaveInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error {
	return translate(p.db.WithContext(ctx).Save(rec).Error)
}

func (p *Postgres) ListInventoryByRetailer(ctx context.Context, retailerID int64) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := p.db.WithContext(ctx).
		Preload("Batch").
		Where("retailer_id = ?", retailerID).
		Find(&recs).Error
	if err != nil {
		return nil, translate(err)
	}
	return recs, nil
}

// --- Sales ---

func (p *Postgres) CreateSale(ctx context.Context, sale *models.Sale) error {
	return translate(p.db.WithContext(ctx).Create(sale).Error)
}

func (p *Postgres) SalesTotalSince(ctx context.Context, retailerID, batchID int64, since time.Time) (int64, error) {
	var total *int64
	err := p.db.WithContext(ctx).
		Model(&models.Sale{}).
		Select("sum(quantity_sold)").
		Where("retailer_id = ? AND batch_id = ? AND sold_at > ?", retailerID, batchID, since).
		Scan(&total).Error
	if err != nil {
		return 0, translate(err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (p *Postgres) DailySalesSince(ctx context.Context, retailerID, batchID int64, since time.Time) ([]storage.DailySales, error) {
	var rows []storage.DailySales
	err := p.db.WithContext(ctx).
		Model(&models.Sale{}).
		Select("date_trunc('day', sold_at) as day, sum(quantity_sold) as quantity").
		Where("retailer_id = ? AND batch_id = ? AND sold_at > ?", retailerID, batchID, since).
		Group("date_trunc('day', sold_at)").
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// --- Donations ---

func (p *Postgres) CreateDonation(ctx context.Context, donation *models.Donation) error {
	return translate(p.db.WithContext(ctx).Create(donation).Error)
}

func (p *Postgres) GetDonation(ctx context.Context, id int64) (*models.Donation, error) {
	var donation models.Donation
	q := p.db.WithContext(ctx)
	if p.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&donation, id).Error; err != nil {
		return nil, translate(err)
	}
	return &donation, nil
}

func (p *Postgres) SaveDonation(ctx context.Context, donation *models.Donation) error {
	return translate(p.db.WithContext(ctx).Save(donation).Error)
}

func (p *Postgres) ListDonationsByNGO(ctx context.Context, ngoID int64) ([]models.Donation, error) {
	var donations []models.Donation
	err := p.db.WithContext(ctx).
		Where("ngo_id = ?", ngoID).
		Order("created_at DESC").
		Find(&donations).Error
	if err != nil {
		return nil, translate(err)
	}
	return donations, nil
}

func (p *Postgres) ListDonationsByRetailer(ctx context.Context, retailerID int64) ([]models.Donation, error) {
	var donations []models.Donation
	err := p.db.WithContext(ctx).
		Where("retailer_id = ?", retailerID).
		Order("created_at DESC").
		Find(&donations).Error
	if err != nil {
		return nil, translate(err)
	}
	return donations, nil
}

// --- Rewards ---

func (p *Postgres) GetRewardBalance(ctx context.Context, userID int64) (*models.RewardBalance, error) {
	var balance models.RewardBalance
	q := p.db.WithContext(ctx)
	if p.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, translate(err)
	}
	return &balance, nil
}

func (p *Postgres) SaveRewardBalance(ctx context.Context, balance *models.RewardBalance) error {
	return translate(p.db.WithContext(ctx).Save(balance).Error)
}

// --- Audit ---

func (p *Postgres) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return translate(p.db.WithContext(ctx).Create(entry).Error)
}
