// Package memory implements storage.Store on in-process maps. A single
// mutex held for the whole of InTransaction gives the same serialization
// the postgres driver gets from row locks; rollback restores a snapshot
// taken at transaction start. Backs tests and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/storage"
)

type state struct {
	users     map[int64]models.User
	batches   map[int64]models.Batch
	inventory map[int64]models.InventoryRecord
	sales     []models.Sale
	donations map[int64]models.Donation
	rewards   map[int64]models.RewardBalance
	audits    []models.AuditLog
	nextID    int64
}

func newState() *state {
	return &state{
		users:     make(map[int64]models.User),
		batches:   make(map[int64]models.Batch),
		inventory: make(map[int64]models.InventoryRecord),
		donations: make(map[int64]models.Donation),
		rewards:   make(map[int64]models.RewardBalance),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:     make(map[int64]models.User, len(s.users)),
		batches:   make(map[int64]models.Batch, len(s.batches)),
		inventory: make(map[int64]models.InventoryRecord, len(s.inventory)),
		sales:     append([]models.Sale(nil), s.sales...),
		donations: make(map[int64]models.Donation, len(s.donations)),
		rewards:   make(map[int64]models.RewardBalance, len(s.rewards)),
		audits:    append([]models.AuditLog(nil), s.audits...),
		nextID:    s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.donations {
		c.donations[k] = v
	}
	for k, v := range s.rewards {
		c.rewards[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Memory struct {
	mu     *sync.Mutex
	locked bool
	s      *state
}

func New() *Memory {
	return &Memory{mu: &sync.Mutex{}, s: newState()}
}

// lock acquires the store mutex unless the receiver is a transaction view,
// which already holds it.
func (m *Memory) lock() func() {
	if m.locked {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) InTransaction(ctx context.Context, fn func(storage.Store) error) error {
	unlock := m.lock()
	defer unlock()

	snapshot := m.s.clone()
	tx := &Memory{mu: m.mu, locked: true, s: m.s}
	if err := fn(tx); err != nil {
		*m.s = *snapshot
		return err
	}
	return nil
}

// --- Users ---

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	defer m.lock()()
	for _, u := range m.s.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	if user.ID == 0 {
		user.ID = m.s.id()
	}
	m.s.users[user.ID] = *user
	return nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer m.lock()()
	for _, u := range m.s.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	defer m.lock()()
	u, ok := m.s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	user := u
	return &user, nil
}

func (m *Memory) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	defer m.lock()()
	var users []models.User
	for _, u := range m.s.users {
		if u.Role == role && u.IsActive {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// --- Batches ---

func (m *Memory) CreateBatch(ctx context.Context, batch *models.Batch) error {
	defer m.lock()()
	for _, b := range m.s.batches {
		if b.TradeItemCode == batch.TradeItemCode && b.BatchID == batch.BatchID {
			return storage.ErrDuplicate
		}
	}
	if batch.ID == 0 {
		batch.ID = m.s.id()
	}
	m.s.batches[batch.ID] = *batch
	return nil
}

func (m *Memory) GetBatch(ctx context.Context, tradeItemCode, batchID string) (*models.Batch, error) {
	defer m.lock()()
	for _, b := range m.s.batches {
		if b.TradeItemCode == tradeItemCode && b.BatchID == batchID {
			batch := b
			return &batch, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Memory) GetBatchByID(ctx context.Context, id int64) (*models.Batch, error) {
	defer m.lock()()
	b, ok := m.s.batches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	batch := b
	return &batch, nil
}

func (m *Memory) SaveBatch(ctx context.Context, batch *models.Batch) error {
	defer m.lock()()
	if _, ok := m.s.batches[batch.ID]; !ok {
		return storage.ErrNotFound
	}
	m.s.batches[batch.ID] = *batch
	return nil
}

func (m *Memory) ListBatchesByManufacturer(ctx context.Context, manufacturerID int64) ([]models.Batch, error) {
	defer m.lock()()
	var batches []models.Batch
	for _, b := range m.s.batches {
		if b.ManufacturerID == manufacturerID {
			batches = append(batches, b)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID > batches[j].ID })
	return batches, nil
}

func (m *Memory) BatchStatsByManufacturer(ctx context.Context, manufacturerID int64) ([]storage.BatchStats, error) {
	defer m.lock()()
	counts := make(map[string]int64)
	for _, b := range m.s.batches {
		if b.ManufacturerID == manufacturerID {
			counts[b.Status]++
		}
	}
	stats := make([]storage.BatchStats, 0, len(counts))
	for status, count := range counts {
		stats = append(stats, storage.BatchStats{Status: status, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

func (m *Memory) AggregateOnHand(ctx context.Context, batchID int64) (int64, error) {
	defer m.lock()()
	var total int64
	for _, rec := range m.s.inventory {
		if rec.BatchID == batchID {
			total += int64(rec.QuantityOnHand)
		}
	}
	return total, nil
}

// --- Inventory ---

func (m *Memory) GetInventoryRecord(ctx context.Context, retailerID, batchID int64) (*models.InventoryRecord, error) {
	defer m.lock()()
	for _, r := range m.s.inventory {
		if r.RetailerID == retailerID && r.BatchID == batchID {
			rec := r
			rec.Batch = nil
			return &rec, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Memory) CreateInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error {
	defer m.lock()()
	for _, r := range m.s.inventory {
		if r.RetailerID == rec.RetailerID && r.BatchID == rec.BatchID {
			return storage.ErrDuplicate
		}
	}
	if rec.ID == 0 {
		rec.ID = m.s.id()
	}
	stored := *rec
	stored.Batch = nil
	m.s.inventory[rec.ID] = stored
	return nil
}

func (m *Memory) SaveInventoryRecord(ctx context.Context, rec *models.InventoryRecord) error {
	defer m.lock()()
	if _, ok := m.s.inventory[rec.ID]; !ok {
		return storage.ErrNotFound
	}
	stored := *rec
	stored.Batch = nil
	m.s.inventory[rec.ID] = stored
	return nil
}

func (m *Memory) ListInventoryByRetailer(ctx context.Context, retailerID int64) ([]models.InventoryRecord, error) {
	defer m.lock()()
	var recs []models.InventoryRecord
	for _, r := range m.s.inventory {
		if r.RetailerID == retailerID {
			if b, ok := m.s.batches[r.BatchID]; ok {
				batch := b
				r.Batch = &batch
			}
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

// --- Sales ---

func (m *Memory) CreateSale(ctx context.Context, sale *models.Sale) error {
	defer m.lock()()
	if sale.ID == 0 {
		sale.ID = m.s.id()
	}
	m.s.sales = append(m.s.sales, *sale)
	return nil
}

func (m *Memory) SalesTotalSince(ctx context.Context, retailerID, batchID int64, since time.Time) (int64, error) {
	defer m.lock()()
	var total int64
	for _, s := range m.s.sales {
		if s.RetailerID == retailerID && s.BatchID == batchID && s.SoldAt.After(since) {
			total += int64(s.QuantitySold)
		}
	}
	return total, nil
}

func (m *Memory) DailySalesSince(ctx context.Context, retailerID, batchID int64, since time.Time) ([]storage.DailySales, error) {
	defer m.lock()()
	byDay := make(map[time.Time]int64)
	for _, s := range m.s.sales {
		if s.RetailerID == retailerID && s.BatchID == batchID && s.SoldAt.After(since) {
			day := time.Date(s.SoldAt.Year(), s.SoldAt.Month(), s.SoldAt.Day(), 0, 0, 0, 0, time.UTC)
			byDay[day] += int64(s.QuantitySold)
		}
	}
	rows := make([]storage.DailySales, 0, len(byDay))
	for day, qty := range byDay {
		rows = append(rows, storage.DailySales{Day: day, Quantity: qty})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Day.Before(rows[j].Day) })
	return rows, nil
}

// --- Donations ---

func (m *Memory) CreateDonation(ctx context.Context, donation *models.Donation) error {
	defer m.lock()()
	if donation.ID == 0 {
		donation.ID = m.s.id()
	}
	m.s.donations[donation.ID] = *donation
	return nil
}

func (m *Memory) GetDonation(ctx context.Context, id int64) (*models.Donation, error) {
	defer m.lock()()
	d, ok := m.s.donations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	donation := d
	return &donation, nil
}

func (m *Memory) SaveDonation(ctx context.Context, donation *models.Donation) error {
	defer m.lock()()
	if _, ok := m.s.donations[donation.ID]; !ok {
		return storage.ErrNotFound
	}
	m.s.donations[donation.ID] = *donation
	return nil
}

func (m *Memory) ListDonationsByNGO(ctx context.Context, ngoID int64) ([]models.Donation, error) {
	defer m.lock()()
	var donations []models.Donation
	for _, d := range m.s.donations {
		if d.NgoID == ngoID {
			donations = append(donations, d)
		}
	}
	sort.Slice(donations, func(i, j int) bool { return donations[i].ID > donations[j].ID })
	return donations, nil
}

func (m *Memory) ListDonationsByRetailer(ctx context.Context, retailerID int64) ([]models.Donation, error) {
	defer m.lock()()
	var donations []models.Donation
	for _, d := range m.s.donations {
		if d.RetailerID == retailerID {
			donations = append(donations, d)
		}
	}
	sort.Slice(donations, func(i, j int) bool { return donations[i].ID > donations[j].ID })
	return donations, nil
}

// --- Rewards ---

func (m *Memory) GetRewardBalance(ctx context.Context, userID int64) (*models.RewardBalance, error) {
	defer m.lock()()
	b, ok := m.s.rewards[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	balance := b
	return &balance, nil
}

func (m *Memory) SaveRewardBalance(ctx context.Context, balance *models.RewardBalance) error {
	defer m.lock()()
	m.s.rewards[balance.UserID] = *balance
	return nil
}

// --- Audit ---

func (m *Memory) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	defer m.lock()()
	if entry.ID == 0 {
		entry.ID = m.s.id()
	}
	m.s.audits = append(m.s.audits, *entry)
	return nil
}
