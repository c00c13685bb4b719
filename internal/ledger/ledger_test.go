package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/pricing"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/storage"
	"freshtrace-system/internal/storage/memory"
)

type fixture struct {
	st       *memory.Memory
	svc      *Service
	retailer auth.Identity
	ngo      auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	users := []models.User{
		{Email: "maker@example.com", Password: "x", Name: "Maker", Role: "manufacturer", IsActive: true},
		{Email: "shop@example.com", Password: "x", Name: "Shop", Role: "retailer", IsActive: true},
		{Email: "ngo@example.com", Password: "x", Name: "Food Bank", Role: "ngo", IsActive: true},
	}
	ids := make([]int64, len(users))
	for i := range users {
		if err := st.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		ids[i] = users[i].ID
	}
	return &fixture{
		st:       st,
		svc:      NewService(st, nil, zap.NewNop()),
		retailer: auth.Identity{UserID: ids[1], Role: auth.RoleRetailer},
		ngo:      auth.Identity{UserID: ids[2], Role: auth.RoleNGO},
	}
}

// seedBatch registers a batch expiring the given number of days from now
// and returns it with its canonical link populated.
func (f *fixture) seedBatch(t *testing.T, lot string, expiryDays int, unitPrice *string) *models.Batch {
	t.Helper()
	ctx := context.Background()
	expiry := time.Now().UTC().AddDate(0, 0, expiryDays)
	link, err := codec.Encode("https://id.freshtrace.example", codec.Key{
		TradeItemCode: "08901234567895",
		BatchID:       lot,
		Expiry:        expiry,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	batch := &models.Batch{
		TradeItemCode:   "08901234567895",
		BatchID:         lot,
		ProductName:     "Whole Wheat Bread",
		ManufacturerID:  1,
		ManufactureDate: time.Now().UTC().AddDate(0, 0, -1),
		ExpiryDate:      expiry,
		QuantityMade:    100,
		UnitPrice:       unitPrice,
		Status:          string(registry.StateManufactured),
		Link:            link,
	}
	if err := f.st.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return batch
}

func (f *fixture) inventory(t *testing.T, batchID int64) *models.InventoryRecord {
	t.Helper()
	rec, err := f.st.GetInventoryRecord(context.Background(), f.retailer.UserID, batchID)
	if err != nil {
		t.Fatalf("GetInventoryRecord: %v", err)
	}
	return rec
}

func (f *fixture) batchStatus(t *testing.T, batchID int64) string {
	t.Helper()
	batch, err := f.st.GetBatchByID(context.Background(), batchID)
	if err != nil {
		t.Fatalf("GetBatchByID: %v", err)
	}
	return batch.Status
}

func strptr(s string) *string { return &s }

func TestReceiveShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-A", 20, nil)

	rec, got, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10)
	if err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if rec.QuantityOnHand != 10 {
		t.Errorf("QuantityOnHand = %d, want 10", rec.QuantityOnHand)
	}
	if got.Status != string(registry.StateInRetail) {
		t.Errorf("Status = %q, want in_retail", got.Status)
	}
	if got.CurrentHolderID == nil || *got.CurrentHolderID != f.retailer.UserID {
		t.Errorf("CurrentHolderID = %v", got.CurrentHolderID)
	}

	// Re-scan adds to the position.
	rec, _, err = f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5)
	if err != nil {
		t.Fatalf("second ReceiveShipment: %v", err)
	}
	if rec.QuantityOnHand != 15 {
		t.Errorf("QuantityOnHand = %d, want 15", rec.QuantityOnHand)
	}
}

func TestReceiveShipmentNearExpiry(t *testing.T) {
	f := newFixture(t)
	batch := f.seedBatch(t, "LOT-B", 5, nil)

	_, got, err := f.svc.ReceiveShipment(context.Background(), f.retailer, batch.Link, 10)
	if err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if got.Status != string(registry.StateExpiringSoon) {
		t.Errorf("Status = %q, want expiring_soon", got.Status)
	}
}

// A restock while a batch is selling or expiring_soon puts it back
// in_retail instead of rejecting the scan.
func TestReceiveShipmentRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-R", 20, strptr("40.00"))

	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 1, nil, nil); err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateSelling) {
		t.Fatalf("status after sale = %q, want selling", got)
	}

	rec, got, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5)
	if err != nil {
		t.Fatalf("restock ReceiveShipment: %v", err)
	}
	if rec.QuantityOnHand != 14 {
		t.Errorf("QuantityOnHand = %d, want 14", rec.QuantityOnHand)
	}
	if got.Status != string(registry.StateInRetail) {
		t.Errorf("Status = %q, want in_retail", got.Status)
	}
}

// Restocking a short-dated batch re-flags it expiring_soon immediately.
func TestReceiveShipmentRestockNearExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-S", 5, strptr("40.00"))

	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateExpiringSoon) {
		t.Fatalf("status after receipt = %q, want expiring_soon", got)
	}

	_, got, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5)
	if err != nil {
		t.Fatalf("restock ReceiveShipment: %v", err)
	}
	if got.Status != string(registry.StateExpiringSoon) {
		t.Errorf("Status = %q, want expiring_soon", got.Status)
	}
}

func TestReceiveShipmentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-C", 20, nil)

	if _, _, err := f.svc.ReceiveShipment(ctx, f.ngo, batch.Link, 10); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("ngo receive err = %v, want ErrForbidden", err)
	}
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, -1, nil, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("negative sale err = %v, want ErrInvalidQuantity", err)
	}
	unknown := "https://id.freshtrace.example/01/08900000000001/10/NOPE/17/270101"
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, unknown, 10); !errors.Is(err, registry.ErrBatchNotFound) {
		t.Errorf("unknown batch err = %v, want ErrBatchNotFound", err)
	}
}

func TestRecordSaleRespectsReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-D", 20, strptr("40.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 4); err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}

	// 10 on hand, 4 reserved: only 6 sellable.
	_, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 7, nil, nil)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("sale of 7 err = %v, want ErrInsufficientStock", err)
	}
	rec := f.inventory(t, batch.ID)
	if rec.QuantityOnHand != 10 || rec.QuantityReserved != 4 {
		t.Fatalf("failed sale mutated stock: %+v", rec)
	}

	sale, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 6, nil, nil)
	if err != nil {
		t.Fatalf("sale of 6: %v", err)
	}
	if sale.TotalPrice != "240.00" {
		t.Errorf("TotalPrice = %q, want 240.00", sale.TotalPrice)
	}
	rec = f.inventory(t, batch.ID)
	if rec.QuantityOnHand != 4 || rec.QuantityReserved != 4 {
		t.Errorf("after sale: %+v, want onHand 4 reserved 4", rec)
	}
}

func TestRecordSaleSoldOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-E", 20, strptr("40.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 3); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 2, nil, nil); err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateSelling) {
		t.Errorf("Status = %q, want selling", got)
	}
	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 1, nil, nil); err != nil {
		t.Fatalf("final RecordSale: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateSoldOut) {
		t.Errorf("Status = %q, want sold_out", got)
	}
}

func TestQuickScanSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-F", 20, strptr("40.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 2); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	sale, err := f.svc.QuickScanSale(ctx, f.retailer, batch.Link)
	if err != nil {
		t.Fatalf("QuickScanSale: %v", err)
	}
	if sale.QuantitySold != 1 || sale.UnitPrice != "40.00" {
		t.Errorf("sale = %+v, want qty 1 at 40.00", sale)
	}
	if rec := f.inventory(t, batch.ID); rec.QuantityOnHand != 1 {
		t.Errorf("QuantityOnHand = %d, want 1", rec.QuantityOnHand)
	}
}

func TestConfirmDonationPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-G", 20, strptr("45.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 4)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}
	if donation.Reference == "" {
		t.Error("donation reference not set")
	}

	confirmed, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 3)
	if err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}

	// 3 of 4 confirmed: 3 leave stock, the 4th returns to sale.
	rec := f.inventory(t, batch.ID)
	if rec.QuantityOnHand != 7 || rec.QuantityReserved != 0 {
		t.Errorf("after confirm: %+v, want onHand 7 reserved 0", rec)
	}

	if confirmed.Status != models.DonationStatusConfirmed {
		t.Errorf("Status = %q", confirmed.Status)
	}
	if confirmed.TotalValue == nil || *confirmed.TotalValue != "135.00" {
		t.Errorf("TotalValue = %v, want 135.00", confirmed.TotalValue)
	}
	wantReward := decimal.RequireFromString("0.00135")
	if confirmed.RewardAmount == nil || !decimal.RequireFromString(*confirmed.RewardAmount).Equal(wantReward) {
		t.Errorf("RewardAmount = %v, want 0.00135", confirmed.RewardAmount)
	}

	balance, err := f.st.GetRewardBalance(ctx, f.retailer.UserID)
	if err != nil {
		t.Fatalf("GetRewardBalance: %v", err)
	}
	if !decimal.RequireFromString(balance.Balance).Equal(wantReward) {
		t.Errorf("retailer balance = %s, want 0.00135", balance.Balance)
	}
}

func TestConfirmDonationValuationFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// No list price and no market source: keyword estimate (bread = 40).
	batch := f.seedBatch(t, "LOT-H", 20, nil)
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 2)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}
	confirmed, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 2)
	if err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}
	if *confirmed.UnitValue != "40.00" || *confirmed.TotalValue != "80.00" {
		t.Errorf("valuation = %s x %s", *confirmed.UnitValue, *confirmed.TotalValue)
	}
}

func TestConfirmDonationMarketQuote(t *testing.T) {
	f := newFixture(t)
	f.svc = NewService(f.st, pricing.StaticSource{"whole wheat bread": decimal.NewFromInt(42)}, zap.NewNop())
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-I", 20, nil)
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 2)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}
	confirmed, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 2)
	if err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}
	if *confirmed.UnitValue != "42.00" {
		t.Errorf("UnitValue = %s, want market quote 42.00", *confirmed.UnitValue)
	}
}

func TestConfirmDonationGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-J", 20, strptr("45.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 4)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}

	otherNGO := auth.Identity{UserID: f.ngo.UserID + 100, Role: auth.RoleNGO}
	if _, err := f.svc.ConfirmDonation(ctx, otherNGO, donation.ID, 3); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("foreign ngo err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 5); !errors.Is(err, ErrReservationExceeded) {
		t.Errorf("over-confirm err = %v, want ErrReservationExceeded", err)
	}

	if _, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 4); err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}
	if _, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 4); !errors.Is(err, ErrDonationNotPending) {
		t.Errorf("double confirm err = %v, want ErrDonationNotPending", err)
	}

	// Guards must not leak stock: 10 received, 4 donated.
	if rec := f.inventory(t, batch.ID); rec.QuantityOnHand != 6 || rec.QuantityReserved != 0 {
		t.Errorf("final stock %+v, want onHand 6 reserved 0", rec)
	}
}

func TestDonationEmptiesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-K", 20, strptr("45.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 3); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 3)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}
	if _, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 3); err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateDonated) {
		t.Errorf("Status = %q, want donated", got)
	}
}

func TestCreateDonationReservationGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-L", 20, nil)
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 5); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 6); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("over-reserve err = %v, want ErrInsufficientStock", err)
	}
	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero-quantity reserve err = %v, want ErrInvalidQuantity", err)
	}
	// The reservation target must hold the ngo role.
	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.retailer.UserID, 2); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("non-ngo recipient err = %v, want ErrForbidden", err)
	}
}

func TestWriteOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-M", 2, nil)
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 10); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 4); err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}

	disposed, err := f.svc.WriteOff(ctx, f.retailer, batch.ID)
	if err != nil {
		t.Fatalf("WriteOff: %v", err)
	}
	if disposed != 6 {
		t.Errorf("disposed = %d, want 6", disposed)
	}
	rec := f.inventory(t, batch.ID)
	if rec.QuantityOnHand != 4 || rec.QuantityReserved != 4 {
		t.Errorf("after write-off: %+v, reserved units must survive", rec)
	}
	// Reserved stock still on hand, so the batch is not disposed yet.
	if got := f.batchStatus(t, batch.ID); got == string(registry.StateDisposed) {
		t.Error("batch disposed while reserved stock remains")
	}

	if _, err := f.svc.WriteOff(ctx, f.retailer, batch.ID); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("empty write-off err = %v, want ErrInsufficientStock", err)
	}
}

func TestWriteOffDisposesEmptyBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-N", 1, nil)
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 4); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}
	if _, err := f.svc.WriteOff(ctx, f.retailer, batch.ID); err != nil {
		t.Fatalf("WriteOff: %v", err)
	}
	if got := f.batchStatus(t, batch.ID); got != string(registry.StateDisposed) {
		t.Errorf("Status = %q, want disposed", got)
	}
}

// Every received unit must end up sold, donated, written off, or still on
// hand; no operation may create or destroy stock.
func TestStockConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-R", 20, strptr("40.00"))
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 20); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 5, nil, nil); err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	donation, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 6)
	if err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}
	if _, err := f.svc.ConfirmDonation(ctx, f.ngo, donation.ID, 4); err != nil {
		t.Fatalf("ConfirmDonation: %v", err)
	}
	disposed, err := f.svc.WriteOff(ctx, f.retailer, batch.ID)
	if err != nil {
		t.Fatalf("WriteOff: %v", err)
	}

	// 20 received = 5 sold + 4 donated + 11 written off + 0 on hand.
	if disposed != 11 {
		t.Errorf("disposed = %d, want 11", disposed)
	}
	rec := f.inventory(t, batch.ID)
	if rec.QuantityOnHand != 0 || rec.QuantityReserved != 0 {
		t.Errorf("final stock %+v, want empty", rec)
	}
	sold, err := f.st.SalesTotalSince(ctx, f.retailer.UserID, batch.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SalesTotalSince: %v", err)
	}
	if sold != 5 {
		t.Errorf("sold = %d, want 5", sold)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-O", 20, strptr("40.00"))
	const sellers = 8
	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, sellers-1); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	errs := make([]error, sellers)
	var wg sync.WaitGroup
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordSale(ctx, f.retailer, batch.ID, 1, nil, nil)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if errors.Is(err, ErrInsufficientStock) {
			failed++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if failed != 1 {
		t.Fatalf("failed sales = %d, want exactly 1", failed)
	}
	if rec := f.inventory(t, batch.ID); rec.QuantityOnHand != 0 {
		t.Errorf("QuantityOnHand = %d, want 0", rec.QuantityOnHand)
	}
}

func TestInsights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	near := f.seedBatch(t, "LOT-P", 2, strptr("40.00"))
	far := f.seedBatch(t, "LOT-Q", 60, strptr("80.00"))
	for _, b := range []*models.Batch{near, far} {
		if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, b.Link, 10); err != nil {
			t.Fatalf("ReceiveShipment: %v", err)
		}
	}
	// Heavy trailing sales on the long-dated batch force a reorder.
	if _, err := f.svc.RecordSale(ctx, f.retailer, far.ID, 9, nil, nil); err != nil {
		t.Fatalf("RecordSale: %v", err)
	}

	alerts, err := f.svc.Alerts(ctx, f.retailer)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	var sawNear bool
	for _, a := range alerts {
		if a.BatchID == near.ID && a.DonationSuggested {
			sawNear = true
		}
	}
	if !sawNear {
		t.Errorf("no donation-suggesting alert for near-expiry batch: %+v", alerts)
	}

	suggestions, err := f.svc.ReorderSuggestions(ctx, f.retailer)
	if err != nil {
		t.Fatalf("ReorderSuggestions: %v", err)
	}
	var sawFar bool
	for _, sg := range suggestions {
		if sg.BatchID == far.ID && sg.Urgency == "CRITICAL" {
			sawFar = true
		}
	}
	if !sawFar {
		t.Errorf("no critical reorder for fast-moving batch: %+v", suggestions)
	}

	proj, err := f.svc.DemandProjection(ctx, f.retailer, far.ID)
	if err != nil {
		t.Fatalf("DemandProjection: %v", err)
	}
	if len(proj.Days) != 7 {
		t.Errorf("projection days = %d, want 7", len(proj.Days))
	}
	if proj.SuggestedTopUp <= 0 {
		t.Errorf("SuggestedTopUp = %d, want positive", proj.SuggestedTopUp)
	}
	if !proj.ReorderRecommended {
		t.Errorf("ReorderRecommended = false with stock below demand")
	}
}

// The projection runs against everything on hand; reserved units are not
// subtracted from the stock baseline.
func TestDemandProjectionCountsReservedStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.seedBatch(t, "LOT-T", 60, strptr("40.00"))

	if _, _, err := f.svc.ReceiveShipment(ctx, f.retailer, batch.Link, 20); err != nil {
		t.Fatalf("ReceiveShipment: %v", err)
	}

	// Pin the clock to a Monday so the horizon covers exactly one weekend.
	monday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return monday }

	if _, err := f.svc.RecordSale(ctx, f.retailer, batch.ID, 7, nil, nil); err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if _, err := f.svc.CreateDonationReservation(ctx, f.retailer, batch.ID, f.ngo.UserID, 4); err != nil {
		t.Fatalf("CreateDonationReservation: %v", err)
	}

	proj, err := f.svc.DemandProjection(ctx, f.retailer, batch.ID)
	if err != nil {
		t.Fatalf("DemandProjection: %v", err)
	}
	// One observed day at 7/day: 5 weekdays at 7 plus 2 weekend days at
	// floor(7*1.3)=9 gives 53. Stock baseline is the full 13 on hand, so
	// the top-up is 53-13+50, not 53-9+50.
	if proj.TotalDemand != 53 {
		t.Fatalf("TotalDemand = %d, want 53", proj.TotalDemand)
	}
	if proj.SuggestedTopUp != 90 {
		t.Errorf("SuggestedTopUp = %d, want 90", proj.SuggestedTopUp)
	}
}

// conflictStore fails every transaction with a serialization conflict.
type conflictStore struct {
	storage.Store
	attempts int
}

func (c *conflictStore) InTransaction(ctx context.Context, fn func(storage.Store) error) error {
	c.attempts++
	return storage.ErrConflict
}

func TestTransactionRetryExhaustion(t *testing.T) {
	cs := &conflictStore{Store: memory.New()}
	svc := NewService(cs, nil, zap.NewNop())

	err := svc.inTx(context.Background(), func(tx storage.Store) error { return nil })
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if cs.attempts != 3 {
		t.Errorf("attempts = %d, want 3", cs.attempts)
	}
}
