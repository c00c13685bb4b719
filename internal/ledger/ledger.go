// Package ledger is the inventory core: shipment receipt, sales, donation
// reservations, and write-offs. Every mutation runs in one store
// transaction so stock arithmetic is atomic, and serialization conflicts
// are retried a bounded number of times.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/pricing"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/storage"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient unreserved stock")
	// ErrReservationExceeded is returned when a confirmation asks for more
	// units than the reservation holds.
	ErrReservationExceeded = errors.New("quantity exceeds reservation")
	ErrDonationNotPending  = errors.New("donation is not pending")
	// ErrLedgerUnavailable is returned after repeated serialization
	// conflicts; the caller should retry later.
	ErrLedgerUnavailable = errors.New("ledger temporarily unavailable")
)

const txAttempts = 3

// expiryMarkDays is the shelf-life threshold at which a batch is flagged
// expiring_soon during ledger operations.
const expiryMarkDays = 7

type Service struct {
	store  storage.Store
	prices pricing.Source
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store storage.Store, prices pricing.Source, log *zap.Logger) *Service {
	return &Service{store: store, prices: prices, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// inTx runs fn in a transaction, retrying serialization conflicts.
func (s *Service) inTx(ctx context.Context, fn func(tx storage.Store) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = s.store.InTransaction(ctx, fn)
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		s.log.Warn("ledger transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}

// markExpiringSoon flags batches close to their date. Batches already in a
// closing state are left alone.
func (s *Service) markExpiringSoon(batch *models.Batch) {
	state := registry.State(batch.Status)
	if state != registry.StateInRetail && state != registry.StateSelling {
		return
	}
	if codec.DaysToExpiry(batch.ExpiryDate, s.now()) <= expiryMarkDays {
		// in_retail and selling both allow this move.
		_ = registry.ApplyTransition(batch, registry.StateExpiringSoon)
	}
}

// ReceiveShipment records a scanned inbound shipment at the calling
// retailer. Re-scans of the same batch add to the existing position and
// put a selling or expiring_soon batch back in_retail.
func (s *Service) ReceiveShipment(ctx context.Context, ident auth.Identity, link string, quantity int32) (*models.InventoryRecord, *models.Batch, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, nil, err
	}
	if quantity <= 0 {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}

	key, _, err := codec.Decode(link, false)
	if err != nil {
		return nil, nil, err
	}
	if len(key.TradeItemCode) == 13 {
		key.TradeItemCode = "0" + key.TradeItemCode
	}

	var (
		rec   *models.InventoryRecord
		batch *models.Batch
	)
	err = s.inTx(ctx, func(tx storage.Store) error {
		batch, err = tx.GetBatch(ctx, key.TradeItemCode, key.BatchID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s / %s", registry.ErrBatchNotFound, key.TradeItemCode, key.BatchID)
		}
		if err != nil {
			return err
		}

		if batch.Status == string(registry.StateManufactured) {
			if err := registry.ApplyTransition(batch, registry.StateShipped); err != nil {
				return err
			}
		}
		if err := registry.ApplyTransition(batch, registry.StateInRetail); err != nil {
			return err
		}
		batch.CurrentHolderID = &ident.UserID
		s.markExpiringSoon(batch)
		if err := tx.SaveBatch(ctx, batch); err != nil {
			return err
		}

		rec, err = tx.GetInventoryRecord(ctx, ident.UserID, batch.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			rec = &models.InventoryRecord{RetailerID: ident.UserID, BatchID: batch.ID, QuantityOnHand: quantity}
			if err := tx.CreateInventoryRecord(ctx, rec); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			rec.QuantityOnHand += quantity
			if err := tx.SaveInventoryRecord(ctx, rec); err != nil {
				return err
			}
		}

		return tx.AppendAudit(ctx, &models.AuditLog{
			UserID:     ident.UserID,
			Action:     "shipment_received",
			EntityType: "batch",
			EntityID:   batch.ID,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("shipment received",
		zap.Int64("retailer_id", ident.UserID),
		zap.Int64("batch_id", batch.ID),
		zap.Int32("quantity", quantity))
	return rec, batch, nil
}

// RecordSale deducts sold units from unreserved stock and appends a sale
// row. unitPrice overrides the batch list price when given.
func (s *Service) RecordSale(ctx context.Context, ident auth.Identity, batchID int64, quantity int32, unitPrice *decimal.Decimal, weatherTag *string) (*models.Sale, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}

	var sale *models.Sale
	err := s.inTx(ctx, func(tx storage.Store) error {
		rec, err := tx.GetInventoryRecord(ctx, ident.UserID, batchID)
		if err != nil {
			return err
		}
		available := rec.QuantityOnHand - rec.QuantityReserved
		if quantity > available {
			return fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, quantity, available)
		}

		batch, err := tx.GetBatchByID(ctx, batchID)
		if err != nil {
			return err
		}

		price := decimal.Zero
		switch {
		case unitPrice != nil:
			price = *unitPrice
		case batch.UnitPrice != nil:
			if p, perr := decimal.NewFromString(*batch.UnitPrice); perr == nil {
				price = p
			}
		}

		rec.QuantityOnHand -= quantity
		if err := tx.SaveInventoryRecord(ctx, rec); err != nil {
			return err
		}

		soldAt := s.now()
		wd := soldAt.Weekday()
		sale = &models.Sale{
			RetailerID:   ident.UserID,
			BatchID:      batchID,
			QuantitySold: quantity,
			UnitPrice:    price.StringFixed(2),
			TotalPrice:   price.Mul(decimal.NewFromInt32(quantity)).StringFixed(2),
			SoldAt:       soldAt,
			DayOfWeek:    int32(wd),
			IsWeekend:    wd == time.Saturday || wd == time.Sunday,
			WeatherTag:   weatherTag,
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}

		if batch.Status != string(registry.StateExpiringSoon) {
			if err := registry.ApplyTransition(batch, registry.StateSelling); err != nil {
				return err
			}
		}
		onHand, err := tx.AggregateOnHand(ctx, batchID)
		if err != nil {
			return err
		}
		if onHand == 0 {
			if err := registry.ApplyTransition(batch, registry.StateSoldOut); err != nil {
				return err
			}
		} else {
			s.markExpiringSoon(batch)
		}
		return tx.SaveBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sale recorded",
		zap.Int64("retailer_id", ident.UserID),
		zap.Int64("batch_id", batchID),
		zap.Int32("quantity", quantity))
	return sale, nil
}

// QuickScanSale sells a single unit identified by a scanned link, at the
// batch list price.
func (s *Service) QuickScanSale(ctx context.Context, ident auth.Identity, link string) (*models.Sale, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}
	key, _, err := codec.Decode(link, false)
	if err != nil {
		return nil, err
	}
	if len(key.TradeItemCode) == 13 {
		key.TradeItemCode = "0" + key.TradeItemCode
	}
	batch, err := s.store.GetBatch(ctx, key.TradeItemCode, key.BatchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s / %s", registry.ErrBatchNotFound, key.TradeItemCode, key.BatchID)
	}
	if err != nil {
		return nil, err
	}
	return s.RecordSale(ctx, ident, batch.ID, 1, nil, nil)
}

// WriteOff disposes the caller's unreserved units of a batch. Units held
// for a pending donation stay reserved. When the write-off empties the
// batch everywhere, the batch is closed as disposed.
func (s *Service) WriteOff(ctx context.Context, ident auth.Identity, batchID int64) (int32, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return 0, err
	}

	var disposed int32
	err := s.inTx(ctx, func(tx storage.Store) error {
		rec, err := tx.GetInventoryRecord(ctx, ident.UserID, batchID)
		if err != nil {
			return err
		}
		disposed = rec.QuantityOnHand - rec.QuantityReserved
		if disposed <= 0 {
			return fmt.Errorf("%w: nothing to write off", ErrInsufficientStock)
		}
		rec.QuantityOnHand = rec.QuantityReserved
		if err := tx.SaveInventoryRecord(ctx, rec); err != nil {
			return err
		}

		onHand, err := tx.AggregateOnHand(ctx, batchID)
		if err != nil {
			return err
		}
		if onHand == 0 {
			batch, err := tx.GetBatchByID(ctx, batchID)
			if err != nil {
				return err
			}
			if err := registry.ApplyTransition(batch, registry.StateDisposed); err != nil {
				return err
			}
			if err := tx.SaveBatch(ctx, batch); err != nil {
				return err
			}
		}

		return tx.AppendAudit(ctx, &models.AuditLog{
			UserID:     ident.UserID,
			Action:     "stock_written_off",
			EntityType: "batch",
			EntityID:   batchID,
		})
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("stock written off",
		zap.Int64("retailer_id", ident.UserID),
		zap.Int64("batch_id", batchID),
		zap.Int32("quantity", disposed))
	return disposed, nil
}

// ListInventory returns the caller's stock positions with batch details.
func (s *Service) ListInventory(ctx context.Context, ident auth.Identity) ([]models.InventoryRecord, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}
	return s.store.ListInventoryByRetailer(ctx, ident.UserID)
}
