// Package registry owns batch identities and the batch lifecycle. A batch
// is registered once by its manufacturer, carries a canonical link for its
// whole life, and moves through lifecycle states as custody events arrive.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/storage"
)

// ErrDuplicateBatch is returned when a (trade item code, batch id) pair is
// registered twice.
var ErrDuplicateBatch = errors.New("batch already registered")

var ErrBatchNotFound = errors.New("batch not found")

// ErrInvalidBatch covers registration inputs that fail domain rules
// before anything is persisted.
var ErrInvalidBatch = errors.New("invalid batch")

type Service struct {
	store    storage.Store
	linkBase string
	log      *zap.Logger
}

func NewService(store storage.Store, linkBase string, log *zap.Logger) *Service {
	return &Service{store: store, linkBase: linkBase, log: log}
}

type CreateBatchInput struct {
	TradeItemCode   string
	BatchID         string
	ProductName     string
	ManufactureDate time.Time
	ExpiryDate      time.Time
	Quantity        int32
	UnitPrice       *string
	Serial          string
}

// CreateBatch registers a new lot and mints its link. Manufacturer only.
func (s *Service) CreateBatch(ctx context.Context, ident auth.Identity, in CreateBatchInput) (*models.Batch, error) {
	if err := ident.Require(auth.RoleManufacturer); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidBatch)
	}
	if in.ProductName == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidBatch)
	}
	if !in.ExpiryDate.After(in.ManufactureDate) {
		return nil, fmt.Errorf("%w: expiry must be after manufacture date", ErrInvalidBatch)
	}

	link, err := codec.Encode(s.linkBase, codec.Key{
		TradeItemCode: in.TradeItemCode,
		BatchID:       in.BatchID,
		Expiry:        in.ExpiryDate,
		Serial:        in.Serial,
	})
	if err != nil {
		return nil, err
	}

	batch := &models.Batch{
		TradeItemCode:   in.TradeItemCode,
		BatchID:         in.BatchID,
		ProductName:     in.ProductName,
		ManufacturerID:  ident.UserID,
		ManufactureDate: in.ManufactureDate,
		ExpiryDate:      in.ExpiryDate,
		QuantityMade:    in.Quantity,
		UnitPrice:       in.UnitPrice,
		Status:          string(StateManufactured),
		Link:            link,
	}

	err = s.store.InTransaction(ctx, func(tx storage.Store) error {
		if err := tx.CreateBatch(ctx, batch); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("%w: %s / %s", ErrDuplicateBatch, in.TradeItemCode, in.BatchID)
			}
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditLog{
			UserID:     ident.UserID,
			Action:     "batch_created",
			EntityType: "batch",
			EntityID:   batch.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch registered",
		zap.Int64("batch_id", batch.ID),
		zap.String("trade_item_code", batch.TradeItemCode),
		zap.String("lot", batch.BatchID))
	return batch, nil
}

// ListBatches returns the caller's own batches, newest first.
func (s *Service) ListBatches(ctx context.Context, ident auth.Identity) ([]models.Batch, error) {
	if err := ident.Require(auth.RoleManufacturer); err != nil {
		return nil, err
	}
	return s.store.ListBatchesByManufacturer(ctx, ident.UserID)
}

// Stats tallies the caller's batches per lifecycle state.
func (s *Service) Stats(ctx context.Context, ident auth.Identity) ([]storage.BatchStats, error) {
	if err := ident.Require(auth.RoleManufacturer); err != nil {
		return nil, err
	}
	return s.store.BatchStatsByManufacturer(ctx, ident.UserID)
}

// LookupByLink resolves a scanned link to its registered batch. Scanned
// 13-digit trade item codes are padded to the stored 14-digit form.
func (s *Service) LookupByLink(ctx context.Context, link string) (*models.Batch, codec.Key, error) {
	key, _, err := codec.Decode(link, false)
	if err != nil {
		return nil, key, err
	}
	if len(key.TradeItemCode) == 13 {
		key.TradeItemCode = "0" + key.TradeItemCode
	}
	batch, err := s.store.GetBatch(ctx, key.TradeItemCode, key.BatchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, key, fmt.Errorf("%w: %s / %s", ErrBatchNotFound, key.TradeItemCode, key.BatchID)
	}
	if err != nil {
		return nil, key, err
	}
	return batch, key, nil
}
