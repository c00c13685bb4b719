package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/decision"
	"freshtrace-system/internal/pricing"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/reward"
	"freshtrace-system/internal/storage"
)

// CreateDonationReservation earmarks unreserved stock for an NGO. Reserved
// units stay on hand but cannot be sold until the donation is confirmed.
func (s *Service) CreateDonationReservation(ctx context.Context, ident auth.Identity, batchID, ngoID int64, quantity int32) (*models.Donation, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}

	ngo, err := s.store.GetUserByID(ctx, ngoID)
	if err != nil {
		return nil, fmt.Errorf("ngo %d: %w", ngoID, err)
	}
	if ngo.Role != string(auth.RoleNGO) {
		return nil, fmt.Errorf("%w: recipient %d is not an ngo", auth.ErrForbidden, ngoID)
	}

	donation := &models.Donation{
		Reference:         uuid.NewString(),
		RetailerID:        ident.UserID,
		NgoID:             ngoID,
		BatchID:           batchID,
		QuantityRequested: quantity,
		Status:            models.DonationStatusPending,
	}
	err = s.inTx(ctx, func(tx storage.Store) error {
		rec, err := tx.GetInventoryRecord(ctx, ident.UserID, batchID)
		if err != nil {
			return err
		}
		available := rec.QuantityOnHand - rec.QuantityReserved
		if quantity > available {
			return fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, quantity, available)
		}
		rec.QuantityReserved += quantity
		if err := tx.SaveInventoryRecord(ctx, rec); err != nil {
			return err
		}
		if err := tx.CreateDonation(ctx, donation); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditLog{
			UserID:     ident.UserID,
			Action:     "donation_reserved",
			EntityType: "donation",
			EntityID:   donation.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("donation reserved",
		zap.Int64("retailer_id", ident.UserID),
		zap.Int64("ngo_id", ngoID),
		zap.Int64("batch_id", batchID),
		zap.Int32("quantity", quantity),
		zap.String("reference", donation.Reference))
	return donation, nil
}

// ConfirmDonation closes a pending donation as the receiving NGO. The
// confirmed units leave stock, any unconfirmed remainder of the reservation
// is released for sale, and the retailer's reward accrues in the same
// transaction. Valuation runs before the transaction opens; a failed market
// lookup degrades to the keyword estimate.
func (s *Service) ConfirmDonation(ctx context.Context, ident auth.Identity, donationID int64, quantityConfirmed int32) (*models.Donation, error) {
	if err := ident.Require(auth.RoleNGO); err != nil {
		return nil, err
	}
	if quantityConfirmed <= 0 {
		return nil, fmt.Errorf("%w: confirmed quantity must be positive", ErrInvalidQuantity)
	}

	donation, err := s.store.GetDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	batch, err := s.store.GetBatchByID(ctx, donation.BatchID)
	if err != nil {
		return nil, err
	}

	var listPrice *decimal.Decimal
	if batch.UnitPrice != nil {
		if p, perr := decimal.NewFromString(*batch.UnitPrice); perr == nil {
			listPrice = &p
		}
	}
	var marketPrice *decimal.Decimal
	if listPrice == nil && s.prices != nil {
		if p, qerr := s.prices.Quote(ctx, batch.ProductName); qerr == nil {
			marketPrice = &p
		} else if !errors.Is(qerr, pricing.ErrNoQuote) {
			s.log.Warn("market quote failed, using keyword estimate",
				zap.String("product", batch.ProductName), zap.Error(qerr))
		}
	}
	unitValue := decision.ResolveUnitValue(listPrice, marketPrice, pricing.Fallback(batch.ProductName))
	valuation := decision.ValueDonation(unitValue, quantityConfirmed)

	err = s.inTx(ctx, func(tx storage.Store) error {
		donation, err = tx.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if donation.NgoID != ident.UserID {
			return fmt.Errorf("%w: donation %d is addressed to another ngo", auth.ErrForbidden, donationID)
		}
		if donation.Status != models.DonationStatusPending {
			return fmt.Errorf("%w: status %q", ErrDonationNotPending, donation.Status)
		}
		if quantityConfirmed > donation.QuantityRequested {
			return fmt.Errorf("%w: %d confirmed, %d reserved", ErrReservationExceeded, quantityConfirmed, donation.QuantityRequested)
		}

		rec, err := tx.GetInventoryRecord(ctx, donation.RetailerID, donation.BatchID)
		if err != nil {
			return err
		}
		if rec.QuantityReserved < donation.QuantityRequested || rec.QuantityOnHand < quantityConfirmed {
			return fmt.Errorf("%w: reservation no longer covered by stock", ErrReservationExceeded)
		}
		rec.QuantityOnHand -= quantityConfirmed
		rec.QuantityReserved -= donation.QuantityRequested
		if err := tx.SaveInventoryRecord(ctx, rec); err != nil {
			return err
		}

		now := s.now()
		unitStr := valuation.UnitValue.StringFixed(2)
		totalStr := valuation.TotalValue.StringFixed(2)
		rewardStr := valuation.RewardAmount.String()
		donation.QuantityConfirmed = &quantityConfirmed
		donation.UnitValue = &unitStr
		donation.TotalValue = &totalStr
		donation.RewardAmount = &rewardStr
		donation.Status = models.DonationStatusConfirmed
		donation.ConfirmedAt = &now
		if err := tx.SaveDonation(ctx, donation); err != nil {
			return err
		}

		if _, err := reward.Accrue(ctx, tx, donation.RetailerID, valuation.RewardAmount); err != nil {
			return err
		}

		onHand, err := tx.AggregateOnHand(ctx, donation.BatchID)
		if err != nil {
			return err
		}
		if onHand == 0 {
			batch, err := tx.GetBatchByID(ctx, donation.BatchID)
			if err != nil {
				return err
			}
			if err := registry.ApplyTransition(batch, registry.StateDonated); err != nil {
				return err
			}
			if err := tx.SaveBatch(ctx, batch); err != nil {
				return err
			}
		}

		return tx.AppendAudit(ctx, &models.AuditLog{
			UserID:     ident.UserID,
			Action:     "donation_confirmed",
			EntityType: "donation",
			EntityID:   donation.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("donation confirmed",
		zap.Int64("ngo_id", ident.UserID),
		zap.Int64("donation_id", donation.ID),
		zap.Int32("quantity", quantityConfirmed),
		zap.String("total_value", *donation.TotalValue),
		zap.String("reward", *donation.RewardAmount))
	return donation, nil
}

// ListDonations returns the caller's donation history: received donations
// for an NGO, offered donations for a retailer.
func (s *Service) ListDonations(ctx context.Context, ident auth.Identity) ([]models.Donation, error) {
	switch ident.Role {
	case auth.RoleNGO:
		return s.store.ListDonationsByNGO(ctx, ident.UserID)
	case auth.RoleRetailer:
		return s.store.ListDonationsByRetailer(ctx, ident.UserID)
	default:
		return nil, fmt.Errorf("%w: role %q has no donation history", auth.ErrForbidden, ident.Role)
	}
}

// ListNGOs returns active donation recipients for the reservation flow.
func (s *Service) ListNGOs(ctx context.Context, ident auth.Identity) ([]models.User, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}
	return s.store.ListUsersByRole(ctx, string(auth.RoleNGO))
}
