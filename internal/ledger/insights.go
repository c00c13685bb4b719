package ledger

import (
	"context"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/decision"
)

// velocityWindowDays is the trailing sales window used for reorder
// velocity; demandWindowDays feeds the demand projection.
const (
	velocityWindowDays = 7
	demandWindowDays   = 30
	demandHorizonDays  = 7
)

// Snapshots assembles the per-batch stock positions the decision rules
// consume: on-hand stock, days to expiry, trailing sales.
func (s *Service) Snapshots(ctx context.Context, ident auth.Identity) ([]decision.StockSnapshot, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return nil, err
	}

	recs, err := s.store.ListInventoryByRetailer(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.AddDate(0, 0, -velocityWindowDays)
	snaps := make([]decision.StockSnapshot, 0, len(recs))
	for _, rec := range recs {
		snap := decision.StockSnapshot{
			BatchID: rec.BatchID,
			OnHand:  rec.QuantityOnHand,
		}
		if rec.Batch != nil {
			snap.ProductName = rec.Batch.ProductName
			snap.DaysToExpiry = codec.DaysToExpiry(rec.Batch.ExpiryDate, now)
		}
		sold, err := s.store.SalesTotalSince(ctx, ident.UserID, rec.BatchID, since)
		if err != nil {
			return nil, err
		}
		snap.SoldLast7Days = sold
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Alerts evaluates expiry and stockout conditions over the caller's stock.
func (s *Service) Alerts(ctx context.Context, ident auth.Identity) ([]decision.Alert, error) {
	snaps, err := s.Snapshots(ctx, ident)
	if err != nil {
		return nil, err
	}
	return decision.BuildAlerts(snaps), nil
}

// ReorderSuggestions analyzes every stock position and returns the
// actionable ones, most urgent first.
func (s *Service) ReorderSuggestions(ctx context.Context, ident auth.Identity) ([]decision.ReorderSuggestion, error) {
	snaps, err := s.Snapshots(ctx, ident)
	if err != nil {
		return nil, err
	}
	suggestions := make([]decision.ReorderSuggestion, 0, len(snaps))
	for _, snap := range snaps {
		if sg := decision.SuggestReorder(snap); sg != nil {
			suggestions = append(suggestions, *sg)
		}
	}
	decision.SortSuggestions(suggestions)
	return suggestions, nil
}

// DemandProjection forecasts the next week of demand for one batch from
// the trailing month of sales. The projection runs against everything on
// hand, reserved units included: reservations can still be released back
// into sellable stock before the horizon ends.
func (s *Service) DemandProjection(ctx context.Context, ident auth.Identity, batchID int64) (decision.Projection, error) {
	if err := ident.Require(auth.RoleRetailer); err != nil {
		return decision.Projection{}, err
	}

	rec, err := s.store.GetInventoryRecord(ctx, ident.UserID, batchID)
	if err != nil {
		return decision.Projection{}, err
	}

	now := s.now()
	rows, err := s.store.DailySalesSince(ctx, ident.UserID, batchID, now.AddDate(0, 0, -demandWindowDays))
	if err != nil {
		return decision.Projection{}, err
	}
	var total int64
	for _, row := range rows {
		total += row.Quantity
	}

	return decision.ProjectDemand(total, len(rows), rec.QuantityOnHand, now, demandHorizonDays), nil
}
