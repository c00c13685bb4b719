// Package reward keeps the per-user reward ledger earned through confirmed
// donations. Balances only grow through Accrue; LifetimeEarned is monotone.
package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/storage"
)

// Accrue credits amount to the user's balance, creating the row on first
// credit. It runs inside the caller's transaction so the credit commits or
// rolls back with the donation that earned it.
func Accrue(ctx context.Context, tx storage.Store, userID int64, amount decimal.Decimal) (*models.RewardBalance, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("reward amount must not be negative, got %s", amount)
	}

	balance, err := tx.GetRewardBalance(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		balance = &models.RewardBalance{
			UserID:         userID,
			Balance:        decimal.Zero.String(),
			LifetimeEarned: decimal.Zero.String(),
		}
	} else if err != nil {
		return nil, err
	}

	current, err := decimal.NewFromString(balance.Balance)
	if err != nil {
		return nil, fmt.Errorf("stored balance for user %d is corrupt: %w", userID, err)
	}
	lifetime, err := decimal.NewFromString(balance.LifetimeEarned)
	if err != nil {
		return nil, fmt.Errorf("stored lifetime for user %d is corrupt: %w", userID, err)
	}

	balance.Balance = current.Add(amount).String()
	balance.LifetimeEarned = lifetime.Add(amount).String()
	balance.UpdatedAt = time.Now().UTC()

	if err := tx.SaveRewardBalance(ctx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Balance returns the caller's reward position. Users with no credits yet
// get a zero balance rather than an error.
func (s *Service) Balance(ctx context.Context, ident auth.Identity) (*models.RewardBalance, error) {
	balance, err := s.store.GetRewardBalance(ctx, ident.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.RewardBalance{
			UserID:         ident.UserID,
			Balance:        decimal.Zero.String(),
			LifetimeEarned: decimal.Zero.String(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return balance, nil
}
