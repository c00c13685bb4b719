package reward

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/storage"
	"freshtrace-system/internal/storage/memory"
)

func TestAccrue(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	err := st.InTransaction(ctx, func(tx storage.Store) error {
		_, err := Accrue(ctx, tx, 7, decimal.RequireFromString("0.00135"))
		return err
	})
	if err != nil {
		t.Fatalf("first Accrue: %v", err)
	}
	err = st.InTransaction(ctx, func(tx storage.Store) error {
		_, err := Accrue(ctx, tx, 7, decimal.RequireFromString("0.0002"))
		return err
	})
	if err != nil {
		t.Fatalf("second Accrue: %v", err)
	}

	balance, err := st.GetRewardBalance(ctx, 7)
	if err != nil {
		t.Fatalf("GetRewardBalance: %v", err)
	}
	want := decimal.RequireFromString("0.00155")
	if got := decimal.RequireFromString(balance.Balance); !got.Equal(want) {
		t.Errorf("Balance = %s, want %s", got, want)
	}
	if got := decimal.RequireFromString(balance.LifetimeEarned); !got.Equal(want) {
		t.Errorf("LifetimeEarned = %s, want %s", got, want)
	}
}

func TestAccrueRejectsNegative(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	err := st.InTransaction(ctx, func(tx storage.Store) error {
		_, err := Accrue(ctx, tx, 7, decimal.NewFromInt(-1))
		return err
	})
	if err == nil {
		t.Fatal("negative accrual accepted")
	}
}

func TestBalanceZeroForNewUser(t *testing.T) {
	svc := NewService(memory.New())
	balance, err := svc.Balance(context.Background(), auth.Identity{UserID: 42, Role: auth.RoleRetailer})
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !decimal.RequireFromString(balance.Balance).IsZero() {
		t.Errorf("Balance = %s, want 0", balance.Balance)
	}
}
