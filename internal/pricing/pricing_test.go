package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFallback(t *testing.T) {
	cases := []struct {
		name string
		want int64
	}{
		{"Whole Wheat Bread", 40},
		{"Bread & Butter 500g", 40}, // bread wins over the butter rules
		{"Amul Butter 500g", 250},
		{"Table Butter 100g", 50},
		{"Glucose Biscuits", 30},
		{"Basmati Rice 1kg", 80},
		{"Toned Milk 1L", 60},
		{"Mystery Item", 50},
	}
	for _, tc := range cases {
		got := Fallback(tc.name)
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Errorf("Fallback(%q) = %s, want %d", tc.name, got, tc.want)
		}
	}
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{"toned milk 1l": decimal.NewFromInt(62)}
	ctx := context.Background()

	price, err := src.Quote(ctx, "Toned Milk 1L")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(62)) {
		t.Errorf("price = %s, want 62", price)
	}

	if _, err := src.Quote(ctx, "unlisted"); !errors.Is(err, ErrNoQuote) {
		t.Errorf("err = %v, want ErrNoQuote", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("product") {
		case "Toned Milk 1L":
			w.Write([]byte(`{"price": "62.50"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	ctx := context.Background()

	price, err := src.Quote(ctx, "Toned Milk 1L")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("62.50")) {
		t.Errorf("price = %s, want 62.50", price)
	}
	if _, err := src.Quote(ctx, "unlisted"); !errors.Is(err, ErrNoQuote) {
		t.Errorf("err = %v, want ErrNoQuote", err)
	}
}
