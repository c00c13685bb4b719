// Package pricing resolves a unit market value for a product name. Lookups
// run outside ledger transactions and are best-effort; callers fall back to
// the keyword table when a source fails.
package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoQuote means the source has no price for the product.
var ErrNoQuote = errors.New("no market quote")

// Source quotes a unit market price for a product name.
type Source interface {
	Quote(ctx context.Context, productName string) (decimal.Decimal, error)
}

// fallbackRule maps a product-name keyword to a unit value. Rules are
// checked in order and the first match wins, so bread outranks the butter
// rules for combined names.
type fallbackRule struct {
	keywords []string
	value    decimal.Decimal
}

var fallbackRules = []fallbackRule{
	{keywords: []string{"bread"}, value: decimal.NewFromInt(40)},
	{keywords: []string{"butter", "500"}, value: decimal.NewFromInt(250)},
	{keywords: []string{"butter"}, value: decimal.NewFromInt(50)},
	{keywords: []string{"biscuit"}, value: decimal.NewFromInt(30)},
	{keywords: []string{"rice"}, value: decimal.NewFromInt(80)},
	{keywords: []string{"milk"}, value: decimal.NewFromInt(60)},
}

var fallbackDefault = decimal.NewFromInt(50)

// Fallback estimates a unit value from keywords in the product name. It
// always succeeds; unknown products get the default value.
func Fallback(productName string) decimal.Decimal {
	name := strings.ToLower(productName)
	for _, rule := range fallbackRules {
		matched := true
		for _, kw := range rule.keywords {
			if !strings.Contains(name, kw) {
				matched = false
				break
			}
		}
		if matched {
			return rule.value
		}
	}
	return fallbackDefault
}

// StaticSource quotes from a fixed table, keyed by lowercased product name.
// Used for tests and as a seed source in local development.
type StaticSource map[string]decimal.Decimal

func (s StaticSource) Quote(ctx context.Context, productName string) (decimal.Decimal, error) {
	if price, ok := s[strings.ToLower(productName)]; ok {
		return price, nil
	}
	return decimal.Zero, ErrNoQuote
}
