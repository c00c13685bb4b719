// Package decision holds the pure rules the system acts on: expiry
// classification, reorder urgency, demand projection, and donation
// valuation. Nothing here touches storage or the network; callers gather
// the inputs and persist the outcomes.
package decision

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryClass buckets remaining shelf life.
type ExpiryClass string

const (
	ExpiryGood     ExpiryClass = "GOOD"
	ExpiryWarning  ExpiryClass = "WARNING"
	ExpiryCritical ExpiryClass = "CRITICAL"
	ExpiryExpired  ExpiryClass = "EXPIRED"
)

// ClassifyExpiry buckets a days-to-expiry figure. Negative days mean the
// batch is already past its date.
func ClassifyExpiry(days int) ExpiryClass {
	switch {
	case days < 0:
		return ExpiryExpired
	case days <= 2:
		return ExpiryCritical
	case days <= 7:
		return ExpiryWarning
	default:
		return ExpiryGood
	}
}

// DonationOpportunity reports whether stock in this class should be offered
// for donation instead of regular sale.
func DonationOpportunity(class ExpiryClass) bool {
	return class == ExpiryCritical || class == ExpiryExpired
}

// Urgency ranks reorder suggestions.
type Urgency string

const (
	UrgencyOutOfStock Urgency = "OUT_OF_STOCK"
	UrgencyCritical   Urgency = "CRITICAL"
	UrgencyHigh       Urgency = "HIGH"
	UrgencyNormal     Urgency = "NORMAL"
)

var urgencyRank = map[Urgency]int{
	UrgencyOutOfStock: 0,
	UrgencyCritical:   1,
	UrgencyHigh:       2,
	UrgencyNormal:     3,
}

// daysOfStockSentinel stands in for "effectively unlimited" when there is
// stock but no recent sales to divide by.
const daysOfStockSentinel = 999

// TargetCoverageDays is the stock horizon reorders aim to cover.
const TargetCoverageDays = 14

// StockSnapshot is the per-batch input to reorder analysis.
type StockSnapshot struct {
	BatchID       int64
	ProductName   string
	OnHand        int32
	DaysToExpiry  int
	SoldLast7Days int64
}

// ReorderSuggestion is one actionable restock recommendation.
type ReorderSuggestion struct {
	BatchID             int64   `json:"batch_id"`
	ProductName         string  `json:"product_name"`
	OnHand              int32   `json:"on_hand"`
	DailyVelocity       float64 `json:"daily_velocity"`
	DaysOfStock         float64 `json:"days_of_stock"`
	Urgency             Urgency `json:"urgency"`
	RecommendedQuantity int32   `json:"recommended_quantity"`
}

// SuggestReorder analyzes one batch position. It returns nil when the
// position needs no action (recommended quantity zero at normal urgency).
func SuggestReorder(snap StockSnapshot) *ReorderSuggestion {
	velocity := float64(snap.SoldLast7Days) / 7.0

	daysOfStock := float64(daysOfStockSentinel)
	if velocity > 0 {
		daysOfStock = float64(snap.OnHand) / velocity
	}

	var urgency Urgency
	switch {
	case snap.OnHand == 0:
		urgency = UrgencyOutOfStock
	case daysOfStock < 3 && snap.DaysToExpiry > 7:
		urgency = UrgencyCritical
	case daysOfStock < 7 && snap.DaysToExpiry > 14:
		urgency = UrgencyHigh
	default:
		urgency = UrgencyNormal
	}

	recommended := int32(math.Round(velocity*TargetCoverageDays)) - snap.OnHand
	if recommended < 0 {
		recommended = 0
	}

	if recommended == 0 && urgency == UrgencyNormal {
		return nil
	}
	return &ReorderSuggestion{
		BatchID:             snap.BatchID,
		ProductName:         snap.ProductName,
		OnHand:              snap.OnHand,
		DailyVelocity:       velocity,
		DaysOfStock:         daysOfStock,
		Urgency:             urgency,
		RecommendedQuantity: recommended,
	}
}

// SortSuggestions orders by urgency, most urgent first, preserving input
// order within an urgency level.
func SortSuggestions(suggestions []ReorderSuggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return urgencyRank[suggestions[i].Urgency] < urgencyRank[suggestions[j].Urgency]
	})
}

// demandSafetyBuffer is added on top of projected demand when suggesting a
// top-up quantity.
const demandSafetyBuffer = 50

const weekendFactor = 1.3

// DayDemand is one projected day.
type DayDemand struct {
	Date     time.Time `json:"date"`
	Expected int       `json:"expected_units"`
}

// Projection is a short-horizon demand forecast for one batch position.
type Projection struct {
	Days               []DayDemand `json:"days"`
	TotalDemand        int         `json:"total_demand"`
	StockoutDay        *time.Time  `json:"stockout_day,omitempty"`
	ReorderRecommended bool        `json:"reorder_recommended"`
	SuggestedTopUp     int         `json:"suggested_top_up"`
}

// ProjectDemand forecasts the next horizonDays of demand from observed
// sales. totalSold is the quantity sold across daysWithData distinct days;
// weekends are scaled up and each day floors to whole units. StockoutDay is
// the first projected day on which cumulative demand exhausts stock.
func ProjectDemand(totalSold int64, daysWithData int, stock int32, from time.Time, horizonDays int) Projection {
	var avgDaily float64
	if daysWithData > 0 {
		avgDaily = float64(totalSold) / float64(daysWithData)
	}

	proj := Projection{Days: make([]DayDemand, 0, horizonDays)}
	remaining := int(stock)
	for i := 1; i <= horizonDays; i++ {
		day := from.AddDate(0, 0, i)
		expected := avgDaily
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			expected *= weekendFactor
		}
		units := int(math.Floor(expected))
		proj.Days = append(proj.Days, DayDemand{Date: day, Expected: units})
		proj.TotalDemand += units

		remaining -= units
		if remaining <= 0 && proj.StockoutDay == nil {
			d := day
			proj.StockoutDay = &d
		}
	}

	// Top-ups are only suggested when stock does not cover the horizon.
	if int(stock) < proj.TotalDemand {
		proj.ReorderRecommended = true
		proj.SuggestedTopUp = proj.TotalDemand - int(stock) + demandSafetyBuffer
	}
	return proj
}

// rewardRate converts donated value into reward units.
var rewardRate = decimal.RequireFromString("0.00001")

// Valuation is the money outcome of a confirmed donation.
type Valuation struct {
	UnitValue    decimal.Decimal
	TotalValue   decimal.Decimal
	RewardAmount decimal.Decimal
}

// ResolveUnitValue picks the unit value for a donation: the batch's stored
// list price when present, then the market quote, then the keyword
// estimate. fallback is evaluated lazily by the caller passing it in.
func ResolveUnitValue(listPrice *decimal.Decimal, marketPrice *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if listPrice != nil && listPrice.IsPositive() {
		return *listPrice
	}
	if marketPrice != nil && marketPrice.IsPositive() {
		return *marketPrice
	}
	return fallback
}

// ValueDonation prices a confirmed donation and derives its reward.
func ValueDonation(unitValue decimal.Decimal, quantity int32) Valuation {
	total := unitValue.Mul(decimal.NewFromInt32(quantity))
	return Valuation{
		UnitValue:    unitValue,
		TotalValue:   total,
		RewardAmount: total.Mul(rewardRate),
	}
}
