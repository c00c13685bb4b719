package decision

import "fmt"

const (
	AlertExpiry     = "expiry"
	AlertOutOfStock = "out_of_stock"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one actionable condition on a retailer's stock position.
type Alert struct {
	Type              string `json:"type"`
	Severity          string `json:"severity"`
	BatchID           int64  `json:"batch_id"`
	ProductName       string `json:"product_name"`
	DaysToExpiry      int    `json:"days_to_expiry"`
	OnHand            int32  `json:"on_hand"`
	DonationSuggested bool   `json:"donation_suggested"`
	Message           string `json:"message"`
}

// BuildAlerts scans stock positions for expiry and stockout conditions.
// Positions with no stock and no expiry pressure produce out-of-stock
// alerts only; expired and critical stock suggests donation.
func BuildAlerts(snaps []StockSnapshot) []Alert {
	var alerts []Alert
	for _, snap := range snaps {
		if snap.OnHand == 0 {
			alerts = append(alerts, Alert{
				Type:        AlertOutOfStock,
				Severity:    SeverityWarning,
				BatchID:     snap.BatchID,
				ProductName: snap.ProductName,
				Message:     fmt.Sprintf("%s is out of stock", snap.ProductName),
			})
			continue
		}

		class := ClassifyExpiry(snap.DaysToExpiry)
		if class == ExpiryGood {
			continue
		}
		severity := SeverityWarning
		if class == ExpiryCritical || class == ExpiryExpired {
			severity = SeverityCritical
		}
		msg := fmt.Sprintf("%s expires in %d days (%d units on hand)", snap.ProductName, snap.DaysToExpiry, snap.OnHand)
		if class == ExpiryExpired {
			msg = fmt.Sprintf("%s expired %d days ago (%d units on hand)", snap.ProductName, -snap.DaysToExpiry, snap.OnHand)
		}
		alerts = append(alerts, Alert{
			Type:              AlertExpiry,
			Severity:          severity,
			BatchID:           snap.BatchID,
			ProductName:       snap.ProductName,
			DaysToExpiry:      snap.DaysToExpiry,
			OnHand:            snap.OnHand,
			DonationSuggested: DonationOpportunity(class),
			Message:           msg,
		})
	}
	return alerts
}
