package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/decision"
	"freshtrace-system/internal/ledger"
)

type LedgerHandler struct {
	ledger *ledger.Service
	redis  *redis.Client
}

func NewLedgerHandler(svc *ledger.Service, redisClient *redis.Client) *LedgerHandler {
	return &LedgerHandler{ledger: svc, redis: redisClient}
}

type receiveShipmentRequest struct {
	Link     string `json:"link" binding:"required"`
	Quantity int32  `json:"quantity" binding:"required"`
}

func (h *LedgerHandler) ReceiveShipment(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req receiveShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rec, batch, err := h.ledger.ReceiveShipment(c.Request.Context(), ident, req.Link, req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	InvalidateInsightsCaches(c.Request.Context(), h.redis, ident.UserID, batch.ID)
	success(c, gin.H{"inventory": rec, "batch": batch})
}

type recordSaleRequest struct {
	BatchID    int64   `json:"batch_id" binding:"required"`
	Quantity   int32   `json:"quantity" binding:"required"`
	UnitPrice  *string `json:"unit_price"`
	WeatherTag *string `json:"weather_tag"`
}

func (h *LedgerHandler) RecordSale(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req recordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var unitPrice *decimal.Decimal
	if req.UnitPrice != nil {
		p, err := decimal.NewFromString(*req.UnitPrice)
		if err != nil {
			fail(c, http.StatusBadRequest, "unit_price must be a decimal string")
			return
		}
		unitPrice = &p
	}

	sale, err := h.ledger.RecordSale(c.Request.Context(), ident, req.BatchID, req.Quantity, unitPrice, req.WeatherTag)
	if err != nil {
		failErr(c, err)
		return
	}
	InvalidateInsightsCaches(c.Request.Context(), h.redis, ident.UserID, req.BatchID)
	created(c, sale)
}

type quickScanRequest struct {
	Link string `json:"link" binding:"required"`
}

// QuickScan sells one unit straight from a scanned link.
func (h *LedgerHandler) QuickScan(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req quickScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sale, err := h.ledger.QuickScanSale(c.Request.Context(), ident, req.Link)
	if err != nil {
		failErr(c, err)
		return
	}
	InvalidateInsightsCaches(c.Request.Context(), h.redis, ident.UserID, sale.BatchID)
	created(c, sale)
}

// Inventory lists the caller's stock positions with the expiry verdict per
// batch; the frontend drives its donation prompts off these fields.
func (h *LedgerHandler) Inventory(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	recs, err := h.ledger.ListInventory(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}

	now := time.Now().UTC()
	items := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		item := gin.H{
			"record":    rec,
			"available": rec.QuantityOnHand - rec.QuantityReserved,
		}
		if rec.Batch != nil {
			days := codec.DaysToExpiry(rec.Batch.ExpiryDate, now)
			class := decision.ClassifyExpiry(days)
			item["days_to_expiry"] = days
			item["expiry_class"] = class
			item["donation_suggested"] = decision.DonationOpportunity(class)
		}
		items = append(items, item)
	}
	success(c, items)
}

type createDonationRequest struct {
	BatchID  int64 `json:"batch_id" binding:"required"`
	NgoID    int64 `json:"ngo_id" binding:"required"`
	Quantity int32 `json:"quantity" binding:"required"`
}

func (h *LedgerHandler) CreateDonation(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req createDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	donation, err := h.ledger.CreateDonationReservation(c.Request.Context(), ident, req.BatchID, req.NgoID, req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	InvalidateInsightsCaches(c.Request.Context(), h.redis, ident.UserID, req.BatchID)
	created(c, donation)
}

type confirmDonationRequest struct {
	Quantity int32 `json:"quantity" binding:"required"`
}

func (h *LedgerHandler) ConfirmDonation(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	donationID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req confirmDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	donation, err := h.ledger.ConfirmDonation(c.Request.Context(), ident, donationID, req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	// The reservation belonged to the retailer; refresh their insights.
	InvalidateInsightsCaches(c.Request.Context(), h.redis, donation.RetailerID, donation.BatchID)
	success(c, donation)
}

func (h *LedgerHandler) Donations(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	donations, err := h.ledger.ListDonations(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, donations)
}

func (h *LedgerHandler) NGOs(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	ngos, err := h.ledger.ListNGOs(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]userResponse, 0, len(ngos))
	for i := range ngos {
		out = append(out, toUserResponse(&ngos[i]))
	}
	success(c, out)
}

func (h *LedgerHandler) WriteOff(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	batchID, ok := parseID(c, "batchID")
	if !ok {
		return
	}

	disposed, err := h.ledger.WriteOff(c.Request.Context(), ident, batchID)
	if err != nil {
		failErr(c, err)
		return
	}
	InvalidateInsightsCaches(c.Request.Context(), h.redis, ident.UserID, batchID)
	success(c, gin.H{"disposed": disposed})
}
