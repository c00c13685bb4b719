package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/decision"
	"freshtrace-system/internal/registry"
)

type BatchHandler struct {
	registry *registry.Service
}

func NewBatchHandler(reg *registry.Service) *BatchHandler {
	return &BatchHandler{registry: reg}
}

type createBatchRequest struct {
	TradeItemCode   string  `json:"trade_item_code" binding:"required"`
	BatchID         string  `json:"batch_id" binding:"required"`
	ProductName     string  `json:"product_name" binding:"required"`
	ManufactureDate string  `json:"manufacture_date" binding:"required"`
	ExpiryDate      string  `json:"expiry_date" binding:"required"`
	Quantity        int32   `json:"quantity" binding:"required"`
	UnitPrice       *string `json:"unit_price"`
	Serial          string  `json:"serial"`
}

const dateLayout = "2006-01-02"

func (h *BatchHandler) CreateBatch(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	mfgDate, err := time.Parse(dateLayout, req.ManufactureDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "manufacture_date must be YYYY-MM-DD")
		return
	}
	expDate, err := time.Parse(dateLayout, req.ExpiryDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		return
	}
	if req.UnitPrice != nil {
		if _, err := decimal.NewFromString(*req.UnitPrice); err != nil {
			fail(c, http.StatusBadRequest, "unit_price must be a decimal string")
			return
		}
	}

	batch, err := h.registry.CreateBatch(c.Request.Context(), ident, registry.CreateBatchInput{
		TradeItemCode:   req.TradeItemCode,
		BatchID:         req.BatchID,
		ProductName:     req.ProductName,
		ManufactureDate: mfgDate,
		ExpiryDate:      expDate,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		Serial:          req.Serial,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, batch)
}

func (h *BatchHandler) ListBatches(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	batches, err := h.registry.ListBatches(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, batches)
}

func (h *BatchHandler) Stats(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	stats, err := h.registry.Stats(c.Request.Context(), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, stats)
}

// Resolve previews a scanned link: batch details plus the expiry verdict.
// NGOs and retailers use it to inspect stock before acting on it.
func (h *BatchHandler) Resolve(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		fail(c, http.StatusBadRequest, "link query parameter required")
		return
	}

	batch, key, err := h.registry.LookupByLink(c.Request.Context(), link)
	if err != nil {
		failErr(c, err)
		return
	}

	days := codec.DaysToExpiry(batch.ExpiryDate, time.Now().UTC())
	class := decision.ClassifyExpiry(days)
	success(c, gin.H{
		"batch":              batch,
		"serial":             key.Serial,
		"days_to_expiry":     days,
		"expiry_class":       class,
		"donation_suggested": decision.DonationOpportunity(class),
	})
}
