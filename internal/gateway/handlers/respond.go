// Package handlers is the HTTP surface. Handlers bind requests, call the
// service layer, and render the shared response envelope; domain errors map
// to status codes in one place.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/codec"
	"freshtrace-system/internal/ledger"
	"freshtrace-system/internal/registry"
	"freshtrace-system/internal/storage"
)

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

// failErr maps service errors onto HTTP status codes.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, registry.ErrBatchNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateBatch),
		errors.Is(err, registry.ErrIllegalTransition),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrReservationExceeded),
		errors.Is(err, ledger.ErrDonationNotPending):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, codec.ErrInvalidIdentifier),
		errors.Is(err, codec.ErrMalformedLink),
		errors.Is(err, codec.ErrInvalidDate),
		errors.Is(err, registry.ErrInvalidBatch),
		errors.Is(err, ledger.ErrInvalidQuantity):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// identity pulls the caller installed by the JWT middleware.
func identity(c *gin.Context) (auth.Identity, bool) {
	ident, ok := auth.FromContext(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "Missing caller identity")
	}
	return ident, ok
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}
