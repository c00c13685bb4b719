// Package codec encodes and decodes the canonical batch link, a
// GS1-digital-link-style URL carrying application identifier segments:
// 01 (trade item code), 10 (batch), 17 (expiry, YYMMDD) and 21 (serial).
package codec

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrMalformedLink     = errors.New("malformed link")
	ErrInvalidDate       = errors.New("invalid date")
)

var (
	tradeItemCodePattern = regexp.MustCompile(`^\d{14}$`)
	aiTradeItem          = regexp.MustCompile(`/01/(\d{13,14})(?:/|$)`)
	aiBatch              = regexp.MustCompile(`/10/([^/]+)`)
	aiExpiry             = regexp.MustCompile(`/17/(\d{6})(?:/|$)`)
	aiSerial             = regexp.MustCompile(`/21/([^/]+)`)
)

// Key is the structured batch identity carried by a link.
type Key struct {
	TradeItemCode string
	BatchID       string
	Expiry        time.Time
	Serial        string
}

// Encode builds the canonical link. Segments are always emitted in the
// order 01, 10, 17, then 21 when a serial is present.
func Encode(base string, key Key) (string, error) {
	if !tradeItemCodePattern.MatchString(key.TradeItemCode) {
		return "", fmt.Errorf("%w: trade item code must be exactly 14 digits", ErrInvalidIdentifier)
	}
	if key.BatchID == "" || strings.Contains(key.BatchID, "/") {
		return "", fmt.Errorf("%w: batch id must be a non-empty token without '/'", ErrInvalidIdentifier)
	}

	link := fmt.Sprintf("%s/01/%s/10/%s/17/%s",
		strings.TrimRight(base, "/"), key.TradeItemCode, key.BatchID, key.Expiry.Format("060102"))
	if key.Serial != "" {
		link += "/21/" + key.Serial
	}
	return link, nil
}

// Decode extracts the AI segments from a scanned link. Segments may appear
// in any order. 01 and 10 are always required; 17 only when requireExpiry
// is set (expiry-bearing flows). HasExpiry reports whether 17 was present.
func Decode(link string, requireExpiry bool) (Key, bool, error) {
	var key Key

	m := aiTradeItem.FindStringSubmatch(link)
	if m == nil {
		return key, false, fmt.Errorf("%w: trade item code (01) not found", ErrMalformedLink)
	}
	key.TradeItemCode = m[1]

	m = aiBatch.FindStringSubmatch(link)
	if m == nil {
		return key, false, fmt.Errorf("%w: batch (10) not found", ErrMalformedLink)
	}
	key.BatchID = m[1]

	hasExpiry := false
	if m = aiExpiry.FindStringSubmatch(link); m != nil {
		expiry, err := parseExpiry(m[1])
		if err != nil {
			return key, false, err
		}
		key.Expiry = expiry
		hasExpiry = true
	} else if requireExpiry {
		return key, false, fmt.Errorf("%w: expiry (17) not found", ErrMalformedLink)
	}

	if m = aiSerial.FindStringSubmatch(link); m != nil {
		key.Serial = m[1]
	}

	return key, hasExpiry, nil
}

// parseExpiry resolves a YYMMDD field. Two-digit years pivot at 49:
// 00-49 map to 2000-2049, 50-99 to 1950-1999. The pivot silently
// mis-resolves dates on the far side of the window; it is kept as-is so
// historical decodes stay stable.
func parseExpiry(yymmdd string) (time.Time, error) {
	year, _ := strconv.Atoi(yymmdd[0:2])
	month, _ := strconv.Atoi(yymmdd[2:4])
	day, _ := strconv.Atoi(yymmdd[4:6])

	if year <= 49 {
		year += 2000
	} else {
		year += 1900
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid YYMMDD date", ErrInvalidDate, yymmdd)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid YYMMDD date", ErrInvalidDate, yymmdd)
	}
	return t, nil
}

// DaysToExpiry is the whole-day distance from now to the expiry date,
// floored toward the earlier day. Negative means already expired.
func DaysToExpiry(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}
