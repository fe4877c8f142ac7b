package sheetsync

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Field parsing is parse-or-omit by policy: a malformed value drops that one
// field, never the row. Callers must treat ok=false as "leave the field
// unset", not as an error.

// ParseDecimal parses a locale-tolerant numeric string: spaces stripped,
// comma accepted as the decimal separator (with dots as thousands
// separators).
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if v == "" {
		return decimal.Zero, false
	}
	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseInt applies the same tolerant numeric parse and truncates to an
// integer.
func ParseInt(raw string) (int, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

// stopSaleTokens are the accepted truthy spellings, including the Turkish
// forms agency sheets use. Anything else reads as false.
var stopSaleTokens = map[string]bool{
	"true":   true,
	"1":      true,
	"yes":    true,
	"y":      true,
	"x":      true,
	"evet":   true,
	"kapali": true,
	"kapalı": true,
	"closed": true,
	"stop":   true,
}

// ParseStopSale reports the stop-sale flag for a cell value. ok is false when
// the cell is empty (field absent).
func ParseStopSale(raw string) (value bool, ok bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return false, false
	}
	return stopSaleTokens[v], true
}
