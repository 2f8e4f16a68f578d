package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"planforge/api/internal/forms"
)

// The formatting helpers are total: malformed input renders as an empty
// string. A missing date or number must never abort an otherwise-complete
// document.

// toNumber coerces numeric-or-numeric-string input, stripping thousands
// commas from strings.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func toDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case string:
		if parsed := forms.ParseTime(d); parsed != nil {
			return *parsed, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// FormatDate renders a date per the selector: "month-year" gives
// "December 2025", "day-month-year-slashed" gives "19/12/2025", anything
// else gives the default long form "19 December 2025". The legacy
// template token spellings are accepted as aliases.
func FormatDate(v any, selector string) string {
	d, ok := toDate(v)
	if !ok {
		return ""
	}
	switch strings.TrimSpace(selector) {
	case "month-year", "MMMM yyyy":
		return d.Format("January 2006")
	case "day-month-year-slashed", "dd/MM/yyyy":
		return d.Format("02/01/2006")
	default:
		return d.Format("02 January 2006")
	}
}

// DashDate renders a date as zero-padded DD-MM-YYYY.
func DashDate(v any) string {
	d, ok := toDate(v)
	if !ok {
		return ""
	}
	return d.Format("02-01-2006")
}

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
}

// FormatCurrency renders a numeric value with thousands grouping at fixed
// two decimal places, prefixed by the currency symbol. GBP is the default.
func FormatCurrency(v any, code string) string {
	n, ok := toNumber(v)
	if !ok {
		return ""
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "GBP"
	}
	amount := humanize.FormatFloat("#,###.##", n)
	if sym, known := currencySymbols[code]; known {
		return sym + amount
	}
	return code + " " + amount
}

// FormatPercentage renders a 0-1 ratio as value*100 with the requested
// decimal places (clamped to [0,6], default 0) and a "%" suffix.
func FormatPercentage(v any, decimals any) string {
	n, ok := toNumber(v)
	if !ok {
		return ""
	}
	places := 0
	if d, ok := toNumber(decimals); ok {
		places = int(d)
	}
	if places < 0 {
		places = 0
	}
	if places > 6 {
		places = 6
	}
	return fmt.Sprintf("%.*f%%", places, n*100)
}

// RiskClass maps the single-letter risk codes L/M/H to the style classes
// low/medium/high; anything else maps to no class at all.
func RiskClass(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L":
		return "low"
	case "M":
		return "medium"
	case "H":
		return "high"
	default:
		return ""
	}
}
