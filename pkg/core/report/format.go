package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
)

// FormatAmount renders v in unit. ISO currency units use the currency's
// grapheme and separators; other units (shares, USD/shares, pure) fall
// back to plain formatting.
func FormatAmount(v float64, unit string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	code := strings.ToUpper(strings.TrimSpace(unit))
	if cur := money.GetCurrency(code); code != "" && cur != nil {
		scale := math.Pow10(cur.Fraction)
		return money.New(int64(math.Round(v*scale)), code).Display()
	}
	s := fmt.Sprintf("%.2f", v)
	if unit != "" {
		s += " " + unit
	}
	return s
}

// FormatPercent renders a ratio such as 0.253 as "25.3%".
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

// isRatio reports whether a variable is a ratio rather than an amount.
func isRatio(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "margin") || strings.Contains(n, "ratio")
}
