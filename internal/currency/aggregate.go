// Package currency sums heterogeneous-currency amounts into a reporting total.
//
// Amounts in a foreign currency without a stored exchange rate are excluded
// from the numeric total but always counted and surfaced: a partial total must
// never be silently presented as complete.
package currency

import "strings"

// Entry is one monetary amount feeding an aggregation.
// RateToPrimary is the multiplier converting Amount into the primary currency;
// it is ignored for amounts already in the primary currency.
type Entry struct {
	Amount        float64
	Currency      string
	RateToPrimary *float64
}

// Breakdown summarizes all entries seen for one currency.
type Breakdown struct {
	Sum             float64 `json:"sum"`
	Count           int     `json:"count"`
	AllConvertible  bool    `json:"all_convertible"`
	ConvertedToBase float64 `json:"converted_to_base"`
}

// Result is the outcome of one aggregation.
type Result struct {
	PrimaryCurrency         string               `json:"primary_currency"`
	Total                   float64              `json:"total"`
	ByCurrency              map[string]Breakdown `json:"by_currency"`
	ConvertedCount          int                  `json:"converted_count"`
	ExcludedCount           int                  `json:"excluded_count"`
	HasMultipleCurrencies   bool                 `json:"has_multiple_currencies"`
	HasUnconvertibleAmounts bool                 `json:"has_unconvertible_amounts"`
}

// Aggregate sums entries into the primary currency.
// Pure function: no stored state, no ambient rate lookups.
func Aggregate(entries []Entry, primary string) Result {
	primary = normalize(primary)
	result := Result{
		PrimaryCurrency: primary,
		ByCurrency:      make(map[string]Breakdown),
	}

	for _, entry := range entries {
		code := normalize(entry.Currency)
		if code == "" {
			code = primary
		}

		breakdown := result.ByCurrency[code]
		if breakdown.Count == 0 {
			breakdown.AllConvertible = true
		}
		breakdown.Sum += entry.Amount
		breakdown.Count++

		switch {
		case code == primary:
			result.Total += entry.Amount
			breakdown.ConvertedToBase += entry.Amount
			result.ConvertedCount++
		case entry.RateToPrimary != nil:
			converted := entry.Amount * (*entry.RateToPrimary)
			result.Total += converted
			breakdown.ConvertedToBase += converted
			result.ConvertedCount++
		default:
			result.ExcludedCount++
			breakdown.AllConvertible = false
			result.HasUnconvertibleAmounts = true
		}

		result.ByCurrency[code] = breakdown
	}

	result.HasMultipleCurrencies = len(result.ByCurrency) > 1
	return result
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
