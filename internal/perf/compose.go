package perf

import "math"

// Status bands for efficiency and OEE displays.
const (
	BandHigh   = "high"
	BandMedium = "medium"
	BandLow    = "low"
)

// Performance holds the composed ratios for one timeframe. Ratios
// are full precision; use Percent for display rounding.
type Performance struct {
	Availability float64 `json:"availability"`
	Throughput   float64 `json:"throughput"`
	Efficiency   float64 `json:"efficiency"`
	OEE          float64 `json:"oee"`
}

// Compose combines runtime, earned credit, and count totals into
// availability/throughput/efficiency/OEE. Every denominator is
// guarded: a zero denominator yields 0, never NaN.
func Compose(
	runtimeSec, creditSec float64,
	validCount, misfeedCount int,
	windowSec float64,
) Performance {
	var p Performance
	if runtimeSec > 0 {
		p.Efficiency = creditSec / runtimeSec
	}
	if windowSec > 0 {
		p.Availability = runtimeSec / windowSec
	}
	if total := validCount + misfeedCount; total > 0 {
		p.Throughput = float64(validCount) / float64(total)
	}
	p.OEE = p.Availability * p.Efficiency * p.Throughput
	return p
}

// Band classifies a ratio into the display status band.
func Band(ratio float64) string {
	switch {
	case ratio >= 0.90:
		return BandHigh
	case ratio >= 0.70:
		return BandMedium
	default:
		return BandLow
	}
}

// Percent rounds a ratio to a whole display percentage.
func Percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}
