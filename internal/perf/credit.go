package perf

import (
	"math"

	"github.com/mhamzafaisal1/chitrac/internal/session"
)

// PiecesPerHour normalizes an item standard to pieces per hour.
// Standards below 60 are pieces-per-minute and are multiplied by
// 60; values at or above 60 are already per-hour. This heuristic
// is applied uniformly with no per-item override.
func PiecesPerHour(standard float64) float64 {
	if standard <= 0 {
		return 0
	}
	if standard < 60 {
		return standard * 60
	}
	return standard
}

// TimeCreditSeconds converts valid counts into earned production
// seconds given the authoritative standard per item. Counts are
// grouped by item; items with an unknown or zero standard
// contribute zero credit, which is not an error. The sum is kept
// at full precision; round only at the outermost aggregation
// boundary.
func TimeCreditSeconds(
	counts []session.CountRecord, standards map[int]float64,
) float64 {
	perItem := make(map[int]int)
	for _, c := range counts {
		perItem[c.ItemID]++
	}

	credit := 0.0
	for itemID, n := range perItem {
		pph := PiecesPerHour(standards[itemID])
		if pph <= 0 {
			continue
		}
		credit += float64(n) / (pph / 3600.0)
	}
	return credit
}

// Round2 rounds to 2 decimal places. Apply only to final
// aggregates so intermediate sums do not compound rounding error.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
