package wagers

// Payout tables keyed by effective pick count (legs minus voids). A key
// absent from its table pays multiplier 0. The numbers are product-owned
// and must not drift.

var perfectMultipliers = map[int]float64{
	2: 3.0,
	3: 5.0,
	4: 10.0,
	5: 20.0,
	6: 37.5,
}

var flexMultipliers = map[int]map[int]float64{
	3: {3: 2.25, 2: 1.25},
	4: {4: 5.0, 3: 1.5},
	5: {5: 10.0, 4: 2.0, 3: 0.4},
	6: {6: 25.0, 5: 2.0, 4: 0.4},
}

// PerfectMultiplier returns the all-or-nothing multiplier for a pick count,
// or 0 when the count is not tabulated.
func PerfectMultiplier(picks int) float64 {
	return perfectMultipliers[picks]
}

// FlexMultiplier returns the partial-credit multiplier for a pick count and
// hit count, or 0 when the pair is not tabulated.
func FlexMultiplier(picks, hits int) float64 {
	return flexMultipliers[picks][hits]
}
