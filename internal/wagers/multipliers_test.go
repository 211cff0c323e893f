package wagers

import "testing"

func TestPerfectMultiplierTable(t *testing.T) {
	want := map[int]float64{2: 3.0, 3: 5.0, 4: 10.0, 5: 20.0, 6: 37.5}
	for picks, m := range want {
		if got := PerfectMultiplier(picks); got != m {
			t.Errorf("PerfectMultiplier(%d) = %v, want %v", picks, got, m)
		}
	}
	for _, picks := range []int{0, 1, 7, 10} {
		if got := PerfectMultiplier(picks); got != 0 {
			t.Errorf("PerfectMultiplier(%d) = %v, want 0", picks, got)
		}
	}
}

func TestFlexMultiplierTable(t *testing.T) {
	type key struct{ picks, hits int }
	want := map[key]float64{
		{3, 3}: 2.25, {3, 2}: 1.25,
		{4, 4}: 5.0, {4, 3}: 1.5,
		{5, 5}: 10.0, {5, 4}: 2.0, {5, 3}: 0.4,
		{6, 6}: 25.0, {6, 5}: 2.0, {6, 4}: 0.4,
	}
	for k, m := range want {
		if got := FlexMultiplier(k.picks, k.hits); got != m {
			t.Errorf("FlexMultiplier(%d, %d) = %v, want %v", k.picks, k.hits, got, m)
		}
	}

	// Anything off the table pays 0
	for _, k := range []key{{2, 2}, {3, 1}, {4, 2}, {5, 2}, {6, 3}, {7, 7}, {0, 0}} {
		if got := FlexMultiplier(k.picks, k.hits); got != 0 {
			t.Errorf("FlexMultiplier(%d, %d) = %v, want 0", k.picks, k.hits, got)
		}
	}
}
