package engine

import (
	"fmt"
	"math"
	"sort"
)

// coverOptimal chooses the cheapest set of paid activations covering every
// comfort slot that free heat leaves cold. Each activation keeps its full
// retention window and must sit within the preheat window of the first comfort
// slot it serves, so it is never worse than coverGreedy and can share one
// activation across neighbouring comfort slots.
func coverOptimal(slots []PriceSlot, on []bool, comfort ComfortSlots, cfg Config) error {
	points := make([]int, 0, len(comfort))
	for _, c := range comfort {
		if !warmBy(on, c, cfg.RetainSlots) {
			points = append(points, c)
		}
	}
	if len(points) == 0 {
		return nil
	}

	type step struct{ slot, prev int }

	// cost[k] is the cheapest way to warm points[:k]
	cost := make([]float64, len(points)+1)
	choice := make([]step, len(points)+1)
	for k := 1; k <= len(points); k++ {
		last := points[k-1]
		cost[k] = math.Inf(1)
		choice[k] = step{slot: -1}

		for i := max(0, last-cfg.RetainSlots+1); i <= last; i++ {
			before := sort.SearchInts(points, i)
			if i < points[before]-cfg.PreheatSlots {
				continue
			}
			candidate := cost[before] + slots[i].PencePerKWh
			if candidate <= cost[k] {
				cost[k] = candidate
				choice[k] = step{slot: i, prev: before}
			}
		}

		if choice[k].slot == -1 {
			return fmt.Errorf("%w: slot %d", ErrUnsatisfiableWindow, last)
		}
	}

	for k := len(points); k > 0; k = choice[k].prev {
		on[choice[k].slot] = true
	}
	return nil
}

func warmBy(on []bool, c, retain int) bool {
	for j := max(0, c-retain+1); j <= c; j++ {
		if on[j] {
			return true
		}
	}
	return false
}
