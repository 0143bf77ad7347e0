package engine

import (
	"fmt"
	"time"
)

// BuildSeries normalizes a feed ordered by ValidFrom into an indexed series of
// contiguous slots sharing one duration.
func BuildSeries(rates []Rate) ([]PriceSlot, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: empty price series", ErrInvalidInput)
	}

	duration := rates[0].ValidTo.Sub(rates[0].ValidFrom)
	if duration <= 0 {
		return nil, fmt.Errorf("%w: slot 0 has non-positive duration %s", ErrInvalidInput, duration)
	}

	slots := make([]PriceSlot, 0, len(rates))
	for i, r := range rates {
		if i > 0 {
			prev := rates[i-1]
			if !r.ValidFrom.After(prev.ValidFrom) {
				return nil, fmt.Errorf("%w: slot %d starts at %s, not after %s",
					ErrInvalidInput, i, r.ValidFrom.Format(time.RFC3339), prev.ValidFrom.Format(time.RFC3339))
			}
			if !r.ValidFrom.Equal(prev.ValidTo) {
				return nil, fmt.Errorf("%w: gap or overlap before slot %d (%s != %s)",
					ErrInvalidInput, i, r.ValidFrom.Format(time.RFC3339), prev.ValidTo.Format(time.RFC3339))
			}
		}
		if d := r.ValidTo.Sub(r.ValidFrom); d != duration {
			return nil, fmt.Errorf("%w: slot %d lasts %s, series uses %s", ErrInvalidInput, i, d, duration)
		}

		slots = append(slots, PriceSlot{
			Index:       i,
			Start:       r.ValidFrom,
			End:         r.ValidTo,
			PencePerKWh: r.ValueIncVAT,
		})
	}

	return slots, nil
}

// isContiguous verifies that each slot starts where the previous one ended
func isContiguous(slots []PriceSlot) bool {
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.Equal(slots[i-1].End) {
			return false
		}
	}
	return true
}

// slotDuration returns the shared duration of a series built by BuildSeries
func slotDuration(slots []PriceSlot) time.Duration {
	if len(slots) == 0 {
		return 0
	}
	return slots[0].End.Sub(slots[0].Start)
}
