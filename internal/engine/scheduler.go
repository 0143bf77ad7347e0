package engine

import (
	"fmt"
	"slices"
	"time"
)

// Plan is an immutable activation plan parallel to its price series
type Plan struct {
	slots    []PriceSlot
	on       []bool
	comfort  ComfortSlots
	retain   int
	duration time.Duration
}

// Len returns the number of slots in the plan
func (p *Plan) Len() int { return len(p.slots) }

// IsOn reports whether slot i is an activation
func (p *Plan) IsOn(i int) bool { return p.on[i] }

// On returns a copy of the activation flags
func (p *Plan) On() []bool { return slices.Clone(p.on) }

// PriceSlots returns a copy of the underlying price series
func (p *Plan) PriceSlots() []PriceSlot { return slices.Clone(p.slots) }

// Comfort returns a copy of the comfort slots the plan was built for
func (p *Plan) Comfort() ComfortSlots { return slices.Clone(p.comfort) }

// SlotDuration is the shared duration of every slot
func (p *Plan) SlotDuration() time.Duration { return p.duration }

// Warm reports whether slot c is covered by an activation j <= c with c < j+retain
func (p *Plan) Warm(c int) bool { return warmBy(p.on, c, p.retain) }

// Slots returns the per-slot view of the plan. Cost is price * powerKW * hours / 100,
// in pounds when prices are pence per kWh.
func (p *Plan) Slots(powerKW float64) []SlotView {
	hours := p.duration.Hours()
	views := make([]SlotView, len(p.slots))
	for i, s := range p.slots {
		views[i] = SlotView{
			Time:  s.Start,
			On:    p.on[i],
			Warm:  p.Warm(i),
			Price: s.PencePerKWh,
		}
		if p.on[i] {
			views[i].Cost = s.PencePerKWh * powerKW * hours / 100.0
		}
	}
	return views
}

// Schedule computes an activation plan: every negative-price slot is on, every
// comfort slot is warm, and each paid activation is the cheapest slot that
// both lies in the preheat window and still reaches the comfort slot.
func Schedule(slots []PriceSlot, comfort ComfortSlots, cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSeries(slots); err != nil {
		return nil, err
	}

	comfort = NormalizeComfort(comfort)
	if len(comfort) > 0 && (comfort[0] < 0 || comfort[len(comfort)-1] >= len(slots)) {
		return nil, fmt.Errorf("%w: comfort slots must lie within [0, %d)", ErrInvalidInput, len(slots))
	}

	on := make([]bool, len(slots))
	for i, s := range slots {
		if s.PencePerKWh < 0 {
			on[i] = true
		}
	}

	var err error
	switch cfg.Strategy {
	case StrategyOptimal:
		err = coverOptimal(slots, on, comfort, cfg)
	default:
		err = coverGreedy(slots, on, comfort, cfg)
	}
	if err != nil {
		return nil, err
	}

	return &Plan{
		slots:    slices.Clone(slots),
		on:       on,
		comfort:  comfort,
		retain:   cfg.RetainSlots,
		duration: slotDuration(slots),
	}, nil
}

// coverGreedy walks comfort slots in ascending order behind a warmUntil pointer.
// Activations already present (free heat) advance the pointer the same way a
// scheduled one does.
func coverGreedy(slots []PriceSlot, on []bool, comfort ComfortSlots, cfg Config) error {
	warmUntil := -1
	next := 0
	for _, c := range comfort {
		for ; next <= c; next++ {
			if on[next] {
				warmUntil = max(warmUntil, next+cfg.RetainSlots-1)
			}
		}
		if c <= warmUntil {
			continue
		}

		best, ok := cheapestReaching(slots, c, cfg)
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnsatisfiableWindow, c)
		}
		on[best] = true
		warmUntil = max(warmUntil, best+cfg.RetainSlots-1)
	}
	return nil
}

// candidateRange bounds the slots that may serve comfort slot c: inside the
// preheat window and close enough for retention to carry through to c.
func candidateRange(c int, cfg Config) (lo, hi int) {
	return max(0, c-cfg.PreheatSlots, c-cfg.RetainSlots+1), c
}

// cheapestReaching picks the minimum price candidate for c; on ties the latest wins
func cheapestReaching(slots []PriceSlot, c int, cfg Config) (int, bool) {
	lo, hi := candidateRange(c, cfg)
	best := -1
	for i := lo; i <= hi; i++ {
		if best == -1 || slots[i].PencePerKWh <= slots[best].PencePerKWh {
			best = i
		}
	}
	return best, best != -1
}

func validateSeries(slots []PriceSlot) error {
	if len(slots) == 0 {
		return fmt.Errorf("%w: empty price series", ErrInvalidInput)
	}
	duration := slotDuration(slots)
	for i, s := range slots {
		if s.Index != i {
			return fmt.Errorf("%w: slot at position %d has index %d", ErrInvalidInput, i, s.Index)
		}
		if s.End.Sub(s.Start) != duration || duration <= 0 {
			return fmt.Errorf("%w: slot %d has inconsistent duration", ErrInvalidInput, i)
		}
	}
	if !isContiguous(slots) {
		return fmt.Errorf("%w: slots are not contiguous", ErrInvalidInput)
	}
	return nil
}
