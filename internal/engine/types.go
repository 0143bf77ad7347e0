package engine

import (
	"fmt"
	"time"
)

// Rate is a single unit rate as published by the price feed, in pence per kWh.
// Values may be negative.
type Rate struct {
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
	ValueIncVAT float64   `json:"value_inc_vat"`
	ValueExcVAT float64   `json:"value_exc_vat"`
}

// PriceSlot represents one fixed-duration pricing period of a normalized series
type PriceSlot struct {
	Index       int       `json:"index"`
	Start       time.Time `json:"valid_from"`
	End         time.Time `json:"valid_to"`
	PencePerKWh float64   `json:"price"`
}

// TimeWindow represents a wall-clock range with optional day-of-week filtering
type TimeWindow struct {
	Start      string `json:"start"`                  // HH:mm format
	End        string `json:"end"`                    // HH:mm format, 24:00 allowed
	DaysOfWeek []int  `json:"days_of_week,omitempty"` // 1=Monday, 7=Sunday; empty = all days
}

// ComfortSlots is the ascending, duplicate-free set of slot indices that must be warm
type ComfortSlots []int

// Strategy selects the coverage algorithm
type Strategy string

const (
	StrategyGreedy  Strategy = "greedy"  // per-slot pointer-advancing pass
	StrategyOptimal Strategy = "optimal" // dynamic program over uncovered comfort slots
)

// Config holds the scheduling tunables
type Config struct {
	PreheatSlots int      `json:"preheat_slots"` // how far before a comfort slot an activation may be placed
	RetainSlots  int      `json:"retain_slots"`  // how many slots one activation keeps warm
	Strategy     Strategy `json:"strategy"`
}

// Params bundles everything the Optimise pipeline needs besides the rates
type Params struct {
	Config
	Comfort  []TimeWindow   `json:"comfort"`
	PowerKW  float64        `json:"power_kw"`
	Location *time.Location `json:"-"`
}

// Transition marks a boundary where the heater changes state
type Transition struct {
	Time  time.Time `json:"time"`
	On    bool      `json:"on"`
	Price float64   `json:"price"`
}

// Summary aggregates cost and coverage of a plan.
// AverageOnPrice is nil when no slot is on.
type Summary struct {
	TotalCost        float64  `json:"total_cost"`
	OnHours          float64  `json:"on_hours"`
	AverageOnPrice   *float64 `json:"average_on_price"`
	ComfortSlots     int      `json:"comfort_slots"`
	WarmComfortSlots int      `json:"warm_comfort_slots"`
	TotalSlots       int      `json:"total_slots"`
	OnSlots          int      `json:"on_slots"`
	CostGBP          float64  `json:"cost_gbp"`
}

// SlotView is one row of the per-slot schedule
type SlotView struct {
	Time  time.Time `json:"time"`
	On    bool      `json:"on"`
	Warm  bool      `json:"warm"`
	Price float64   `json:"price"`
	Cost  float64   `json:"cost"`
}

// Result is what a scheduling cycle hands to the dashboard and actuation collaborators
type Result struct {
	Transitions []Transition `json:"transitions"`
	Summary     Summary      `json:"summary"`
	Plan        *Plan        `json:"-"`
}

// Profile represents household-level heating preferences
type Profile struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Comfort  []TimeWindow `json:"comfort"`
	Config   Config       `json:"config"`
	PowerKW  float64      `json:"power_kw"`
	Timezone string       `json:"timezone"` // IANA name; empty = local
}

// Params resolves the profile's timezone into pipeline parameters
func (p *Profile) Params() (Params, error) {
	loc := time.Local
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return Params{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, p.Timezone, err)
		}
		loc = l
	}
	return Params{
		Config:   p.Config,
		Comfort:  p.Comfort,
		PowerKW:  p.PowerKW,
		Location: loc,
	}, nil
}
