package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput        = errors.New("invalid input parameters")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnsatisfiableWindow = errors.New("no activation can reach comfort slot")
)

// DefaultComfort mirrors the household defaults: mornings and evenings
var DefaultComfort = []TimeWindow{
	{Start: "07:00", End: "09:00"},
	{Start: "17:00", End: "22:00"},
}

// DefaultConfig returns two slots of preheat and four slots of retention
func DefaultConfig() Config {
	return Config{
		PreheatSlots: 2,
		RetainSlots:  4,
		Strategy:     StrategyGreedy,
	}
}

// Validate reports ErrInvalidConfig for tunables no plan can be built from
func (c Config) Validate() error {
	if c.RetainSlots < 1 {
		return fmt.Errorf("%w: retain_slots must be >= 1, got %d", ErrInvalidConfig, c.RetainSlots)
	}
	if c.PreheatSlots < 0 {
		return fmt.Errorf("%w: preheat_slots must be >= 0, got %d", ErrInvalidConfig, c.PreheatSlots)
	}
	switch c.Strategy {
	case "", StrategyGreedy, StrategyOptimal:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	return nil
}

// Optimise runs a full scheduling cycle: normalize the feed, resolve comfort
// windows, cover them, then derive transitions and the summary.
// Nothing is returned on error.
func Optimise(rates []Rate, params Params) (*Result, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}

	slots, err := BuildSeries(rates)
	if err != nil {
		return nil, err
	}

	loc := params.Location
	if loc == nil {
		loc = time.Local
	}
	comfort, err := ResolveComfort(slots, params.Comfort, loc)
	if err != nil {
		return nil, err
	}

	plan, err := Schedule(slots, comfort, params.Config)
	if err != nil {
		return nil, err
	}

	return &Result{
		Transitions: Transitions(plan),
		Summary:     Summarize(plan, params.PowerKW),
		Plan:        plan,
	}, nil
}
