package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	tests := []struct {
		name    string
		prices  []float64
		comfort ComfortSlots
		cfg     Config
		want    []bool
	}{
		{
			name:    "cheapest slot that cannot reach the comfort slot is skipped",
			prices:  []float64{10, 2, 12, 5, 9},
			comfort: ComfortSlots{3},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 2},
			want:    []bool{false, false, false, true, false},
		},
		{
			name:    "comfort slot itself is cheapest reachable",
			prices:  []float64{10, 8, 12, 5, 9},
			comfort: ComfortSlots{3},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 2},
			want:    []bool{false, false, false, true, false},
		},
		{
			name:    "free heat covers a later comfort slot at no cost",
			prices:  []float64{-1, 5, 5},
			comfort: ComfortSlots{2},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 3},
			want:    []bool{true, false, false},
		},
		{
			name:    "equal minima pick the later slot",
			prices:  []float64{4, 4, 4, 9},
			comfort: ComfortSlots{2},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 4},
			want:    []bool{false, false, true, false},
		},
		{
			name:    "one preheat activation carries through a run of comfort slots",
			prices:  []float64{20, 3, 20, 20, 20, 20},
			comfort: ComfortSlots{2, 3, 4},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 4},
			want:    []bool{false, true, false, false, false, false},
		},
		{
			name:    "coverage is renewed when retention runs out",
			prices:  []float64{1, 9, 9, 9, 9, 2},
			comfort: ComfortSlots{0, 1, 2, 3, 4, 5},
			cfg:     Config{PreheatSlots: 0, RetainSlots: 3},
			want:    []bool{true, false, false, true, false, false},
		},
		{
			name:    "negative prices are on without comfort",
			prices:  []float64{5, -3, 5, -0.5},
			comfort: ComfortSlots{},
			cfg:     Config{PreheatSlots: 2, RetainSlots: 2},
			want:    []bool{false, true, false, true},
		},
		{
			name:    "preheat window is clipped at the start of the series",
			prices:  []float64{7, 3},
			comfort: ComfortSlots{0},
			cfg:     Config{PreheatSlots: 4, RetainSlots: 4},
			want:    []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Schedule(makeSlots(t, tt.prices...), tt.comfort, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.On())

			summary := Summarize(plan, 1)
			assert.Equal(t, summary.ComfortSlots, summary.WarmComfortSlots)
		})
	}
}

func TestScheduleErrors(t *testing.T) {
	slots := makeSlots(t, 1, 2, 3)

	_, err := Schedule(slots, ComfortSlots{1}, Config{PreheatSlots: 1, RetainSlots: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Schedule(slots, ComfortSlots{1}, Config{PreheatSlots: -1, RetainSlots: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Schedule(slots, ComfortSlots{1}, Config{RetainSlots: 1, Strategy: "reactive"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Schedule(nil, ComfortSlots{}, Config{RetainSlots: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Schedule(slots, ComfortSlots{3}, Config{RetainSlots: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	reordered := []PriceSlot{slots[1], slots[0], slots[2]}
	_, err = Schedule(reordered, ComfortSlots{}, Config{RetainSlots: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheapestReachingEmptyRange(t *testing.T) {
	slots := makeSlots(t, 1, 2, 3)
	_, ok := cheapestReaching(slots, 2, Config{PreheatSlots: 2, RetainSlots: 0})
	assert.False(t, ok)
}

func TestScheduleOptimalSharesActivation(t *testing.T) {
	slots := makeSlots(t, 1, 3, 4, 9)
	comfort := ComfortSlots{1, 3}

	greedy, err := Schedule(slots, comfort, Config{PreheatSlots: 1, RetainSlots: 3, Strategy: StrategyGreedy})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, greedy.On())

	optimal, err := Schedule(slots, comfort, Config{PreheatSlots: 1, RetainSlots: 3, Strategy: StrategyOptimal})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, false}, optimal.On())

	assert.Less(t, Summarize(optimal, 1).TotalCost, Summarize(greedy, 1).TotalCost)
}

func TestScheduleProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for run := 0; run < 300; run++ {
		n := 1 + rng.IntN(40)
		prices := make([]float64, n)
		for i := range prices {
			prices[i] = float64(rng.IntN(40) - 5)
		}
		comfort := []int{}
		for i := 0; i < n; i++ {
			if rng.IntN(3) == 0 {
				comfort = append(comfort, i)
			}
		}
		cfg := Config{PreheatSlots: rng.IntN(5), RetainSlots: 1 + rng.IntN(5)}
		slots := makeSlots(t, prices...)

		plans := map[Strategy]*Plan{}
		for _, strategy := range []Strategy{StrategyGreedy, StrategyOptimal} {
			cfg.Strategy = strategy
			plan, err := Schedule(slots, ComfortSlots(comfort), cfg)
			require.NoError(t, err)
			plans[strategy] = plan

			again, err := Schedule(slots, ComfortSlots(comfort), cfg)
			require.NoError(t, err)
			assert.Equal(t, plan.On(), again.On(), "run %d %s: not deterministic", run, strategy)

			for i, p := range prices {
				if p < 0 {
					assert.True(t, plan.IsOn(i), "run %d %s: free heat slot %d off", run, strategy, i)
				}
			}

			summary := Summarize(plan, 1)
			assert.Equal(t, summary.ComfortSlots, summary.WarmComfortSlots, "run %d %s: comfort not covered", run, strategy)

			for i, p := range prices {
				if !plan.IsOn(i) || p < 0 {
					continue
				}
				assert.True(t, servesComfort(i, comfort, cfg), "run %d %s: activation %d serves no comfort slot", run, strategy, i)
			}
		}

		greedyCost := Summarize(plans[StrategyGreedy], 1).TotalCost
		optimalCost := Summarize(plans[StrategyOptimal], 1).TotalCost
		assert.LessOrEqual(t, optimalCost, greedyCost+1e-9, "run %d: optimal costs more than greedy", run)
	}
}

// servesComfort reports whether a paid activation at i lies in the preheat
// window of some comfort slot it keeps warm
func servesComfort(i int, comfort []int, cfg Config) bool {
	for _, c := range comfort {
		if c >= i && c < i+cfg.RetainSlots && i >= c-cfg.PreheatSlots {
			return true
		}
	}
	return false
}
