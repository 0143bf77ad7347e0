package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimise(t *testing.T) {
	// 48 half-hour slots: cheap overnight, peaks at breakfast and dinner, one plunge
	prices := []float64{
		15, 14, 13, 12,
		11, 10, 9, 8,
		12, 13, 15, 18,
		20, 22, 24, 26,
		25, 24, 23, 22,
		21, 20, 19, 18,
		17, 16, -4, 14,
		13, 12, 11, 10,
		15, 18, 20, 25,
		30, 35, 40, 38,
		35, 30, 25, 20,
		18, 16, 15, 14,
	}

	params := Params{
		Config:   DefaultConfig(),
		Comfort:  DefaultComfort,
		PowerKW:  3.5,
		Location: time.UTC,
	}

	res, err := Optimise(makeRates(prices...), params)
	require.NoError(t, err)

	assert.Equal(t, 14, res.Summary.ComfortSlots) // 4 morning + 10 evening
	assert.Equal(t, res.Summary.ComfortSlots, res.Summary.WarmComfortSlots)
	assert.True(t, res.Plan.IsOn(26), "negative price slot must be on")

	// 07:00 comfort: preheat from 06:00, cheapest reachable is 06:00 (20p)
	assert.True(t, res.Plan.IsOn(12))
	// 17:00 comfort: 16:00 (15p) beats 16:30 and 17:00
	assert.True(t, res.Plan.IsOn(32))

	require.NotEmpty(t, res.Transitions)
	for i := 1; i < len(res.Transitions); i++ {
		assert.NotEqual(t, res.Transitions[i-1].On, res.Transitions[i].On)
		assert.True(t, res.Transitions[i].Time.After(res.Transitions[i-1].Time))
	}
}

func TestOptimiseErrors(t *testing.T) {
	_, err := Optimise(nil, Params{Config: DefaultConfig()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Optimise(makeRates(1, 2), Params{Config: Config{RetainSlots: 0}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Optimise(makeRates(1, 2), Params{
		Config:  DefaultConfig(),
		Comfort: []TimeWindow{{Start: "noon", End: "13:00"}},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
