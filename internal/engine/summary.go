package engine

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Summarize aggregates cost and coverage of a plan. TotalCost is in price units
// times hours (pence per kW for p/kWh feeds); CostGBP scales it by powerKW.
// WarmComfortSlots re-checks coverage against the plan and equals ComfortSlots
// for every plan Schedule returns.
func Summarize(p *Plan, powerKW float64) Summary {
	hours := p.duration.Hours()

	onPrices := []float64{}
	for i, s := range p.slots {
		if p.on[i] {
			onPrices = append(onPrices, s.PencePerKWh)
		}
	}

	total := lo.Sum(onPrices) * hours
	summary := Summary{
		TotalCost:        total,
		OnHours:          float64(len(onPrices)) * hours,
		ComfortSlots:     len(p.comfort),
		WarmComfortSlots: lo.CountBy(p.comfort, p.Warm),
		TotalSlots:       len(p.slots),
		OnSlots:          len(onPrices),
		CostGBP:          total * powerKW / 100.0,
	}
	if len(onPrices) > 0 {
		avg := stat.Mean(onPrices, nil)
		summary.AverageOnPrice = &avg
	}
	return summary
}
