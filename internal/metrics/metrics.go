package metrics

import (
	"errors"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes scheduling cycles as Prometheus metrics.
type Recorder struct {
	runs         *prometheus.CounterVec
	onSlots      prometheus.Gauge
	cost         prometheus.Gauge
	comfortSlots prometheus.Gauge
	coldComfort  prometheus.Gauge
	heaterOn     prometheus.Gauge
}

// NewRecorder registers the scheduling metrics on reg. If reg is nil, the
// default registerer is used. Collectors already registered are reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{}
	var err error
	if r.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartheat_schedule_runs_total",
		Help: "Scheduling cycles by outcome",
	}, []string{"strategy", "outcome"})); err != nil {
		return nil, err
	}
	if r.onSlots, err = register(reg, gauge("smartheat_plan_on_slots", "Slots scheduled on in the latest plan")); err != nil {
		return nil, err
	}
	if r.cost, err = register(reg, gauge("smartheat_plan_cost_gbp", "Estimated cost of the latest plan in GBP")); err != nil {
		return nil, err
	}
	if r.comfortSlots, err = register(reg, gauge("smartheat_plan_comfort_slots", "Comfort slots in the latest plan")); err != nil {
		return nil, err
	}
	if r.coldComfort, err = register(reg, gauge("smartheat_plan_cold_comfort_slots", "Comfort slots left cold by the latest plan")); err != nil {
		return nil, err
	}
	if r.heaterOn, err = register(reg, gauge("smartheat_heater_on", "1 when the current slot is scheduled on")); err != nil {
		return nil, err
	}
	return r, nil
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(C), nil
		}
		return c, err
	}
	return c, nil
}

// RecordResult updates the plan gauges and counts a successful cycle
func (r *Recorder) RecordResult(strategy engine.Strategy, res *engine.Result) {
	r.runs.WithLabelValues(string(strategy), "ok").Inc()
	r.onSlots.Set(float64(res.Summary.OnSlots))
	r.cost.Set(res.Summary.CostGBP)
	r.comfortSlots.Set(float64(res.Summary.ComfortSlots))
	r.coldComfort.Set(float64(res.Summary.ComfortSlots - res.Summary.WarmComfortSlots))
}

// RecordFailure counts a discarded cycle
func (r *Recorder) RecordFailure(strategy engine.Strategy) {
	r.runs.WithLabelValues(string(strategy), "error").Inc()
}

// SetHeaterOn mirrors the state sent to the actuator
func (r *Recorder) SetHeaterOn(on bool) {
	if on {
		r.heaterOn.Set(1)
		return
	}
	r.heaterOn.Set(0)
}
