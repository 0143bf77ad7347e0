package engine

import "time"

// Transitions emits an event at every index whose state differs from the one
// before it, treating the slot before index 0 as off.
func Transitions(p *Plan) []Transition {
	transitions := []Transition{}
	prev := false
	for i, s := range p.slots {
		if p.on[i] == prev {
			continue
		}
		transitions = append(transitions, Transition{
			Time:  s.Start,
			On:    p.on[i],
			Price: s.PencePerKWh,
		})
		prev = p.on[i]
	}
	return transitions
}

// StateAt returns whether the plan has the heater on at instant t, and false
// when t falls outside the series.
func StateAt(p *Plan, t time.Time) (on bool, ok bool) {
	for i, s := range p.slots {
		if !t.Before(s.Start) && t.Before(s.End) {
			return p.on[i], true
		}
	}
	return false, false
}
