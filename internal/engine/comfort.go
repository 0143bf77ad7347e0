package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const minutesPerDay = 24 * 60

// clockWindow is a TimeWindow with its bounds parsed to minutes after midnight
type clockWindow struct {
	start, end int
	days       []int
}

// ResolveComfort maps wall-clock comfort windows onto the indices of every slot
// whose [Start, End) intersects an occurrence of a window in loc. Overlapping
// windows merge; a window touching no slot contributes nothing.
func ResolveComfort(slots []PriceSlot, windows []TimeWindow, loc *time.Location) (ComfortSlots, error) {
	if loc == nil {
		loc = time.Local
	}

	parsed := make([]clockWindow, 0, len(windows))
	for _, w := range windows {
		cw, err := parseWindow(w)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, cw)
	}

	comfort := ComfortSlots{}
	for _, slot := range slots {
		if lo.ContainsBy(parsed, func(cw clockWindow) bool { return cw.intersects(slot, loc) }) {
			comfort = append(comfort, slot.Index)
		}
	}

	return comfort, nil
}

// NormalizeComfort sorts indices and drops duplicates, giving set-union semantics
func NormalizeComfort(indices []int) ComfortSlots {
	out := lo.Uniq(indices)
	slices.Sort(out)
	return ComfortSlots(out)
}

// intersects checks the occurrences starting the day before, the day of, and
// the day after the slot start, which covers overnight windows.
func (cw clockWindow) intersects(slot PriceSlot, loc *time.Location) bool {
	if cw.start == cw.end {
		return false
	}

	local := slot.Start.In(loc)
	for offset := -1; offset <= 1; offset++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+offset, 0, 0, 0, 0, loc)
		if !cw.onDay(day) {
			continue
		}

		from := atMinute(day, cw.start)
		to := atMinute(day, cw.end)
		// Handle overnight windows (e.g., 22:00 - 06:00)
		if cw.end < cw.start {
			to = atMinute(day.AddDate(0, 0, 1), cw.end)
		}

		if slot.Start.Before(to) && slot.End.After(from) {
			return true
		}
	}
	return false
}

func (cw clockWindow) onDay(day time.Time) bool {
	if len(cw.days) == 0 {
		return true
	}
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday = 7
	}
	return slices.Contains(cw.days, weekday)
}

// atMinute builds the wall-clock instant so DST shifts land on the right hour
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}

func parseWindow(w TimeWindow) (clockWindow, error) {
	start, err := parseTimeOfDay(w.Start)
	if err != nil {
		return clockWindow{}, err
	}
	end, err := parseTimeOfDay(w.End)
	if err != nil {
		return clockWindow{}, err
	}
	if start == minutesPerDay {
		return clockWindow{}, fmt.Errorf("%w: window cannot start at 24:00", ErrInvalidConfig)
	}
	for _, d := range w.DaysOfWeek {
		if d < 1 || d > 7 {
			return clockWindow{}, fmt.Errorf("%w: day of week %d out of range 1-7", ErrInvalidConfig, d)
		}
	}
	return clockWindow{start: start, end: end, days: w.DaysOfWeek}, nil
}

// parseTimeOfDay parses HH:mm into minutes after midnight; 24:00 means end of day
func parseTimeOfDay(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidConfig, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidConfig, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidConfig, s)
	}

	total := hour*60 + minute
	if hour < 0 || minute < 0 || minute > 59 || total > minutesPerDay {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidConfig, s)
	}
	return total, nil
}

// ParseWindow parses "HH:mm-HH:mm" as written in config files and flags
func ParseWindow(s string) (TimeWindow, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return TimeWindow{}, fmt.Errorf("%w: window %q is not HH:mm-HH:mm", ErrInvalidConfig, s)
	}
	w := TimeWindow{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	if _, err := parseWindow(w); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}
