// Package slotgrid partitions a business day into fixed-width bookable slots
// and converts between slot indexes and wall-clock time.
//
// Slot indexes are 1-based and counted from opening time: with opening hours
// 09:00-17:00 and one-hour slots, 09:00-10:00 is index 1 and 16:00-17:00 is
// index 8.
package slotgrid

import (
	"fmt"
	"strings"
	"time"

	"coworking/internal/domain"
)

const DateLayout = "2006-01-02"

const (
	defaultOpen  = "09:00"
	defaultClose = "17:00"
	defaultStep  = time.Hour
)

type Grid struct {
	openMin  int
	closeMin int
	stepMin  int
	loc      *time.Location
	closed   map[time.Weekday]bool
}

type Slot struct {
	Index int
	Start time.Time
	End   time.Time
}

// New builds a grid from "HH:MM" opening and closing times.
func New(open, close string, step time.Duration, loc *time.Location, closedWeekdays ...time.Weekday) (Grid, error) {
	if loc == nil {
		loc = time.UTC
	}
	if step <= 0 {
		step = defaultStep
	}
	if step%time.Minute != 0 {
		return Grid{}, fmt.Errorf("slot step %s is not a whole number of minutes", step)
	}
	openMin, err := parseClock(open, defaultOpen)
	if err != nil {
		return Grid{}, fmt.Errorf("parse open time: %w", err)
	}
	closeMin, err := parseClock(close, defaultClose)
	if err != nil {
		return Grid{}, fmt.Errorf("parse close time: %w", err)
	}
	stepMin := int(step / time.Minute)
	if closeMin-openMin < stepMin {
		return Grid{}, fmt.Errorf("opening hours %s-%s shorter than one slot", open, close)
	}

	g := Grid{
		openMin:  openMin,
		closeMin: closeMin,
		stepMin:  stepMin,
		loc:      loc,
		closed:   make(map[time.Weekday]bool, len(closedWeekdays)),
	}
	for _, wd := range closedWeekdays {
		g.closed[wd] = true
	}
	return g, nil
}

// FromSpace builds the grid described by a catalog space.
func FromSpace(s domain.Space, loc *time.Location) (Grid, error) {
	closed := make([]time.Weekday, 0, len(s.ClosedWeekdays))
	for _, d := range s.ClosedWeekdays {
		if d < 0 || d > 6 {
			return Grid{}, fmt.Errorf("space %d: closed weekday %d out of range", s.ID, d)
		}
		closed = append(closed, time.Weekday(d))
	}
	return New(s.OpenTime, s.CloseTime, time.Duration(s.SlotMinutes)*time.Minute, loc, closed...)
}

func (g Grid) Location() *time.Location { return g.loc }

func (g Grid) Step() time.Duration { return time.Duration(g.stepMin) * time.Minute }

// ParseDate parses a YYYY-MM-DD date at midnight in the grid's location.
func (g Grid) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidRange, s)
	}
	return d, nil
}

// Count is the number of slots on the given day; zero when the space is closed.
func (g Grid) Count(date time.Time) int {
	if g.closed[date.Weekday()] {
		return 0
	}
	return (g.closeMin - g.openMin) / g.stepMin
}

// Range returns the [start, end) interval of slot idx on date.
func (g Grid) Range(date time.Time, idx int) (time.Time, time.Time, error) {
	n := g.Count(date)
	if idx < 1 || idx > n {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: index %d outside 1..%d on %s", domain.ErrInvalidSlot, idx, n, date.Format(DateLayout))
	}
	startMin := g.openMin + (idx-1)*g.stepMin
	return g.at(date, startMin), g.at(date, startMin+g.stepMin), nil
}

func (g Grid) Slots(date time.Time) []Slot {
	n := g.Count(date)
	out := make([]Slot, 0, n)
	for i := 1; i <= n; i++ {
		start := g.at(date, g.openMin+(i-1)*g.stepMin)
		out = append(out, Slot{Index: i, Start: start, End: g.at(date, g.openMin+i*g.stepMin)})
	}
	return out
}

// IndexForHour maps an opening-range hour (e.g. 9) to its slot index.
func (g Grid) IndexForHour(hour int) (int, error) {
	offset := hour*60 - g.openMin
	if hour < 0 || hour > 23 || offset < 0 || offset%g.stepMin != 0 {
		return 0, fmt.Errorf("%w: hour %d outside opening range", domain.ErrInvalidSlot, hour)
	}
	idx := offset/g.stepMin + 1
	if idx > (g.closeMin-g.openMin)/g.stepMin {
		return 0, fmt.Errorf("%w: hour %d outside opening range", domain.ErrInvalidSlot, hour)
	}
	return idx, nil
}

// IndexOf maps a slot start time to its date and index.
func (g Grid) IndexOf(t time.Time) (string, int, error) {
	t = t.In(g.loc)
	date := midnight(t, g.loc)
	m, ok := wallMinutes(t)
	if !ok || m < g.openMin || (m-g.openMin)%g.stepMin != 0 {
		return "", 0, fmt.Errorf("%w: %s is not a slot start", domain.ErrInvalidSlot, t.Format(time.RFC3339))
	}
	idx := (m-g.openMin)/g.stepMin + 1
	if idx > g.Count(date) {
		return "", 0, fmt.Errorf("%w: %s is outside opening hours", domain.ErrInvalidSlot, t.Format(time.RFC3339))
	}
	return date.Format(DateLayout), idx, nil
}

// Span validates a reservation range and returns the inclusive slot
// indexes it covers. The range must be slot aligned, within one business
// day and non-empty.
func (g Grid) Span(start, end time.Time) (string, int, int, error) {
	if !end.After(start) {
		return "", 0, 0, fmt.Errorf("%w: end must be after start", domain.ErrInvalidRange)
	}
	date, first, err := g.IndexOf(start)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
	}
	end = end.In(g.loc)
	if midnight(end, g.loc).Format(DateLayout) != date {
		return "", 0, 0, fmt.Errorf("%w: range must stay within one day", domain.ErrInvalidRange)
	}
	m, ok := wallMinutes(end)
	if !ok || m > g.closeMin || (m-g.openMin)%g.stepMin != 0 {
		return "", 0, 0, fmt.Errorf("%w: end %s is not a slot boundary", domain.ErrInvalidRange, end.Format(time.RFC3339))
	}
	last := (m - g.openMin) / g.stepMin
	if last < first {
		return "", 0, 0, fmt.Errorf("%w: end must be after start", domain.ErrInvalidRange)
	}
	return date, first, last, nil
}

// Bounds returns the start of the first and the end of the last slot in
// the inclusive index range.
func (g Grid) Bounds(date time.Time, first, last int) (time.Time, time.Time, error) {
	start, _, err := g.Range(date, first)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, end, err := g.Range(date, last)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if last < first {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end slot before start slot", domain.ErrInvalidRange)
	}
	return start, end, nil
}

func (g Grid) at(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minutes, 0, 0, g.loc)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func wallMinutes(t time.Time) (int, bool) {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func parseClock(v, fallback string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = fallback
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
