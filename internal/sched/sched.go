// Package sched places Focus Blocks into free calendar slots. FindSlot is
// pure: no I/O, and identical inputs always yield identical output, so a
// dry-run preview matches the slot the commit path will pick.
package sched

import (
	"sort"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/clock"
	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

// Policy bounds the slot search.
type Policy struct {
	Duration    time.Duration
	Granularity time.Duration
	// Truncate allows a block shortened to the remaining window, provided
	// the remainder is at least MinFraction of the requested duration.
	Truncate    bool
	MinFraction float64
	// LookaheadDays caps how many work days the search may roll over.
	LookaheadDays int
}

// DefaultPolicy mirrors the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Duration:      45 * time.Minute,
		Granularity:   15 * time.Minute,
		MinFraction:   0.5,
		LookaheadDays: 5,
	}
}

// FindSlot returns the first interval of p.Duration that starts on a
// granularity boundary of the work-day grid, does not overlap any existing
// event, and fits before the work window ends. If nothing fits today the
// search rolls over to the next work day, up to p.LookaheadDays work days.
func FindSlot(events []models.CalendarEvent, clk clock.Clock, now time.Time, itemID int, p Policy) (models.FocusBlock, error) {
	if p.Granularity <= 0 || p.Duration <= 0 {
		return models.FocusBlock{}, &faults.ConfigError{Key: "focus", Err: errBadPolicy}
	}

	wStart, wEnd := clk.WorkWindow(now)
	if p.Duration > wEnd.Sub(wStart) {
		// Longer than any work window: no day can ever fit it.
		return models.FocusBlock{}, &faults.ConfigError{Key: "focus.duration_minutes", Err: errTooLong}
	}

	sorted := sortedSpans(events)

	day := now
	searched := 0
	// Calendar-day cap so a weekends-only gap cannot loop forever.
	for cal := 0; cal <= p.LookaheadDays*7 && searched < p.LookaheadDays; cal++ {
		if clk.IsWorkDay(day) {
			searched++
			start, end := clk.WorkWindow(day)

			earliest := start
			if cal == 0 && now.After(start) {
				earliest = alignUp(now, start, p.Granularity)
			}

			if blk, ok := scanDay(sorted, earliest, start, end, itemID, p); ok {
				return blk, nil
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return models.FocusBlock{}, &faults.ConflictError{
		Days:     p.LookaheadDays,
		Duration: p.Duration.String(),
	}
}

// scanDay walks granularity boundaries from earliest through end-duration
// and returns the first conflict-free block. When truncation is allowed it
// falls back to a shortened block against the end of the window.
func scanDay(events []span, earliest, gridStart, end time.Time, itemID int, p Policy) (models.FocusBlock, bool) {
	for c := earliest; !c.Add(p.Duration).After(end); c = c.Add(p.Granularity) {
		if free(events, c, c.Add(p.Duration)) {
			return models.FocusBlock{Start: c, End: c.Add(p.Duration), WorkItemID: itemID}, true
		}
	}

	if !p.Truncate {
		return models.FocusBlock{}, false
	}

	minLen := time.Duration(float64(p.Duration) * p.MinFraction)
	for c := earliest; c.Before(end); c = c.Add(p.Granularity) {
		if end.Sub(c) < minLen {
			break
		}
		if free(events, c, end) {
			return models.FocusBlock{Start: c, End: end, WorkItemID: itemID, Truncated: true}, true
		}
	}
	return models.FocusBlock{}, false
}

type span struct {
	start, end time.Time
}

// sortedSpans copies event intervals sorted by start; the input slice is
// never mutated.
func sortedSpans(events []models.CalendarEvent) []span {
	spans := make([]span, 0, len(events))
	for _, e := range events {
		if !e.End.After(e.Start) {
			continue
		}
		spans = append(spans, span{start: e.Start, end: e.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	return spans
}

// free reports whether [start, end) overlaps no event. Half-open intervals:
// an event sharing a boundary with the candidate does not block it.
func free(events []span, start, end time.Time) bool {
	for _, e := range events {
		if start.Before(e.end) && end.After(e.start) {
			return false
		}
	}
	return true
}

// alignUp rounds t up to the next grid boundary anchored at gridStart.
func alignUp(t, gridStart time.Time, granularity time.Duration) time.Time {
	if !t.After(gridStart) {
		return gridStart
	}
	offset := t.Sub(gridStart)
	steps := offset / granularity
	if offset%granularity != 0 {
		steps++
	}
	return gridStart.Add(steps * granularity)
}

var (
	errBadPolicy = errText("duration and granularity must be positive")
	errTooLong   = errText("focus duration exceeds the work window")
)

type errText string

func (e errText) Error() string { return string(e) }
