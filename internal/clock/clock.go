// Package clock supplies current time and timezone-aware work-hour windows.
// Time is always injected so lifecycle and scheduling logic stays testable.
package clock

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
)

// Clock provides the current time and the work-hour window for a date.
type Clock interface {
	Now() time.Time
	// WorkWindow returns the start and end of working hours on the given
	// date, in the configured timezone.
	WorkWindow(date time.Time) (start, end time.Time)
	// IsWorkDay reports whether the date counts as a working day.
	IsWorkDay(date time.Time) bool
}

// Options configures the work-hour window.
type Options struct {
	Start        string // "HH:MM"
	End          string // "HH:MM"
	Timezone     string // IANA name, "" means Local
	WeekdaysOnly bool
}

// WorkClock implements Clock on top of a clockwork.Clock.
type WorkClock struct {
	inner      clockwork.Clock
	loc        *time.Location
	startH     int
	startM     int
	endH       int
	endM       int
	weekdaysOK bool
}

// New builds a WorkClock from options, validating the HH:MM strings and
// timezone up front so misconfiguration fails before any remote call.
func New(opts Options) (*WorkClock, error) {
	return NewWith(clockwork.NewRealClock(), opts)
}

// NewWith builds a WorkClock over an explicit clockwork.Clock. Tests pass
// clockwork.NewFakeClockAt here.
func NewWith(inner clockwork.Clock, opts Options) (*WorkClock, error) {
	startH, startM, err := parseHHMM(opts.Start)
	if err != nil {
		return nil, &faults.ConfigError{Key: "work_hours.start", Err: err}
	}
	endH, endM, err := parseHHMM(opts.End)
	if err != nil {
		return nil, &faults.ConfigError{Key: "work_hours.end", Err: err}
	}
	if endH*60+endM <= startH*60+startM {
		return nil, &faults.ConfigError{
			Key: "work_hours",
			Err: fmt.Errorf("end %q must be after start %q", opts.End, opts.Start),
		}
	}

	loc := time.Local
	if opts.Timezone != "" {
		loc, err = time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, &faults.ConfigError{Key: "work_hours.timezone", Err: err}
		}
	}

	return &WorkClock{
		inner:      inner,
		loc:        loc,
		startH:     startH,
		startM:     startM,
		endH:       endH,
		endM:       endM,
		weekdaysOK: opts.WeekdaysOnly,
	}, nil
}

func (c *WorkClock) Now() time.Time {
	return c.inner.Now().In(c.loc)
}

func (c *WorkClock) WorkWindow(date time.Time) (time.Time, time.Time) {
	d := date.In(c.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), c.startH, c.startM, 0, 0, c.loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), c.endH, c.endM, 0, 0, c.loc)
	return start, end
}

func (c *WorkClock) IsWorkDay(date time.Time) bool {
	if !c.weekdaysOK {
		return true
	}
	wd := date.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func parseHHMM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
