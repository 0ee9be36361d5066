package models

import "time"

// CalendarEvent is an event fetched from or written to the remote calendar.
type CalendarEvent struct {
	ID         string    `json:"id,omitempty"`
	Subject    string    `json:"subject"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Categories []string  `json:"categories,omitempty"`
	WorkItemID int       `json:"work_item_id,omitempty"` // extended-property linkage
}

// Overlaps reports whether the event intersects the half-open interval
// [start, end). Events that merely abut do not overlap.
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return start.Before(e.End) && end.After(e.Start)
}

// FocusBlock is a proposed or committed calendar interval reserved for
// focused work on one work item. A committed block carries the remote
// event ID.
type FocusBlock struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	WorkItemID int       `json:"work_item_id"`
	EventID    string    `json:"event_id,omitempty"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// Duration returns the block length.
func (b FocusBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Committed reports whether the block has been written to the calendar.
func (b FocusBlock) Committed() bool {
	return b.EventID != ""
}
