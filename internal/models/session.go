package models

import "time"

// TaskSession is the single locally persisted record of the task the user
// is working on right now. At most one exists at a time.
type TaskSession struct {
	WorkItemID int       `json:"work_item_id"`
	Title      string    `json:"title"` // display cache, not authoritative
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	TimerID    string    `json:"timer_id,omitempty"` // opaque handle into the timer service
}

// Expired reports whether the session passed its expiry at the given time.
func (s *TaskSession) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Elapsed returns how long the session has been active.
func (s *TaskSession) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Source names a remote service the tool coordinates with.
type Source string

const (
	SourceTracker  Source = "tracker"
	SourceTimer    Source = "timer"
	SourceCalendar Source = "calendar"
)

// State is the full persisted record: the active session plus per-source
// sync cursors and a version tag for forward migration.
type State struct {
	Version     string               `json:"version"`
	Session     *TaskSession         `json:"session,omitempty"`
	SyncCursors map[Source]time.Time `json:"sync_cursors,omitempty"`
}

// StateVersion is the current on-disk format version.
const StateVersion = "1"

// NewState returns an empty state record at the current version.
func NewState() *State {
	return &State{
		Version:     StateVersion,
		SyncCursors: make(map[Source]time.Time),
	}
}

// TouchCursor records a successful sync against a source.
func (s *State) TouchCursor(src Source, at time.Time) {
	if s.SyncCursors == nil {
		s.SyncCursors = make(map[Source]time.Time)
	}
	s.SyncCursors[src] = at
}
