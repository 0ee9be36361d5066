package models

import "time"

// Timer is a live tracking timer in the remote timer service.
type Timer struct {
	ID         string    `json:"id"`
	WorkItemID int       `json:"workItemId"`
	StartedAt  time.Time `json:"startedAt"`
	Comment    string    `json:"comment,omitempty"`
}

// Worklog is a logged block of tracked time.
type Worklog struct {
	ID         int       `json:"id"`
	WorkItemID int       `json:"workItemId"`
	Duration   int       `json:"duration"` // seconds
	Timestamp  time.Time `json:"timestamp"`
	Comment    string    `json:"comment,omitempty"`
}

// Logged returns the logged span as a Duration.
func (w *Worklog) Logged() time.Duration {
	return time.Duration(w.Duration) * time.Second
}
