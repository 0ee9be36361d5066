package models

// WorkItem is a work item fetched from the remote tracker.
type WorkItem struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	State      string   `json:"state"`
	Type       string   `json:"type"`
	AssignedTo string   `json:"assigned_to,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// TypeSchema describes the states and transitions a work item type allows.
type TypeSchema struct {
	Type         string              `json:"type"`
	States       []string            `json:"states"`
	Transitions  map[string][]string `json:"transitions"` // state -> reachable states
	BlockedState string              `json:"blocked_state,omitempty"`
}

// CanTransition reports whether the schema allows moving from one state to another.
func (s *TypeSchema) CanTransition(from, to string) bool {
	for _, next := range s.Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemFilter narrows a tracker query.
type ItemFilter struct {
	State      string
	AssignedTo string
	Search     string
	Tag        string
	Limit      int
}
