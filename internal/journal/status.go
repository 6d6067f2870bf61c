package journal

import "strings"

// TaskStatus is the lifecycle state of a SuggestedTask.
type TaskStatus string

const (
	StatusProposed  TaskStatus = "proposed"
	StatusAdded     TaskStatus = "added"
	StatusDismissed TaskStatus = "dismissed"
	StatusCompleted TaskStatus = "completed"
)

// AllStatuses lists every known status.
var AllStatuses = []TaskStatus{StatusProposed, StatusAdded, StatusDismissed, StatusCompleted}

// CandidateStatuses are the statuses checked for completion during absorption.
var CandidateStatuses = []TaskStatus{StatusAdded, StatusProposed}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Valid reports whether s is one of the four known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusAdded, StatusDismissed, StatusCompleted:
		return true
	}
	return false
}

// IsCandidate reports whether a task in this status is still live.
func (s TaskStatus) IsCandidate() bool {
	return s == StatusAdded || s == StatusProposed
}

// transitions is the lifecycle table. proposed→completed is reached through
// absorption's completion detection, not operator action.
var transitions = map[TaskStatus][]TaskStatus{
	StatusProposed:  {StatusAdded, StatusDismissed, StatusCompleted},
	StatusAdded:     {StatusCompleted, StatusDismissed},
	StatusCompleted: {StatusAdded},
	StatusDismissed: nil,
}

// CanTransition reports whether from→to is in the lifecycle table.
// Setting a task to its current status is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
