package orch

import (
	"fmt"
)

// State names the phases of one task-execution run. The zero value is not a
// valid state; new threads start in StatePlanning.
type State string

const (
	StatePlanning         State = "planning"
	StateRouting          State = "routing"
	StateExecuting        State = "executing"
	StateReflecting       State = "reflecting"
	StateAwaitingApproval State = "awaiting_approval"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// validTransitions is the closed transition table. Anything not listed is a
// programming error, not a recoverable condition.
var validTransitions = map[State][]State{
	StateRouting:          {StatePlanning},
	StatePlanning:         {StateExecuting, StateDone, StateFailed},
	StateExecuting:        {StateReflecting, StateAwaitingApproval, StateFailed},
	StateReflecting:       {StatePlanning, StateDone, StateFailed},
	StateAwaitingApproval: {StateExecuting, StatePlanning, StateFailed},
	StateDone:             {},
	StateFailed:           {},
}

// canTransition reports whether from -> to is in the table.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// MaxStepsError reports a run that hit the step ceiling before reaching a
// terminal state. The thread's checkpoint retains everything done so far.
type MaxStepsError struct {
	ThreadID string
	Steps    int
}

func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("thread %s exceeded %d steps without completing", e.ThreadID, e.Steps)
}
