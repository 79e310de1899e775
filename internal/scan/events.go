// Package scan runs one agent instance: it polls the instance's trigger,
// claims an item when it fires and hands it to the agent type, one item at
// a time, until its context is cancelled.
package scan

import (
	"fmt"
	"time"
)

// State is a scan loop state.
type State int32

const (
	// Idle waits for the next poll tick or wake-up.
	Idle State = iota
	// Evaluating runs the trigger against the watched queues.
	Evaluating
	// Claiming moves one item into the processing queue.
	Claiming
	// Executing runs the claimed item through the agent type.
	Executing
	// CoolingDown follows every item before the loop goes idle.
	CoolingDown
	// Stopped is final: the context ended, --once finished or the trigger failed.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Claiming:
		return "claiming"
	case Executing:
		return "executing"
	case CoolingDown:
		return "cooling_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Event is published on every state change and item lifecycle step.
type Event struct {
	Agent string
	State State
	Item  string
	RunID string
	// Origin is set for items claimed from another instance.
	Origin string
	Err    error
	At     time.Time
}
