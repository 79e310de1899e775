package agent

import (
	"errors"
	"fmt"

	"github.com/zjrosen/kai/internal/queue"
)

var (
	// ErrClaimRace means another scanner moved the item first.
	ErrClaimRace = queue.ErrNotFound
	// ErrNothingToClaim means the trigger fired but no item could be taken.
	ErrNothingToClaim = errors.New("nothing to claim")
	// ErrDuplicateAgentTypeName is matched by every DuplicateNameError.
	ErrDuplicateAgentTypeName = errors.New("duplicate agent type name")
	// ErrSealed is returned when registering after startup.
	ErrSealed = errors.New("registry is sealed")
	// ErrUnknownType is returned for a type name nobody registered.
	ErrUnknownType = errors.New("unknown agent type")
)

// TriggerEvaluationError means a custom trigger failed. The loop cannot
// tell whether there is work, so it stops.
type TriggerEvaluationError struct {
	Agent string
	Err   error
}

func (e *TriggerEvaluationError) Error() string {
	return fmt.Sprintf("trigger evaluation failed for %s: %v", e.Agent, e.Err)
}

func (e *TriggerEvaluationError) Unwrap() error { return e.Err }

// ProcessingError means an item could not be processed. The loop logs it
// and moves on.
type ProcessingError struct {
	Agent string
	Item  string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s for %s: %v", e.Item, e.Agent, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Failed wraps err as a ProcessingError for item. A nil err stays nil and
// an existing ProcessingError is returned as is.
func Failed(cfg Config, item Item, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return &ProcessingError{Agent: cfg.Name, Item: item.Name, Err: err}
}

// DuplicateNameError reports a second registration under an existing name.
type DuplicateNameError struct {
	Name string
	// Builtin is true when the name belongs to a built-in type.
	Builtin bool
}

func (e *DuplicateNameError) Error() string {
	if e.Builtin {
		return fmt.Sprintf("agent type %q collides with a built-in type", e.Name)
	}
	return fmt.Sprintf("agent type %q is already registered", e.Name)
}

// Is reports ErrDuplicateAgentTypeName as a match.
func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateAgentTypeName }
