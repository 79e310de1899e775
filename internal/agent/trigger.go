package agent

import (
	"fmt"

	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/queue"
)

// TakeSnapshot lists every directory. Missing directories are empty.
func TakeSnapshot(dirs []string) (Snapshot, error) {
	snap := make(Snapshot, len(dirs))
	for _, dir := range dirs {
		items, err := queue.New(dir).List()
		if err != nil {
			return snap, err
		}
		snap[dir] = items
	}
	return snap, nil
}

// Evaluate reports whether cfg's instance has work. It only reads the
// filesystem.
//
// Listing errors are returned as plain errors and mean "try again later".
// A custom predicate that errors or panics yields *TriggerEvaluationError.
func Evaluate(cfg Config) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			err = &TriggerEvaluationError{Agent: cfg.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	dirs, err := cfg.WatchDirs()
	if err != nil {
		return false, fmt.Errorf("resolving watch list: %w", err)
	}
	snap, err := TakeSnapshot(dirs)
	if err != nil {
		return false, err
	}

	if cfg.Trigger.Custom != nil {
		ok, err := cfg.Trigger.Custom(cfg, snap)
		if err != nil {
			return false, &TriggerEvaluationError{Agent: cfg.Name, Err: err}
		}
		log.Debug(log.CatTrigger, "Custom trigger evaluated", "agent", cfg.Name, "fired", ok)
		return ok, nil
	}

	switch cfg.Trigger.Condition {
	case IsEmpty:
		fired = snap.Total() == 0
	default:
		fired = snap.Total() > 0
	}
	log.Debug(log.CatTrigger, "Trigger evaluated", "agent", cfg.Name, "condition", cfg.Trigger.Condition, "items", snap.Total(), "fired", fired)
	return fired, nil
}
