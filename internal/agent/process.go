package agent

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/zjrosen/kai/internal/log"
)

// Process runs t.ProcessItem for a claimed item and records the result in
// stats. A panic is recovered into a *ProcessingError; any other error is
// wrapped into one.
func Process(ctx context.Context, rt *Runtime, t Type, cfg Config, item Item) (err error) {
	started := rt.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatLoop, "ProcessItem panicked", "agent", cfg.Name, "item", item.Name, "stack", string(debug.Stack()))
			err = &ProcessingError{Agent: cfg.Name, Item: item.Name, Err: fmt.Errorf("panic: %v", r)}
		}
		rt.record(ctx, cfg, item, rt.takeOutcome(item.RunID), err, started)
	}()

	return Failed(cfg, item, t.ProcessItem(ctx, rt, cfg, item))
}
