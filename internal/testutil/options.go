package testutil

import (
	"time"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/roster"
)

// AgentOption configures a hired agent.
type AgentOption func(*roster.Entry)

// WithTarget sets the worker a boss assigns to.
func WithTarget(target string) AgentOption {
	return func(e *roster.Entry) { e.Target = target }
}

// WithDescription sets the roster description.
func WithDescription(d string) AgentOption {
	return func(e *roster.Entry) { e.Description = d }
}

// ItemOption configures a work item.
type ItemOption func(*itemData)

// ModifiedAt sets the item's modification time, which decides claim order.
func ModifiedAt(t time.Time) ItemOption {
	return func(it *itemData) { it.modTime = t }
}

// QueueFunc picks a queue directory out of an agent's layout.
type QueueFunc func(paths.AgentPaths) string

// Standard queues.
var (
	Tasks   QueueFunc = func(a paths.AgentPaths) string { return a.Tasks }
	Ongoing QueueFunc = func(a paths.AgentPaths) string { return a.Ongoing }
	Reports QueueFunc = func(a paths.AgentPaths) string { return a.Reports }
)
