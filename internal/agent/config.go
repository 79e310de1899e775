// Package agent defines what an agent type is and how the scan loop talks
// to it: the immutable per-instance Config, the trigger evaluator, the Type
// interface with its Registry, and the Runtime handed to ProcessItem.
package agent

import (
	"fmt"
	"strings"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/round"
)

// Condition is the built-in trigger test applied to the watched queues.
type Condition int

const (
	// HasFiles fires when at least one watched queue holds an item.
	HasFiles Condition = iota
	// IsEmpty fires when every watched queue is empty or absent.
	IsEmpty
)

func (c Condition) String() string {
	switch c {
	case HasFiles:
		return "has_files"
	case IsEmpty:
		return "is_empty"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// ParseCondition accepts has_files or is_empty. Empty means HasFiles.
func ParseCondition(s string) (Condition, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "has_files":
		return HasFiles, nil
	case "is_empty":
		return IsEmpty, nil
	default:
		return HasFiles, fmt.Errorf("unknown trigger condition %q", s)
	}
}

// Snapshot maps each watched directory to the items it held when the
// trigger was evaluated.
type Snapshot map[string][]string

// Total counts items across all directories.
func (s Snapshot) Total() int {
	n := 0
	for _, items := range s {
		n += len(items)
	}
	return n
}

// Predicate is a custom trigger. It must not modify the filesystem.
type Predicate func(cfg Config, snap Snapshot) (bool, error)

// TriggerConfig decides when an instance has work.
type TriggerConfig struct {
	// Watch lists queue directories in priority order.
	Watch []string
	// WatchFunc adds directories that can only be known at evaluation time,
	// such as the queues of peers that were hired after startup.
	WatchFunc func(cfg Config) ([]string, error)
	Condition Condition
	// Custom replaces Condition when set.
	Custom Predicate
}

// Config is the immutable description of one agent instance.
type Config struct {
	Name      string
	Type      string
	Workspace paths.Workspace
	Paths     paths.AgentPaths

	Input      string
	Processing string
	Output     string
	Logs       string
	Stats      string

	Trigger        TriggerConfig
	Termination    round.Termination
	Label          string
	PromptTemplate string
}

// NewConfig fills the standard queue layout for instance of typ.
func NewConfig(ws paths.Workspace, typ Type, instance string) Config {
	p := ws.Agent(instance)
	return Config{
		Name:           instance,
		Type:           typ.Name(),
		Workspace:      ws,
		Paths:          p,
		Input:          p.Tasks,
		Processing:     p.Ongoing,
		Output:         p.Reports,
		Logs:           p.Logs,
		Stats:          p.Stats,
		Label:          FormatLabel(typ.LabelFormat(), instance),
		PromptTemplate: typ.PromptTemplate(),
	}
}

// InputQueue returns the queue new items arrive in.
func (c Config) InputQueue() queue.Queue { return queue.New(c.Input) }

// ProcessingQueue returns the queue claimed items live in.
func (c Config) ProcessingQueue() queue.Queue { return queue.New(c.Processing) }

// OutputQueue returns the queue reports are written to.
func (c Config) OutputQueue() queue.Queue { return queue.New(c.Output) }

// WatchDirs resolves the full watch list.
func (c Config) WatchDirs() ([]string, error) {
	dirs := append([]string(nil), c.Trigger.Watch...)
	if c.Trigger.WatchFunc != nil {
		extra, err := c.Trigger.WatchFunc(c)
		if err != nil {
			return dirs, err
		}
		dirs = append(dirs, extra...)
	}
	return dirs, nil
}

// FormatLabel substitutes {name} in a label format.
func FormatLabel(format, name string) string {
	if format == "" {
		return name
	}
	return strings.ReplaceAll(format, "{name}", name)
}
