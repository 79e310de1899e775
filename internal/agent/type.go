package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
)

// Type is an agent role. Implementations are stateless; everything
// instance-specific lives in the Config.
type Type interface {
	// Name is the registry key, e.g. "worker".
	Name() string
	// LabelFormat is the display label with a {name} placeholder.
	LabelFormat() string
	// PromptTemplate names the first-round template.
	PromptTemplate() string
	// BuildConfig lays out instance. It must not touch the disk.
	BuildConfig(ws paths.Workspace, instance string) Config
	// ProcessItem runs a claimed item to completion. Unrecoverable
	// conditions come back as *ProcessingError.
	ProcessItem(ctx context.Context, rt *Runtime, cfg Config, item Item) error
}

// Claimer is implemented by types whose items do not come from a plain move
// out of their own watched queues.
type Claimer interface {
	Claim(ctx context.Context, rt *Runtime, cfg Config) (Item, error)
}

// Item is a claimed work item.
type Item struct {
	// Name is the file name inside the processing queue.
	Name string
	// Path is the full path of the claimed file.
	Path string
	// Source is the directory it was claimed from.
	Source string
	// Origin is the instance that produced it, when that is not cfg itself.
	Origin string
	// Resumed is set for items found already in processing.
	Resumed bool
	// Synthetic is set for items the claimer wrote itself.
	Synthetic bool
	ClaimedAt time.Time
	RunID     string
}

func newItem(proc queue.Queue, name, source string, now time.Time) Item {
	return Item{
		Name:      name,
		Path:      proc.Path(name),
		Source:    source,
		ClaimedAt: now,
		RunID:     uuid.NewString(),
	}
}

// Claim takes the next item for cfg, through the type's Claimer when it has
// one.
func Claim(ctx context.Context, rt *Runtime, t Type, cfg Config) (Item, error) {
	if c, ok := t.(Claimer); ok {
		return c.Claim(ctx, rt, cfg)
	}
	if cfg.Trigger.Condition == IsEmpty && cfg.Trigger.Custom == nil {
		return Synthesize(rt, cfg, fmt.Sprintf("Watched queues drained at %s.\n", rt.now().Format(time.RFC3339)))
	}
	return ClaimNext(rt, cfg)
}

// ClaimNext walks cfg's watched queues in order and takes the oldest item
// of the first non-empty one. Items already in the processing queue are
// returned in place, marked Resumed.
//
// A lost race returns an error matching ErrClaimRace; nothing claimable
// returns ErrNothingToClaim.
func ClaimNext(rt *Runtime, cfg Config) (Item, error) {
	proc := cfg.ProcessingQueue()
	for _, dir := range cfg.Trigger.Watch {
		src := queue.New(dir)
		names, err := src.List()
		if err != nil {
			return Item{}, err
		}
		if len(names) == 0 {
			continue
		}

		name := names[0]
		final, err := src.Claim(name, proc)
		if err != nil {
			return Item{}, err
		}
		item := newItem(proc, final, dir, rt.now())
		item.Resumed = filepath.Clean(dir) == filepath.Clean(cfg.Processing)
		return item, nil
	}
	return Item{}, ErrNothingToClaim
}

// Synthesize writes a trigger-<ts>.md item straight into the processing
// queue. It is used by types that act on an absence of work.
func Synthesize(rt *Runtime, cfg Config, content string) (Item, error) {
	now := rt.now()
	name := fmt.Sprintf("trigger-%s.md", now.Format("20060102-150405"))
	proc := cfg.ProcessingQueue()
	if proc.Exists(name) {
		name = fmt.Sprintf("trigger-%s.md", now.Format("20060102-150405.000000000"))
	}
	if err := proc.Write(name, content); err != nil {
		return Item{}, err
	}
	item := newItem(proc, name, "", now)
	item.Synthetic = true
	return item, nil
}
