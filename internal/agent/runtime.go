package agent

import (
	"bufio"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/round"
	"github.com/zjrosen/kai/internal/stats"
)

// Runtime carries the shared services ProcessItem needs.
type Runtime struct {
	Workspace paths.Workspace
	Executor  *round.Executor
	Prompts   *prompt.Loader
	Stats     stats.Recorder

	RetryInterval time.Duration
	MaxRounds     int
	ProgressNotes bool
	Verbose       bool
	// DefaultWorkDir is the backend working directory when the item does
	// not name one. Empty means the instance base directory.
	DefaultWorkDir string

	Now func() time.Time

	mu       sync.Mutex
	outcomes map[string]round.Outcome
}

func (rt *Runtime) now() time.Time {
	if rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

// Time returns the runtime's current time.
func (rt *Runtime) Time() time.Time { return rt.now() }

// Render renders cfg's prompt template. agent_name and base_dir are filled
// in unless vars already has them.
func (rt *Runtime) Render(ctx context.Context, cfg Config, vars prompt.Vars) (string, error) {
	if rt.Prompts == nil {
		return "", errors.New("no prompt loader configured")
	}
	all := prompt.Vars{
		"agent_name": cfg.Name,
		"base_dir":   cfg.Paths.Base,
		"workspace":  rt.Workspace.Root,
	}
	for k, v := range vars {
		all[k] = v
	}
	return rt.Prompts.Render(ctx, cfg.PromptTemplate, all)
}

// WorkDir picks the backend working directory for an item: a
// "workspace: <path>" line in content, then DefaultWorkDir, then the
// instance base directory.
func (rt *Runtime) WorkDir(cfg Config, content string) string {
	if dir := workspaceLine(content); dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(rt.Workspace.Root, dir)
		}
		return dir
	}
	if rt.DefaultWorkDir != "" {
		return rt.DefaultWorkDir
	}
	return cfg.Paths.Base
}

func workspaceLine(content string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimLeft(line, "-* ")
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "workspace") {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), "`\"'")
	}
	return ""
}

// Drive runs rounds for item under cfg's termination condition. The outcome
// is kept for Process to record.
func (rt *Runtime) Drive(ctx context.Context, cfg Config, item Item, firstPrompt, workDir string) (round.Outcome, error) {
	if rt.Executor == nil {
		return round.Outcome{}, errors.New("no round executor configured")
	}
	out, err := rt.Executor.Drive(ctx, round.Plan{
		Termination:   cfg.Termination,
		Item:          item.Path,
		Prompt:        firstPrompt,
		WorkDir:       workDir,
		Verbose:       rt.Verbose,
		RetryInterval: rt.RetryInterval,
		MaxRounds:     rt.MaxRounds,
		ProgressNotes: rt.ProgressNotes,
	})
	rt.mu.Lock()
	if rt.outcomes == nil {
		rt.outcomes = make(map[string]round.Outcome)
	}
	rt.outcomes[item.RunID] = out
	rt.mu.Unlock()
	return out, err
}

// takeOutcome returns and forgets the outcome Drive stored for runID.
func (rt *Runtime) takeOutcome(runID string) round.Outcome {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := rt.outcomes[runID]
	delete(rt.outcomes, runID)
	return out
}

func (rt *Runtime) record(ctx context.Context, cfg Config, item Item, out round.Outcome, runErr error, started time.Time) {
	rec := stats.ItemRecord{
		RunID:       item.RunID,
		Agent:       cfg.Name,
		AgentType:   cfg.Type,
		Item:        item.Name,
		Termination: cfg.Termination.String(),
		StartedAt:   started,
		FinishedAt:  rt.now(),
		Rounds:      stats.FromSession(out.Session),
	}
	switch {
	case runErr != nil:
		rec.Status = stats.StatusFailed
		rec.Error = runErr.Error()
	case out.Completed:
		rec.Status = stats.StatusCompleted
	default:
		rec.Status = stats.StatusIncomplete
	}

	sink := rt.Stats
	if sink == nil {
		sink = stats.Discard
	}
	// Stats must survive a cancelled item context.
	if err := sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn(log.CatStats, "Recording stats failed", "agent", cfg.Name, "item", item.Name, "error", err)
	}
}
