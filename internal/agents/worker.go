package agents

import (
	"context"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/round"
)

// Worker executes tasks. Each task is one conversation that lasts until
// the backend deletes the task file from ongoing/.
type Worker struct{}

var _ agent.Type = Worker{}

func (Worker) Name() string           { return "worker" }
func (Worker) LabelFormat() string    { return "👷 {name}" }
func (Worker) PromptTemplate() string { return "worker.md" }

// BuildConfig watches ongoing/ before tasks/ so a task interrupted by a
// crash is finished before new ones start.
func (w Worker) BuildConfig(ws paths.Workspace, instance string) agent.Config {
	cfg := agent.NewConfig(ws, w, instance)
	cfg.Trigger = agent.TriggerConfig{
		Watch:     []string{cfg.Processing, cfg.Input},
		Condition: agent.HasFiles,
	}
	cfg.Termination = round.UntilFileDeleted
	return cfg
}

func (Worker) ProcessItem(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) error {
	return runUntilDeleted(ctx, rt, cfg, item)
}
