package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
)

// Secretary turns free-form requests into worker tasks. The backend does
// the writing; the secretary supplies memory, goals and the worker roster.
type Secretary struct{}

var _ agent.Type = Secretary{}

func (Secretary) Name() string           { return "secretary" }
func (Secretary) LabelFormat() string    { return "📝 {name}" }
func (Secretary) PromptTemplate() string { return "secretary.md" }

func (s Secretary) BuildConfig(ws paths.Workspace, instance string) agent.Config {
	cfg := agent.NewConfig(ws, s, instance)
	cfg.Trigger = agent.TriggerConfig{
		Watch:     []string{cfg.Input},
		Condition: agent.HasFiles,
	}
	cfg.Termination = round.SingleRun
	return cfg
}

// ProcessItem runs one round and files the request under assigned/ whatever
// the outcome.
func (Secretary) ProcessItem(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) (err error) {
	defer func() {
		if _, mvErr := cfg.ProcessingQueue().Release(item.Name, queue.New(cfg.Paths.Assigned)); mvErr != nil {
			log.Warn(log.CatLoop, "Could not file request", "agent", cfg.Name, "item", item.Name, "error", mvErr)
			if err == nil {
				err = agent.Failed(cfg, item, mvErr)
			}
		}
	}()

	request, err := cfg.ProcessingQueue().Read(item.Name)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	memory, err := readOptional(cfg.Paths.Memory)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	goals, err := readOptional(cfg.Paths.Goals)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	known, err := knownWorkers(cfg.Workspace)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	p, err := rt.Render(ctx, cfg, prompt.Vars{
		"memory":       orNone(memory),
		"known_agents": known,
		"goals":        orNone(goals),
		"request":      request,
		"memory_file":  cfg.Paths.Memory,
	})
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	out, err := rt.Drive(ctx, cfg, item, p, cfg.Workspace.Root)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	decision := firstLine(out.Session.Last().Result)
	if decision == "" {
		decision = "(no reply)"
	}
	remember(cfg, rt.Time(), "%s: %s", item.Name, decision)
	log.Info(log.CatLoop, "Request handled", "agent", cfg.Name, "item", item.Name, "decision", decision)
	return nil
}

func knownWorkers(ws paths.Workspace) (string, error) {
	workers, err := roster.OfType(ws, Worker{}.Name())
	if err != nil {
		return "", err
	}
	if len(workers) == 0 {
		return "(no workers hired)", nil
	}
	var b strings.Builder
	for _, w := range workers {
		fmt.Fprintf(&b, "- `%s`: tasks go to `%s`", w.Name, ws.Agent(w.Name).Tasks)
		if w.Description != "" {
			fmt.Fprintf(&b, " (%s)", w.Description)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
