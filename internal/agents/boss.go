package agents

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
)

// DefaultBossTarget is the worker a boss supervises when nothing else is
// configured.
const DefaultBossTarget = "sen"

// recentReports is how many of the target's reports the boss sees.
const recentReports = 5

// ErrEmptyTask is returned when the backend proposes nothing.
var ErrEmptyTask = errors.New("backend returned an empty task")

// Boss keeps one worker busy. Whenever the worker has drained its queues
// the boss asks the backend for the next task toward its goal and files it.
type Boss struct{}

var (
	_ agent.Type    = Boss{}
	_ agent.Claimer = Boss{}
)

func (Boss) Name() string           { return "boss" }
func (Boss) LabelFormat() string    { return "👔 {name}" }
func (Boss) PromptTemplate() string { return "boss.md" }

func (b Boss) BuildConfig(ws paths.Workspace, instance string) agent.Config {
	cfg := agent.NewConfig(ws, b, instance)
	cfg.Trigger = agent.TriggerConfig{
		Watch: []string{cfg.Input},
		WatchFunc: func(cfg agent.Config) ([]string, error) {
			t := cfg.Workspace.Agent(BossTarget(cfg))
			return []string{t.Tasks, t.Ongoing}, nil
		},
		Custom: bossTrigger,
	}
	cfg.Termination = round.SingleRun
	return cfg
}

// bossTrigger fires on an explicit goal item, or when the target worker
// has nothing queued and nothing in progress.
func bossTrigger(cfg agent.Config, snap agent.Snapshot) (bool, error) {
	if len(snap[cfg.Input]) > 0 {
		return true, nil
	}
	t := cfg.Workspace.Agent(BossTarget(cfg))
	return len(snap[t.Tasks]) == 0 && len(snap[t.Ongoing]) == 0, nil
}

// BossTarget resolves the supervised worker: the roster descriptor's
// target, then a "worker: <name>" line in config.md, then DefaultBossTarget.
func BossTarget(cfg agent.Config) string {
	if e, err := roster.Get(cfg.Workspace, cfg.Name); err == nil && e.Target != "" {
		return e.Target
	}
	if content, err := readOptional(cfg.Paths.BossConfig); err == nil {
		if name := configValue(content, "worker"); name != "" {
			return name
		}
	}
	return DefaultBossTarget
}

func configValue(content, key string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimLeft(strings.TrimSpace(sc.Text()), "-* ")
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.Trim(strings.TrimSpace(v), "`\"'")
		}
	}
	return ""
}

// Claim takes the boss's own goal item if there is one, otherwise writes a
// trigger item recording that the target drained.
func (Boss) Claim(_ context.Context, rt *agent.Runtime, cfg agent.Config) (agent.Item, error) {
	item, err := agent.ClaimNext(rt, cfg)
	if !errors.Is(err, agent.ErrNothingToClaim) {
		return item, err
	}
	target := BossTarget(cfg)
	content := fmt.Sprintf("# Trigger\n\nWorker `%s` has no queued or ongoing tasks as of %s.\n",
		target, rt.Time().Format(time.RFC3339))
	return agent.Synthesize(rt, cfg, content)
}

// ProcessItem asks for one task and writes it into the target's tasks/
// along with a summary in the boss's reports/.
func (Boss) ProcessItem(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) (err error) {
	proc := cfg.ProcessingQueue()
	trigger, err := proc.Read(item.Name)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	// Nothing watches ongoing/ for synthetic triggers, so a failed one must not stay.
	defer func() {
		if err != nil && item.Synthetic {
			_ = proc.Remove(item.Name)
		}
	}()

	targetName := BossTarget(cfg)
	target := cfg.Workspace.Agent(targetName)
	if _, err := roster.Get(cfg.Workspace, targetName); err != nil {
		log.Warn(log.CatLoop, "Boss target has no descriptor", "agent", cfg.Name, "target", targetName)
	}

	goal, err := readOptional(cfg.Paths.Goal)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	summary, err := completedSummary(target)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	p, err := rt.Render(ctx, cfg, prompt.Vars{
		"goal":              orNone(goal),
		"worker_name":       targetName,
		"worker_tasks_dir":  target.Tasks,
		"completed_summary": summary,
		"trigger":           trigger,
		"memory_file":       cfg.Paths.Memory,
	})
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	out, err := rt.Drive(ctx, cfg, item, p, cfg.Workspace.Root)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	defer func() {
		if err := proc.Remove(item.Name); err != nil {
			log.Warn(log.CatLoop, "Could not remove boss item", "agent", cfg.Name, "item", item.Name, "error", err)
		}
	}()

	task := strings.TrimSpace(out.Session.Last().Result)
	if task == "" {
		return agent.Failed(cfg, item, ErrEmptyTask)
	}

	now := rt.Time()
	stamp := now.Format(stampFormat)
	taskName, err := writeUnique(queue.New(target.Tasks), fmt.Sprintf("boss-%s-%s.md", cfg.Name, stamp), task+"\n", now)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	report := fmt.Sprintf("# Boss summary\n\n- Boss: %s\n- Worker: %s\n- Trigger: %s\n- Task: %s\n- Time: %s\n\n## Task title\n\n%s\n",
		cfg.Name, targetName, item.Name, taskName, now.Format(time.RFC3339), firstLine(task))
	if _, err := writeUnique(cfg.OutputQueue(), stamp+"-summary.md", report, now); err != nil {
		log.Warn(log.CatLoop, "Could not write boss summary", "agent", cfg.Name, "error", err)
	}

	remember(cfg, now, "assigned %s to %s: %s", taskName, targetName, firstLine(task))
	log.Info(log.CatLoop, "Task assigned", "agent", cfg.Name, "worker", targetName, "task", taskName)
	return nil
}

func completedSummary(target paths.AgentPaths) (string, error) {
	names, err := queue.New(target.Reports).ListSuffix("-report.md")
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "(no reports yet)", nil
	}
	if len(names) > recentReports {
		names = names[len(names)-recentReports:]
	}
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return b.String(), nil
}
