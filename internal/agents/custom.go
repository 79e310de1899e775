package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
)

// DefaultCustomTemplate is used by definitions that name no template.
const DefaultCustomTemplate = "custom.md"

// Definition declares a user-defined agent type.
//
// Watch entries are queue names: a bare name such as "tasks" is one of the
// instance's own directories, "<agent>/<queue>" is another instance's. The
// default is ongoing/ then tasks/ for until_file_deleted types and tasks/
// alone for single_run types.
type Definition struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	Description string   `yaml:"description,omitempty" mapstructure:"description"`
	Label       string   `yaml:"label,omitempty" mapstructure:"label"`
	Template    string   `yaml:"template,omitempty" mapstructure:"template"`
	Termination string   `yaml:"termination,omitempty" mapstructure:"termination"`
	Condition   string   `yaml:"condition,omitempty" mapstructure:"condition"`
	Watch       []string `yaml:"watch,omitempty" mapstructure:"watch"`
}

// Custom is an agent type built from a Definition.
type Custom struct {
	def         Definition
	termination round.Termination
	condition   agent.Condition
}

var _ agent.Type = (*Custom)(nil)

// NewCustom validates def.
func NewCustom(def Definition) (*Custom, error) {
	def.Name = strings.TrimSpace(def.Name)
	if err := roster.ValidateName(def.Name); err != nil {
		return nil, fmt.Errorf("agent type: %w", err)
	}
	term, err := round.ParseTermination(def.Termination)
	if err != nil {
		return nil, fmt.Errorf("agent type %s: %w", def.Name, err)
	}
	cond, err := agent.ParseCondition(def.Condition)
	if err != nil {
		return nil, fmt.Errorf("agent type %s: %w", def.Name, err)
	}
	for _, w := range def.Watch {
		if w == "" || strings.Contains(w, "..") || filepath.IsAbs(w) {
			return nil, fmt.Errorf("agent type %s: invalid watch entry %q", def.Name, w)
		}
	}
	if def.Template == "" {
		def.Template = DefaultCustomTemplate
	}
	if def.Label == "" {
		def.Label = "🤖 {name}"
	}
	return &Custom{def: def, termination: term, condition: cond}, nil
}

// Definition returns the normalized definition.
func (c *Custom) Definition() Definition { return c.def }

func (c *Custom) Name() string           { return c.def.Name }
func (c *Custom) LabelFormat() string    { return c.def.Label }
func (c *Custom) PromptTemplate() string { return c.def.Template }

func (c *Custom) BuildConfig(ws paths.Workspace, instance string) agent.Config {
	cfg := agent.NewConfig(ws, c, instance)
	cfg.Termination = c.termination

	var watch []string
	for _, w := range c.def.Watch {
		watch = append(watch, resolveWatch(ws, cfg.Paths, w))
	}
	if len(watch) == 0 {
		if c.termination == round.UntilFileDeleted {
			watch = []string{cfg.Processing, cfg.Input}
		} else {
			watch = []string{cfg.Input}
		}
	}
	cfg.Trigger = agent.TriggerConfig{Watch: watch, Condition: c.condition}
	return cfg
}

func resolveWatch(ws paths.Workspace, own paths.AgentPaths, entry string) string {
	entry = filepath.Clean(entry)
	if !strings.Contains(entry, string(filepath.Separator)) {
		return filepath.Join(own.Base, entry)
	}
	return filepath.Join(ws.AgentsDir(), entry)
}

// ProcessItem behaves like a worker for until_file_deleted types. Single
// run types get one round, after which the item is filed under done/.
func (c *Custom) ProcessItem(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) error {
	if cfg.Termination == round.UntilFileDeleted {
		return runUntilDeleted(ctx, rt, cfg, item)
	}

	proc := cfg.ProcessingQueue()
	content, err := proc.Read(item.Name)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	workDir := rt.WorkDir(cfg, content)
	vars := taskVars(cfg, item, content)
	vars["workspace"] = workDir
	p, err := rt.Render(ctx, cfg, vars)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	out, err := rt.Drive(ctx, cfg, item, p, workDir)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	if proc.Exists(item.Name) {
		if _, err := proc.Release(item.Name, queue.New(cfg.Paths.Done)); err != nil {
			return agent.Failed(cfg, item, err)
		}
	}
	log.Info(log.CatLoop, "Item completed", "agent", cfg.Name, "item", item.Name, "rounds", out.Rounds())
	return nil
}
