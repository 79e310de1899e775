// Package paths provides the on-disk layout of a kai workspace.
//
// Everything lives under <root>/Kai:
//
//	Kai/
//	  agents/<name>/{tasks,ongoing,reports,logs,stats,...}
//	  custom_agents/   user-defined agent types
//	  custom_prompts/  prompt template overrides
//
// All functions here build path values only; none of them touch the disk
// except ResolveWorkspace, which stats its input.
package paths

import (
	"os"
	"path/filepath"
)

// BaseDirName is the directory under the workspace root that holds kai state.
const BaseDirName = "Kai"

// Workspace is the root of one kai installation.
type Workspace struct {
	Root string
}

// ResolveWorkspace normalizes user input into a Workspace.
//
//   - "" -> current directory
//   - "/path/to/project" -> "/path/to/project"
//   - "/path/to/project/Kai" -> "/path/to/project"
func ResolveWorkspace(path string) Workspace {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if filepath.Base(path) == BaseDirName {
		if info, err := os.Stat(filepath.Join(path, "agents")); err == nil && info.IsDir() {
			return Workspace{Root: filepath.Dir(path)}
		}
	}
	return Workspace{Root: path}
}

// Base returns <root>/Kai.
func (w Workspace) Base() string { return filepath.Join(w.Root, BaseDirName) }

// AgentsDir returns the directory holding one subdirectory per agent instance.
func (w Workspace) AgentsDir() string { return filepath.Join(w.Base(), "agents") }

// CustomAgentsDir returns the plugin discovery directory.
func (w Workspace) CustomAgentsDir() string { return filepath.Join(w.Base(), "custom_agents") }

// CustomPromptsDir returns the prompt override directory.
func (w Workspace) CustomPromptsDir() string { return filepath.Join(w.Base(), "custom_prompts") }

// Agent returns the layout of the named instance.
func (w Workspace) Agent(name string) AgentPaths {
	base := filepath.Join(w.AgentsDir(), name)
	return AgentPaths{
		Name:       name,
		Base:       base,
		Tasks:      filepath.Join(base, "tasks"),
		Ongoing:    filepath.Join(base, "ongoing"),
		Reports:    filepath.Join(base, "reports"),
		Logs:       filepath.Join(base, "logs"),
		Stats:      filepath.Join(base, "stats"),
		Assigned:   filepath.Join(base, "assigned"),
		Solved:     filepath.Join(base, "solved-report"),
		Unsolved:   filepath.Join(base, "unsolved-report"),
		Done:       filepath.Join(base, "done"),
		Memory:     filepath.Join(base, "memory.md"),
		Goals:      filepath.Join(base, "goals.md"),
		Goal:       filepath.Join(base, "goal.md"),
		BossConfig: filepath.Join(base, "config.md"),
		Descriptor: filepath.Join(base, "agent.yaml"),
	}
}

// AgentPaths is the layout of one agent instance. Not every agent type uses
// every queue.
type AgentPaths struct {
	Name string
	Base string

	Tasks   string
	Ongoing string
	Reports string
	Logs    string
	Stats   string

	Assigned string // secretary
	Solved   string // recycler
	Unsolved string // recycler
	Done     string // single-run custom types

	Memory     string
	Goals      string
	Goal       string
	BossConfig string
	Descriptor string
}

// LogFile returns the instance's scanner log path.
func (a AgentPaths) LogFile() string { return filepath.Join(a.Logs, a.Name+".log") }

// Ledger returns the instance's sqlite stats database path.
func (a AgentPaths) Ledger() string { return filepath.Join(a.Stats, "ledger.db") }

// Queues lists the standard queue directories in a stable order.
func (a AgentPaths) Queues() []string {
	return []string{a.Tasks, a.Ongoing, a.Reports, a.Logs, a.Stats}
}
