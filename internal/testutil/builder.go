// Package testutil builds kai workspaces for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
)

// Builder accumulates agents and work items and writes them in the correct
// order: agents first, then their items.
type Builder struct {
	t      *testing.T
	ws     paths.Workspace
	agents []roster.Entry
	items  []itemData
	types  map[string]string
}

// NewWorkspace creates a builder for a fresh workspace under t.TempDir().
func NewWorkspace(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, ws: paths.Workspace{Root: t.TempDir()}, types: map[string]string{}}
}

// WithAgent hires an instance with optional configuration.
func (b *Builder) WithAgent(name, typ string, opts ...AgentOption) *Builder {
	e := roster.Entry{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&e)
	}
	b.agents = append(b.agents, e)
	return b
}

// WithTask queues a new item in the agent's tasks/.
func (b *Builder) WithTask(agent, name, content string, opts ...ItemOption) *Builder {
	return b.withItem(agent, Tasks, name, content, opts)
}

// WithOngoing leaves an item in the agent's ongoing/, as a crash would.
func (b *Builder) WithOngoing(agent, name, content string, opts ...ItemOption) *Builder {
	return b.withItem(agent, Ongoing, name, content, opts)
}

// WithReport puts a report in the agent's reports/.
func (b *Builder) WithReport(agent, name, content string, opts ...ItemOption) *Builder {
	return b.withItem(agent, Reports, name, content, opts)
}

// WithCustomType writes a YAML agent type definition into custom_agents/.
func (b *Builder) WithCustomType(file, yaml string) *Builder {
	b.types[file] = yaml
	return b
}

func (b *Builder) withItem(agent string, q QueueFunc, name, content string, opts []ItemOption) *Builder {
	it := itemData{agent: agent, queue: q, name: name, content: content}
	for _, opt := range opts {
		opt(&it)
	}
	b.items = append(b.items, it)
	return b
}

// Build writes everything and returns the workspace.
func (b *Builder) Build() paths.Workspace {
	b.t.Helper()
	for file, def := range b.types {
		b.writeCustomType(file, def)
	}
	for _, e := range b.agents {
		require.NoError(b.t, roster.Hire(b.ws, e))
	}
	for _, it := range b.items {
		b.writeItem(it)
	}
	return b.ws
}

func (b *Builder) writeCustomType(file, def string) {
	b.t.Helper()
	dir := b.ws.CustomAgentsDir()
	require.NoError(b.t, os.MkdirAll(dir, 0o750))
	require.NoError(b.t, os.WriteFile(filepath.Join(dir, file), []byte(def), 0o600))
}

func (b *Builder) writeItem(it itemData) {
	b.t.Helper()
	q := queue.New(it.queue(b.ws.Agent(it.agent)))
	require.NoError(b.t, q.Write(it.name, it.content))
	if !it.modTime.IsZero() {
		require.NoError(b.t, os.Chtimes(q.Path(it.name), it.modTime, it.modTime))
	}
}

// itemData holds one work item to be written.
type itemData struct {
	agent   string
	queue   QueueFunc
	name    string
	content string
	modTime time.Time
}
