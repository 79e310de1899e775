package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
)

func TestBuilder_WithAgent(t *testing.T) {
	ws := NewWorkspace(t).
		WithAgent("sen", "worker").
		WithAgent("chief", "boss", WithTarget("sen"), WithDescription("runs sen")).
		Build()

	entries, err := roster.List(ws)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	chief, err := roster.Get(ws, "chief")
	require.NoError(t, err)
	require.Equal(t, "boss", chief.Type)
	require.Equal(t, "sen", chief.Target)
	require.Equal(t, "runs sen", chief.Description)
}

func TestBuilder_WithItems(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ws := NewWorkspace(t).
		WithAgent("sen", "worker").
		WithTask("sen", "a.md", "first").
		WithOngoing("sen", "b.md", "second").
		WithReport("sen", "a-report.md", "done", ModifiedAt(old)).
		Build()

	a := ws.Agent("sen")
	got, err := queue.New(a.Tasks).Read("a.md")
	require.NoError(t, err)
	require.Equal(t, "first", got)
	require.True(t, queue.New(a.Ongoing).Exists("b.md"))

	info, err := os.Stat(queue.New(a.Reports).Path("a-report.md"))
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(old))
}

func TestBuilder_WithCustomType(t *testing.T) {
	ws := NewWorkspace(t).WithCustomType("lint.yaml", "name: lint\n").Build()
	data, err := os.ReadFile(ws.CustomAgentsDir() + "/lint.yaml")
	require.NoError(t, err)
	require.Equal(t, "name: lint\n", string(data))
}
