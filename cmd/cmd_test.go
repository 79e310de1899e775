package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/backend"
	"github.com/zjrosen/kai/internal/config"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/testutil"
)

func newWorkspace(t *testing.T) paths.Workspace {
	t.Helper()
	return paths.Workspace{Root: t.TempDir()}
}

func registry(t *testing.T, ws paths.Workspace) *agent.Registry {
	t.Helper()
	reg, err := loadRegistry(ws)
	require.NoError(t, err)
	require.True(t, reg.Sealed())
	return reg
}

func TestHire_ValidatesType(t *testing.T) {
	ws := newWorkspace(t)
	reg := registry(t, ws)
	var out bytes.Buffer

	require.NoError(t, runHire(ws, reg, roster.Entry{Name: "sen", Type: "worker"}, &out))
	require.Contains(t, out.String(), "Hired 👷 sen")

	err := runHire(ws, reg, roster.Entry{Name: "x", Type: "astronaut"}, &out)
	require.ErrorIs(t, err, agent.ErrUnknownType)

	err = runHire(ws, reg, roster.Entry{Name: "sen", Type: "worker"}, &out)
	require.ErrorIs(t, err, roster.ErrExists)

	err = runHire(ws, reg, roster.Entry{Name: "chief", Type: "boss", Target: "../etc"}, &out)
	require.ErrorIs(t, err, roster.ErrInvalidName)
}

func TestTypes_ListsCustomTypes(t *testing.T) {
	ws := testutil.NewWorkspace(t).
		WithCustomType("reviewer.yaml", "name: reviewer\ntermination: single_run\n").
		Build()

	var out bytes.Buffer
	require.NoError(t, runTypes(ws, registry(t, ws), &out))
	for _, s := range []string{"worker", "secretary", "boss", "recycler", "reviewer", "custom", "single_run", "until_file_deleted"} {
		require.Contains(t, out.String(), s)
	}
}

func TestAgents(t *testing.T) {
	ws := newWorkspace(t)
	var out bytes.Buffer
	require.NoError(t, runAgents(ws, &out))
	require.Contains(t, out.String(), "No agents hired")

	ws = testutil.NewWorkspace(t).
		WithAgent("sen", "worker").
		WithAgent("chief", "boss", testutil.WithTarget("sen")).
		WithTask("sen", "a.md", "x").
		Build()

	out.Reset()
	require.NoError(t, runAgents(ws, &out))
	require.Contains(t, out.String(), "chief")
	require.Contains(t, out.String(), "boss")
	require.Contains(t, out.String(), "sen")
	require.Contains(t, out.String(), "1")
}

func TestTask_DefaultsToFirstSecretary(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	_, err := runTask(ws, "", "fix it", now)
	require.ErrorIs(t, err, ErrNoRecipient)

	require.NoError(t, roster.Hire(ws, roster.Entry{Name: "mia", Type: "secretary"}))
	require.NoError(t, roster.Hire(ws, roster.Entry{Name: "sen", Type: "worker"}))

	path, err := runTask(ws, "", "  fix it\n", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Agent("mia").Tasks, "task-20250601-093000.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "fix it\n", string(data))

	second, err := runTask(ws, "", "again", now)
	require.NoError(t, err)
	require.NotEqual(t, path, second)

	direct, err := runTask(ws, "sen", "bump go", now)
	require.NoError(t, err)
	require.Equal(t, ws.Agent("sen").Tasks, filepath.Dir(direct))

	_, err = runTask(ws, "ghost", "x", now)
	require.ErrorIs(t, err, roster.ErrNotFound)
	_, err = runTask(ws, "sen", "   ", now)
	require.Error(t, err)
}

func TestRetry_RequeuesOngoing(t *testing.T) {
	ws := testutil.NewWorkspace(t).
		WithAgent("mia", "secretary").
		WithOngoing("mia", "req.md", "x").
		Build()
	a := ws.Agent("mia")

	moved, err := runRetry(ws, "mia")
	require.NoError(t, err)
	require.Equal(t, []string{"req.md"}, moved)
	require.True(t, queue.New(a.Tasks).Exists("req.md"))

	moved, err = runRetry(ws, "mia")
	require.NoError(t, err)
	require.Empty(t, moved)

	_, err = runRetry(ws, "ghost")
	require.ErrorIs(t, err, roster.ErrNotFound)
}

func TestEnsureHired(t *testing.T) {
	ws := newWorkspace(t)
	reg := registry(t, ws)

	_, err := ensureHired(ws, reg, "sen", "")
	require.ErrorContains(t, err, "not hired")

	_, err = ensureHired(ws, reg, "sen", "astronaut")
	require.ErrorIs(t, err, agent.ErrUnknownType)

	e, err := ensureHired(ws, reg, "sen", "worker")
	require.NoError(t, err)
	require.Equal(t, "worker", e.Type)

	e, err = ensureHired(ws, reg, "sen", "")
	require.NoError(t, err)
	require.Equal(t, "worker", e.Type)

	_, err = ensureHired(ws, reg, "sen", "boss")
	require.ErrorContains(t, err, "not a boss")
}

// finishing completes every task by deleting it from ongoing/.
func finishing(ws paths.Workspace, name string) backend.Backend {
	return backend.Func(func(_ context.Context, _ backend.Request) (backend.Response, error) {
		q := queue.New(ws.Agent(name).Ongoing)
		items, _ := q.List()
		for _, it := range items {
			_ = q.Remove(it)
		}
		return backend.Response{SessionID: "s1", Text: "done"}, nil
	})
}

func TestStart_OnceThenStats(t *testing.T) {
	ws := testutil.NewWorkspace(t).
		WithAgent("sen", "worker").
		WithTask("sen", "fix-bug.md", "Fix the bug").
		Build()
	c := config.Defaults()

	var out bytes.Buffer
	err := runStart(context.Background(), ws, c, startOptions{
		Name:    "sen",
		Once:    true,
		Out:     &out,
		Backend: finishing(ws, "sen"),
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "👷 sen started")
	require.Contains(t, out.String(), "claimed fix-bug.md")
	require.Contains(t, out.String(), "finished fix-bug.md")
	require.Contains(t, out.String(), "1 completed, 0 failed")

	_, err = os.Stat(ws.Agent("sen").LogFile())
	require.NoError(t, err, "the instance log is written")

	out.Reset()
	require.NoError(t, runStats(context.Background(), ws, "sen", 10, &out))
	require.Contains(t, out.String(), "fix-bug.md")
	require.Contains(t, out.String(), "completed")

	out.Reset()
	require.NoError(t, runStatsItem(ws, "sen", "fix-bug", true, &out))
	require.True(t, strings.HasPrefix(out.String(), "# Stats: fix-bug"))

	require.Error(t, runStatsItem(ws, "sen", "nope", true, &out))
}

func TestStart_HiresWithTypeFlag(t *testing.T) {
	ws := testutil.NewWorkspace(t).
		WithCustomType("lint.yaml", "name: lint\ntermination: single_run\n").
		Build()

	var out bytes.Buffer
	err := runStart(context.Background(), ws, config.Defaults(), startOptions{
		Name:    "lint1",
		Type:    "lint",
		Once:    true,
		Out:     &out,
		Backend: finishing(ws, "lint1"),
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "0 completed, 0 failed")

	e, err := roster.Get(ws, "lint1")
	require.NoError(t, err)
	require.Equal(t, "lint", e.Type)
}

func TestStats_NoLedger(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, roster.Hire(ws, roster.Entry{Name: "sen", Type: "worker"}))
	var out bytes.Buffer
	require.NoError(t, runStats(context.Background(), ws, "sen", 10, &out))
	require.Contains(t, out.String(), "No stats ledger")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".kai", "config.yaml")
	var out bytes.Buffer

	require.NoError(t, runConfigInit(path, false, &out))
	require.Contains(t, out.String(), "Wrote")

	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o600))
	out.Reset()
	require.NoError(t, runConfigInit(path, false, &out))
	require.Contains(t, out.String(), "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "debug: true\n", string(data))

	require.NoError(t, runConfigInit(path, true, &out))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfigTemplate(), string(data))
}
