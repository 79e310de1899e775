package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kai/internal/paths"
)

func TestHireGetList(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}

	require.NoError(t, Hire(ws, Entry{Name: "sen", Type: "worker", Description: "backend fixes"}))
	require.NoError(t, Hire(ws, Entry{Name: "boss", Type: "boss", Target: "sen"}))

	for _, dir := range ws.Agent("sen").Queues() {
		require.DirExists(t, dir)
	}

	e, err := Get(ws, "boss")
	require.NoError(t, err)
	require.Equal(t, "sen", e.Target)
	require.False(t, e.CreatedAt.IsZero())

	all, err := List(ws)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "boss", all[0].Name)

	workers, err := OfType(ws, "worker")
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, "sen", workers[0].Name)
}

func TestHire_Rejects(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}

	require.ErrorIs(t, Hire(ws, Entry{Name: "../evil", Type: "worker"}), ErrInvalidName)
	require.Error(t, Hire(ws, Entry{Name: "notype"}))

	require.NoError(t, Hire(ws, Entry{Name: "sen", Type: "worker"}))
	require.ErrorIs(t, Hire(ws, Entry{Name: "sen", Type: "worker"}), ErrExists)
}

func TestList_ToleratesMissingAndBrokenDescriptors(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}

	all, err := List(ws)
	require.NoError(t, err, "missing agents dir is an empty roster")
	require.Empty(t, all)

	require.NoError(t, Hire(ws, Entry{Name: "sen", Type: "worker"}))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.AgentsDir(), "bare"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.AgentsDir(), "broken"), 0o750))
	require.NoError(t, os.WriteFile(ws.Agent("broken").Descriptor, []byte("name: [unclosed"), 0o600))

	all, err = List(ws)
	require.NoError(t, err)
	require.Len(t, all, 1)

	names, err := Names(ws)
	require.NoError(t, err)
	require.Equal(t, []string{"bare", "broken", "sen"}, names)
}

func TestFire(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	require.NoError(t, Hire(ws, Entry{Name: "sen", Type: "worker"}))

	require.NoError(t, Fire(ws, "sen"))
	require.DirExists(t, ws.Agent("sen").Tasks, "queues survive")
	_, err := Get(ws, "sen")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, Fire(ws, "sen"), ErrNotFound)
}
