package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/agents"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/round"
)

const goPluginSource = `package main

func AgentTypes() []map[string]any {
	return []map[string]any{
		{
			"name":        "translator",
			"template":    "translator.md",
			"termination": "single_run",
			"watch":       []string{"tasks"},
		},
	}
}
`

const goPluginWithError = `package main

import "errors"

func AgentTypes() ([]map[string]any, error) {
	return nil, errors.New("not today")
}
`

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestParseYAML(t *testing.T) {
	defs, err := ParseYAML([]byte("name: reviewer\ntermination: single_run\n"))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "reviewer", defs[0].Name)

	defs, err = ParseYAML([]byte("- name: a\n- name: b\n  condition: is_empty\n"))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "is_empty", defs[1].Condition)

	_, err = ParseYAML([]byte("   "))
	require.Error(t, err)
	_, err = ParseYAML([]byte("- label: nameless\n"))
	require.Error(t, err)
	_, err = ParseYAML([]byte("just a string"))
	require.Error(t, err)
}

func TestLoadGoFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "translator.go", goPluginSource)

	defs, err := LoadGoFile(filepath.Join(dir, "translator.go"))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "translator", defs[0].Definition.Name)
	require.Equal(t, []string{"tasks"}, defs[0].Definition.Watch)

	write(t, dir, "broken.go", "package main\n")
	_, err = LoadGoFile(filepath.Join(dir, "broken.go"))
	require.Error(t, err, "missing AgentTypes function")

	write(t, dir, "erroring.go", goPluginWithError)
	_, err = LoadGoFile(filepath.Join(dir, "erroring.go"))
	require.ErrorContains(t, err, "not today")
}

func TestDiscover_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "reviewer.yaml", "name: reviewer\ntemplate: reviewer.md\n")
	write(t, dir, "pair.yml", "- name: tester\n- name: writer\n")
	write(t, dir, "bad.yaml", "name: [unclosed\n")
	write(t, dir, "translator.go", goPluginSource)
	write(t, dir, "notes.txt", "ignored")

	files, err := Discover(dir)
	require.Error(t, err, "broken files are reported")

	var names []string
	for _, f := range files {
		names = append(names, f.Definition.Name)
	}
	require.ElementsMatch(t, []string{"reviewer", "tester", "writer", "translator"}, names)
}

func TestDiscover_MissingDir(t *testing.T) {
	files, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestRegister(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", "name: reviewer\ntermination: single_run\n")
	write(t, dir, "b.yaml", "name: worker\n")
	write(t, dir, "c.yaml", "name: reviewer\n")
	write(t, dir, "d.yaml", "name: odd\ntermination: sometimes\n")

	reg := agent.NewRegistry()
	require.NoError(t, agents.RegisterBuiltins(reg))

	added, err := Register(reg, dir)
	require.ErrorIs(t, err, agent.ErrDuplicateAgentTypeName)
	require.Equal(t, []string{"reviewer"}, added)

	worker, err := reg.Get("worker")
	require.NoError(t, err)
	require.IsType(t, agents.Worker{}, worker, "built-ins keep their name")

	reviewer, err := reg.Get("reviewer")
	require.NoError(t, err)
	cfg := reviewer.BuildConfig(paths.Workspace{Root: t.TempDir()}, "r1")
	require.Equal(t, round.SingleRun, cfg.Termination)

	_, err = reg.Get("odd")
	require.ErrorIs(t, err, agent.ErrUnknownType)
}
