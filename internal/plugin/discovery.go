package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/agents"
	"github.com/zjrosen/kai/internal/log"
)

// Discover loads every definition in dir. Files that cannot be loaded are
// skipped; their errors are joined into the returned error.
func Discover(dir string) ([]DefinitionFile, error) {
	var (
		files []DefinitionFile
		errs  []error
	)

	yamlPaths, err := sourceFiles(dir, isYAMLFile)
	if err != nil {
		return nil, err
	}
	goPaths, err := sourceFiles(dir, func(name string) bool {
		return filepath.Ext(name) == ".go" && !strings.HasSuffix(name, "_test.go")
	})
	if err != nil {
		return nil, err
	}

	for _, p := range yamlPaths {
		defs, err := LoadYAMLFile(p)
		if err != nil {
			log.Warn(log.CatPlugin, "Skipping agent type file", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		files = append(files, defs...)
	}
	for _, p := range goPaths {
		defs, err := LoadGoFile(p)
		if err != nil {
			log.Warn(log.CatPlugin, "Skipping agent type script", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		files = append(files, defs...)
	}
	return files, errors.Join(errs...)
}

// Register discovers the definitions in dir and adds them to reg. Invalid
// definitions and names that are already taken are logged and skipped; the
// rest are registered. It returns the names that were added.
func Register(reg *agent.Registry, dir string) ([]string, error) {
	files, err := Discover(dir)
	errs := []error{err}

	var added []string
	for _, f := range files {
		t, err := agents.NewCustom(f.Definition)
		if err != nil {
			log.Warn(log.CatPlugin, "Invalid agent type", "path", f.Path, "error", err)
			errs = append(errs, fmt.Errorf("plugin: %s: %w", f.Path, err))
			continue
		}
		if err := reg.Register(t); err != nil {
			log.Warn(log.CatPlugin, "Agent type not registered", "type", t.Name(), "path", f.Path, "error", err)
			errs = append(errs, fmt.Errorf("plugin: %s: %w", f.Path, err))
			continue
		}
		log.Info(log.CatPlugin, "Registered custom agent type", "type", t.Name(), "path", f.Path)
		added = append(added, t.Name())
	}
	return added, errors.Join(errs...)
}
