// Package plugin discovers user-defined agent types in
// <root>/Kai/custom_agents. Definitions come from YAML files or from Go
// scripts evaluated with yaegi. Discovery runs once at startup.
package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kai/internal/agents"
)

// DefinitionFile pairs a definition with where it came from.
type DefinitionFile struct {
	Definition agents.Definition
	Path       string
}

// ParseYAML decodes a payload holding either one definition or a list.
func ParseYAML(data []byte) ([]agents.Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("definition payload is empty")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("definition payload is empty")
	}

	var defs []agents.Definition
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&defs); err != nil {
			return nil, fmt.Errorf("decode definitions: %w", err)
		}
	case yaml.MappingNode:
		var def agents.Definition
		if err := root.Decode(&def); err != nil {
			return nil, fmt.Errorf("decode definition: %w", err)
		}
		defs = append(defs, def)
	default:
		return nil, errors.New("definition must be a mapping or a list of mappings")
	}
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("definition[%d] has no name", i)
		}
	}
	return defs, nil
}

// LoadYAMLFile reads one *.yaml or *.yml file.
func LoadYAMLFile(path string) ([]DefinitionFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the custom agents directory listing
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	defs, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	files := make([]DefinitionFile, 0, len(defs))
	for i, d := range defs {
		p := filepath.Clean(path)
		if len(defs) > 1 {
			p = fmt.Sprintf("%s#%d", p, i+1)
		}
		files = append(files, DefinitionFile{Definition: d, Path: p})
	}
	return files, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// sourceFiles lists the regular files in dir accepted by keep, sorted.
// A missing directory is no plugins.
func sourceFiles(dir string, keep func(string) bool) ([]string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !keep(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
