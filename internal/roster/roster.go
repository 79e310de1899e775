// Package roster manages agent instance descriptors.
//
// Each instance directory carries an agent.yaml naming its type. The roster
// is whatever is on disk right now: it is rebuilt by listing the agents
// directory on every call, so instances can come and go between polls.
package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
)

var (
	// ErrExists is returned when hiring a name that is already taken.
	ErrExists = errors.New("agent already exists")
	// ErrNotFound is returned for an unknown instance.
	ErrNotFound = errors.New("agent not found")
	// ErrInvalidName is returned for names that are not safe directory names.
	ErrInvalidName = errors.New("invalid agent name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Entry is one instance descriptor.
type Entry struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`
	Description string    `yaml:"description,omitempty"`
	Target      string    `yaml:"target,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// ValidateName checks that name can be used as an instance directory.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// List returns every instance with a readable descriptor, sorted by name.
// Missing agents directories and broken descriptors are skipped.
func List(ws paths.Workspace) ([]Entry, error) {
	dirs, err := os.ReadDir(ws.AgentsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		e, err := Get(ws, d.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Warn(log.CatRoster, "Skipping unreadable descriptor", "agent", d.Name(), "error", err)
			}
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Names lists instance directory names, with or without descriptors.
func Names(ws paths.Workspace) ([]string, error) {
	dirs, err := os.ReadDir(ws.AgentsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	var names []string
	for _, d := range dirs {
		if d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// OfType returns the instances of the given type.
func OfType(ws paths.Workspace, typ string) ([]Entry, error) {
	all, err := List(ws)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get reads one descriptor.
func Get(ws paths.Workspace, name string) (Entry, error) {
	var e Entry
	data, err := os.ReadFile(ws.Agent(name).Descriptor) //nolint:gosec // G304: path is built from the workspace layout
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return e, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return e, fmt.Errorf("reading descriptor for %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("parsing descriptor for %s: %w", name, err)
	}
	if e.Name == "" {
		e.Name = name
	}
	return e, nil
}

// Hire writes a new descriptor and creates the instance's standard queues.
func Hire(ws paths.Workspace, e Entry) error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.Type == "" {
		return fmt.Errorf("agent %s: type is required", e.Name)
	}
	a := ws.Agent(e.Name)
	if _, err := os.Stat(a.Descriptor); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, e.Name)
	}

	for _, dir := range a.Queues() {
		if err := queue.New(dir).Ensure(); err != nil {
			return err
		}
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding descriptor: %w", err)
	}
	if err := queue.New(a.Base).Write("agent.yaml", string(data)); err != nil {
		return err
	}
	log.Info(log.CatRoster, "Hired agent", "agent", e.Name, "type", e.Type)
	return nil
}

// Fire removes an instance's descriptor. Its queues stay on disk so nothing
// in flight is lost.
func Fire(ws paths.Workspace, name string) error {
	a := ws.Agent(name)
	if err := os.Remove(a.Descriptor); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("removing descriptor: %w", err)
	}
	log.Info(log.CatRoster, "Fired agent", "agent", name)
	return nil
}
