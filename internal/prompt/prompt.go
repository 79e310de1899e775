// Package prompt resolves and renders prompt templates.
//
// Templates are looked up by name in two places: the workspace's
// custom_prompts directory first, then the defaults embedded in the binary.
// Rendering is plain {placeholder} substitution.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/cachemanager"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/templates"
)

// ErrNotFound is returned when neither tier has the template.
var ErrNotFound = errors.New("prompt template not found")

// cacheTTL keeps edits to custom prompts visible within a minute.
const cacheTTL = time.Minute

// Vars are the placeholder values for one render.
type Vars map[string]string

// Loader finds templates by name.
type Loader struct {
	customDir string
	defaults  fs.FS
	cache     *cachemanager.ReadThroughCache[string, string]
}

// NewLoader returns a Loader that checks customDir before the embedded defaults.
// An empty customDir disables the override tier.
func NewLoader(customDir string) *Loader {
	return NewLoaderFS(customDir, templates.PromptsFS())
}

// NewLoaderFS is NewLoader with an explicit defaults filesystem.
func NewLoaderFS(customDir string, defaults fs.FS) *Loader {
	l := &Loader{customDir: customDir, defaults: defaults}
	l.cache = cachemanager.NewReadThroughCache[string, string](
		cachemanager.NewInMemoryCacheManager[string, string]("prompts", cacheTTL, 5*cacheTTL),
		l.lookup,
		cacheTTL,
	)
	return l
}

// Load returns the raw template text for name.
func (l *Loader) Load(ctx context.Context, name string) (string, error) {
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	return l.cache.Get(ctx, name)
}

// Render loads name and substitutes vars into it.
func (l *Loader) Render(ctx context.Context, name string, vars Vars) (string, error) {
	tmpl, err := l.Load(ctx, name)
	if err != nil {
		return "", err
	}
	return Render(tmpl, vars), nil
}

func (l *Loader) lookup(_ context.Context, name string) (string, error) {
	if l.customDir != "" {
		path := filepath.Join(l.customDir, name)
		data, err := os.ReadFile(path) //nolint:gosec // G304: name is validated by Load
		if err == nil {
			log.Debug(log.CatPrompt, "Using custom prompt", "name", name, "path", path)
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading custom prompt %s: %w", path, err)
		}
	}

	if l.defaults != nil {
		data, err := fs.ReadFile(l.defaults, name)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading default prompt %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

var placeholder = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Render replaces every {key} that has a value in vars. Unknown
// placeholders and other braces are left as they are.
func Render(tmpl string, vars Vars) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct placeholder names in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
