// Package watcher wakes the scan loop early when queue directories change.
// It is an accelerator only: the loop keeps polling whether or not events
// arrive.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/kai/internal/log"
)

// Watcher monitors a set of queue directories and sends a debounced signal
// when items appear, move or disappear.
type Watcher struct {
	fsw    *fsnotify.Watcher
	settle time.Duration
	wake   chan struct{}
	quit   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	dirs map[string]bool
}

// Config lists the directories to watch and how long a burst of changes must
// stay quiet before a wake-up is sent.
type Config struct {
	Dirs   []string
	Settle time.Duration
}

// DefaultConfig watches dirs with a 250ms settle time.
func DefaultConfig(dirs ...string) Config {
	return Config{Dirs: dirs, Settle: 250 * time.Millisecond}
}

// New creates a watcher. No signal is delivered until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:    fsw,
		settle: cfg.Settle,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		dirs:   map[string]bool{},
	}
	w.set(cfg.Dirs)
	return w, nil
}

// Start begins watching. The returned channel receives a signal after a
// burst of changes settles.
func (w *Watcher) Start() <-chan struct{} {
	go w.run()
	return w.wake
}

// Refresh replaces the watched set. Directories that do not exist yet are
// skipped; a later Refresh picks them up.
func (w *Watcher) Refresh(dirs []string) {
	w.set(dirs)
}

// Watched returns the directories currently watched, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) set(dirs []string) {
	want := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			want[filepath.Clean(d)] = true
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for d := range w.dirs {
		if !want[d] {
			_ = w.fsw.Remove(d)
			delete(w.dirs, d)
			log.Debug(log.CatWatcher, "Stopped watching", "dir", d)
		}
	}
	for d := range want {
		if w.dirs[d] {
			continue
		}
		if err := w.fsw.Add(d); err != nil {
			log.Warn(log.CatWatcher, "Could not watch directory", "dir", d, "error", err)
			continue
		}
		w.dirs[d] = true
		log.Debug(log.CatWatcher, "Watching", "dir", d)
	}
}

// Stop closes the underlying fsnotify watcher. Later calls return nil.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.quit)
		err = w.fsw.Close()
	})
	return err
}

// run coalesces bursts of events into one wake-up. The timer channel stays
// nil while nothing is pending, which disables that select case.
func (w *Watcher) run() {
	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if isRelevantEvent(ev) {
				timer.Reset(w.settle)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			select {
			case w.wake <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "Watcher error", "error", err)

		case <-w.quit:
			return
		}
	}
}

// isRelevantEvent ignores hidden files, which are never queue items; atomic
// writes show up as the rename that publishes them.
func isRelevantEvent(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
