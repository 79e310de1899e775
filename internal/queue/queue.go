// Package queue implements directory-backed work queues.
//
// A queue is a directory; a work item is a file in it. Ownership moves with
// the file: the only way to transfer an item is a single os.Rename, so two
// scanners racing for the same item can never both win. Nothing is cached;
// every call reads the live directory.
package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/log"
)

// ErrNotFound is returned when the item to move is no longer in the queue,
// usually because a concurrent scanner claimed it first.
var ErrNotFound = errors.New("queue: item not found")

const dirPerm = 0o750

// Queue is a directory of work items.
type Queue struct {
	dir string
}

// New returns the queue rooted at dir. The directory is not created until
// something is moved or written into it.
func New(dir string) Queue {
	return Queue{dir: filepath.Clean(dir)}
}

// Dir returns the queue directory.
func (q Queue) Dir() string { return q.dir }

// Path returns the full path of the named item.
func (q Queue) Path(name string) string { return filepath.Join(q.dir, name) }

// String implements fmt.Stringer.
func (q Queue) String() string { return q.dir }

// List returns the item names currently in the queue, oldest first.
// A missing directory is an empty queue. Hidden files are never items.
func (q Queue) List() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", q.dir, err)
	}

	type item struct {
		name string
		mod  time.Time
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if !isItem(e) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Moved away between ReadDir and Info.
			continue
		}
		items = append(items, item{name: e.Name(), mod: info.ModTime()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod.Equal(items[j].mod) {
			return items[i].name < items[j].name
		}
		return items[i].mod.Before(items[j].mod)
	})

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.name
	}
	return names, nil
}

// ListSuffix is List restricted to names ending in suffix.
func (q Queue) ListSuffix(suffix string) ([]string, error) {
	names, err := q.List()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, suffix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Len returns the number of items in the queue.
func (q Queue) Len() (int, error) {
	names, err := q.List()
	return len(names), err
}

// Empty reports whether the queue holds no items.
func (q Queue) Empty() (bool, error) {
	n, err := q.Len()
	return n == 0, err
}

// Exists reports whether the named item is in the queue.
func (q Queue) Exists(name string) bool {
	info, err := os.Stat(q.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the content of the named item.
func (q Queue) Read(name string) (string, error) {
	data, err := os.ReadFile(q.Path(name)) //nolint:gosec // G304: item names come from directory listings
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, q.Path(name))
		}
		return "", fmt.Errorf("reading %s: %w", q.Path(name), err)
	}
	return string(data), nil
}

// Claim moves the named item into the processing queue into, giving the caller
// exclusive ownership. It returns the item's name in into, which differs from
// name only when into already held an item with that name.
// ErrNotFound means another scanner got there first.
func (q Queue) Claim(name string, into Queue) (string, error) {
	final, err := q.move(name, into)
	if err != nil {
		return "", err
	}
	log.Debug(log.CatQueue, "Claimed item", "item", name, "from", q.dir, "into", into.dir)
	return final, nil
}

// Release moves the named item into another queue. It is Claim under a
// different name, used to route finished or failed items.
func (q Queue) Release(name string, into Queue) (string, error) {
	final, err := q.move(name, into)
	if err != nil {
		return "", err
	}
	log.Debug(log.CatQueue, "Released item", "item", name, "from", q.dir, "into", into.dir)
	return final, nil
}

func (q Queue) move(name string, into Queue) (string, error) {
	if q.dir == into.dir {
		if !q.Exists(name) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, q.Path(name))
		}
		return name, nil
	}
	if err := into.ensure(); err != nil {
		return "", err
	}

	target := name
	if _, err := os.Lstat(into.Path(target)); err == nil {
		target = uniqueName(name, time.Now())
	}

	if err := os.Rename(q.Path(name), into.Path(target)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, q.Path(name))
		}
		return "", fmt.Errorf("moving %s to %s: %w", q.Path(name), into.dir, err)
	}
	return target, nil
}

// Write atomically creates (or replaces) the named item with content. Readers
// see either nothing or the whole file, never a partial write.
func (q Queue) Write(name, content string) error {
	if err := q.ensure(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(q.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", q.dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, q.Path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publishing %s: %w", q.Path(name), err)
	}
	return nil
}

// Remove deletes the named item. A missing item is not an error.
func (q Queue) Remove(name string) error {
	if err := os.Remove(q.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", q.Path(name), err)
	}
	return nil
}

// Ensure creates the queue directory if needed.
func (q Queue) Ensure() error { return q.ensure() }

func (q Queue) ensure() error {
	if err := os.MkdirAll(q.dir, dirPerm); err != nil {
		return fmt.Errorf("creating queue %s: %w", q.dir, err)
	}
	return nil
}

func isItem(e fs.DirEntry) bool {
	if strings.HasPrefix(e.Name(), ".") {
		return false
	}
	return e.Type().IsRegular()
}

// uniqueName inserts a timestamp before the extension: task.md -> task-20250101-150405.000000000.md.
func uniqueName(name string, now time.Time) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%s%s", stem, now.Format("20060102-150405.000000000"), ext)
}
