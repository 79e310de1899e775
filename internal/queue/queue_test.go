package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func writeItem(t *testing.T, q Queue, name, content string) {
	t.Helper()
	require.NoError(t, q.Write(name, content))
}

func TestList_MissingDirectoryIsEmpty(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "does", "not", "exist"))

	names, err := q.List()
	require.NoError(t, err)
	require.Empty(t, names)

	empty, err := q.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestList_SkipsHiddenFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	q := New(dir)
	writeItem(t, q, "fix-bug.md", "# Fix bug")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fix-bug.md.123.tmp"), []byte("partial"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))

	names, err := q.List()
	require.NoError(t, err)
	require.Equal(t, []string{"fix-bug.md"}, names)
}

func TestList_OldestFirst(t *testing.T) {
	q := New(t.TempDir())
	writeItem(t, q, "b.md", "b")
	writeItem(t, q, "a.md", "a")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(q.Path("b.md"), old, old))

	names, err := q.List()
	require.NoError(t, err)
	require.Equal(t, []string{"b.md", "a.md"}, names)
}

func TestListSuffix(t *testing.T) {
	q := New(t.TempDir())
	writeItem(t, q, "worker-sen-report.md", "r")
	writeItem(t, q, "boss-summary.md", "s")

	names, err := q.ListSuffix("-report.md")
	require.NoError(t, err)
	require.Equal(t, []string{"worker-sen-report.md"}, names)
}

func TestClaim_MovesItemAndCreatesTarget(t *testing.T) {
	root := t.TempDir()
	tasks := New(filepath.Join(root, "tasks"))
	ongoing := New(filepath.Join(root, "ongoing"))
	writeItem(t, tasks, "fix-bug.md", "# Fix bug")

	name, err := tasks.Claim("fix-bug.md", ongoing)
	require.NoError(t, err)
	require.Equal(t, "fix-bug.md", name)

	require.False(t, tasks.Exists("fix-bug.md"))
	require.True(t, ongoing.Exists("fix-bug.md"))

	content, err := ongoing.Read("fix-bug.md")
	require.NoError(t, err)
	require.Equal(t, "# Fix bug", content)
}

func TestClaim_MissingSourceIsNotFound(t *testing.T) {
	root := t.TempDir()
	tasks := New(filepath.Join(root, "tasks"))
	ongoing := New(filepath.Join(root, "ongoing"))

	_, err := tasks.Claim("gone.md", ongoing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaim_SameQueueIsNoop(t *testing.T) {
	q := New(t.TempDir())
	writeItem(t, q, "resume.md", "x")

	name, err := q.Claim("resume.md", q)
	require.NoError(t, err)
	require.Equal(t, "resume.md", name)
	require.True(t, q.Exists("resume.md"))

	_, err = q.Claim("other.md", q)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRelease_NameCollisionGetsSuffix(t *testing.T) {
	root := t.TempDir()
	reports := New(filepath.Join(root, "reports"))
	solved := New(filepath.Join(root, "solved"))
	writeItem(t, solved, "a-report.md", "first")
	writeItem(t, reports, "a-report.md", "second")

	name, err := reports.Release("a-report.md", solved)
	require.NoError(t, err)
	require.NotEqual(t, "a-report.md", name)
	require.Regexp(t, `^a-report-\d{8}-\d{6}\.\d{9}\.md$`, name)

	first, err := solved.Read("a-report.md")
	require.NoError(t, err)
	require.Equal(t, "first", first)
	second, err := solved.Read(name)
	require.NoError(t, err)
	require.Equal(t, "second", second)
}

func TestClaim_ConcurrentScannersExactlyOneWins(t *testing.T) {
	root := t.TempDir()
	tasks := New(filepath.Join(root, "tasks"))
	writeItem(t, tasks, "contested.md", "x")

	const scanners = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		lost int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			into := New(filepath.Join(root, fmt.Sprintf("ongoing-%d", i)))
			_, err := tasks.Claim("contested.md", into)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrNotFound):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, scanners-1, lost)
}

func TestWrite_ReplacesAtomically(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "tasks"))
	writeItem(t, q, "t.md", "v1")
	writeItem(t, q, "t.md", "v2")

	content, err := q.Read("t.md")
	require.NoError(t, err)
	require.Equal(t, "v2", content)

	entries, err := os.ReadDir(q.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestRemove_MissingIsNotAnError(t *testing.T) {
	q := New(t.TempDir())
	require.NoError(t, q.Remove("never-existed.md"))
}

// After a claim the item is in exactly one of the two queues.
func TestClaim_ItemNeverDuplicatedNorLost(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		root, err := os.MkdirTemp("", "queue-prop-")
		if err != nil {
			rt.Fatal(err)
		}
		defer func() { _ = os.RemoveAll(root) }()

		a := New(filepath.Join(root, "a"))
		b := New(filepath.Join(root, "b"))
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}\.md`), 1, 6, rapid.ID[string]).Draw(rt, "names")
		for _, n := range names {
			if err := a.Write(n, n); err != nil {
				rt.Fatal(err)
			}
		}
		preclaimed := rapid.IntRange(0, len(names)-1).Draw(rt, "preclaimed")
		if _, err := a.Claim(names[preclaimed], b); err != nil {
			rt.Fatal(err)
		}

		for i, n := range names {
			_, err := a.Claim(n, b)
			if i == preclaimed && !errors.Is(err, ErrNotFound) {
				rt.Fatalf("second claim of %s: want ErrNotFound, got %v", n, err)
			}
			if a.Exists(n) == b.Exists(n) {
				rt.Fatalf("%s: inA=%v inB=%v", n, a.Exists(n), b.Exists(n))
			}
		}
	})
}
