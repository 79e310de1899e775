package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_ContainsEveryCell(t *testing.T) {
	out := Table([]string{"NAME", "TYPE"}, [][]string{{"sen", "worker"}, {"rec", "recycler"}})
	for _, s := range []string{"NAME", "TYPE", "sen", "worker", "rec", "recycler"} {
		require.Contains(t, out, s)
	}
	require.Less(t, strings.Index(out, "sen"), strings.Index(out, "rec"), "row order is kept")
}

func TestTable_NoRows(t *testing.T) {
	out := Table([]string{"NAME"}, nil)
	require.Contains(t, out, "NAME")
}

func TestMarkdown_Render(t *testing.T) {
	m, err := NewMarkdown(80)
	require.NoError(t, err)
	require.Equal(t, 80, m.Width())

	out, err := m.Render("# fix-bug\n\n| round | session |\n|---|---|\n| 1 | s1 |\n")
	require.NoError(t, err)
	require.Contains(t, out, "fix-bug")
	require.Contains(t, out, "s1")
}
