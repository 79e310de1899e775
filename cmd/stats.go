package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/render"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/stats"
)

var (
	statsLimit int
	statsRaw   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats <name> [task]",
	Short: "Show what an agent processed recently",
	Long: `Show the most recent items an agent processed, newest first, from its
stats ledger. With a task name, show that task's stats file instead.

Examples:
  kai stats sen
  kai stats sen --limit 50
  kai stats sen fix-bug`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace()
		if len(args) == 2 {
			return runStatsItem(ws, args[0], args[1], statsRaw, cmd.OutOrStdout())
		}
		return runStats(cmd.Context(), ws, args[0], statsLimit, cmd.OutOrStdout())
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 20, "number of items to show")
	statsCmd.Flags().BoolVar(&statsRaw, "raw", false, "print the stats file without styling")
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context, ws paths.Workspace, name string, limit int, out io.Writer) error {
	if _, err := roster.Get(ws, name); err != nil {
		return err
	}
	path := ws.Agent(name).Ledger()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintf(out, "No stats ledger for %s yet\n", name)
		return nil
	}

	ledger, err := stats.OpenLedger(path)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	recs, err := ledger.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintf(out, "%s has not processed anything yet\n", name)
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.StartedAt.Format(time.DateTime),
			r.Item,
			r.Status,
			strconv.Itoa(len(r.Rounds)),
			r.Duration().Round(time.Second).String(),
			r.Error,
		})
	}
	_, _ = fmt.Fprintln(out, render.Table([]string{"STARTED", "ITEM", "STATUS", "ROUNDS", "DURATION", "ERROR"}, rows))
	return nil
}

func runStatsItem(ws paths.Workspace, name, task string, raw bool, out io.Writer) error {
	data, err := os.ReadFile(stats.MarkdownFile(ws.Agent(name).Stats, task)) //nolint:gosec // G304: path is built from the workspace layout
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no stats for %s in %s", task, name)
	}
	if err != nil {
		return err
	}
	if raw {
		_, err = out.Write(data)
		return err
	}

	md, err := render.NewMarkdown(100)
	if err != nil {
		return err
	}
	styled, err := md.Render(string(data))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, styled)
	return err
}
