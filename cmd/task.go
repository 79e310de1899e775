package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
)

// ErrNoRecipient is returned by 'kai task' when no --to is given and no
// secretary is hired.
var ErrNoRecipient = errors.New("no secretary hired; pass --to <agent>")

var taskTo string

var taskCmd = &cobra.Command{
	Use:   "task <text|->",
	Short: "Hand a new task to an agent",
	Long: `Write a new task into an agent's tasks/ queue.

The task goes to the first secretary unless --to names another agent. Pass
"-" to read the task from stdin.

Examples:
  kai task "Fix the flaky login test"
  kai task --to sen "Bump the Go toolchain"
  cat request.md | kai task -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := args[0]
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}
		path, err := runTask(workspace(), taskTo, text, time.Now())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <name>",
	Short: "Requeue the items an agent left in ongoing/",
	Long: `Move every item in an agent's ongoing/ back into its tasks/ queue.

Single-run agents leave an item in ongoing/ when the backend fails. Workers
resume ongoing/ items by themselves and do not need this.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		moved, err := runRetry(workspace(), args[0])
		for _, name := range moved {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", name)
		}
		if err == nil && len(moved) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to retry")
		}
		return err
	},
}

func init() {
	taskCmd.Flags().StringVar(&taskTo, "to", "", "agent to receive the task (default: first secretary)")
	rootCmd.AddCommand(taskCmd, retryCmd)
}

// runTask writes text as a new task and returns its path.
func runTask(ws paths.Workspace, to, text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("task is empty")
	}

	if to == "" {
		secretaries, err := roster.OfType(ws, "secretary")
		if err != nil {
			return "", err
		}
		if len(secretaries) == 0 {
			return "", ErrNoRecipient
		}
		to = secretaries[0].Name
	} else if _, err := roster.Get(ws, to); err != nil {
		return "", err
	}

	q := queue.New(ws.Agent(to).Tasks)
	name := "task-" + now.Format("20060102-150405") + ".md"
	if q.Exists(name) {
		name = "task-" + now.Format("20060102-150405.000000000") + ".md"
	}
	if err := q.Write(name, text+"\n"); err != nil {
		return "", err
	}
	return q.Path(name), nil
}

// runRetry releases everything in name's ongoing/ into its tasks/.
func runRetry(ws paths.Workspace, name string) ([]string, error) {
	if _, err := roster.Get(ws, name); err != nil {
		return nil, err
	}
	a := ws.Agent(name)
	ongoing, tasks := queue.New(a.Ongoing), queue.New(a.Tasks)

	items, err := ongoing.List()
	if err != nil {
		return nil, err
	}
	var moved []string
	for _, item := range items {
		final, err := ongoing.Release(item, tasks)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return moved, err
		}
		moved = append(moved, final)
	}
	return moved, nil
}
