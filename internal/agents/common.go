// Package agents holds the built-in agent types and the declarative type
// used for user-defined roles.
package agents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/stats"
)

const stampFormat = "20060102-150405"

// readOptional returns a file's content, or "" if it does not exist.
func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the workspace layout
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// appendLine adds one line to a file, creating it and its directory.
func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: paths come from the workspace layout
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strings.TrimRight(line, "\n") + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func remember(cfg agent.Config, now time.Time, format string, args ...any) {
	line := fmt.Sprintf("- %s ", now.Format("2006-01-02 15:04")) + fmt.Sprintf(format, args...)
	if err := appendLine(cfg.Paths.Memory, line); err != nil {
		log.Warn(log.CatLoop, "Could not update memory", "agent", cfg.Name, "error", err)
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// writeUnique writes content under name, or under a timestamped variant if
// name is taken, and returns the name used.
func writeUnique(q queue.Queue, name, content string, now time.Time) (string, error) {
	if q.Exists(name) {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), now.Format("20060102-150405.000000000"), ext)
	}
	return name, q.Write(name, content)
}

// taskVars are the placeholders every task-driven template gets.
func taskVars(cfg agent.Config, item agent.Item, content string) prompt.Vars {
	task := stats.TaskName(item.Name)
	return prompt.Vars{
		"task_file":    item.Path,
		"task_name":    task,
		"task_content": content,
		"report_dir":   cfg.Output,
		"report_file":  filepath.Join(cfg.Output, task+"-report.md"),
		"memory_file":  cfg.Paths.Memory,
	}
}

// runUntilDeleted is the worker flow: keep the conversation going until the
// backend deletes the claimed item.
func runUntilDeleted(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) error {
	content, err := cfg.ProcessingQueue().Read(item.Name)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	workDir := rt.WorkDir(cfg, content)

	vars := taskVars(cfg, item, content)
	vars["workspace"] = workDir
	p, err := rt.Render(ctx, cfg, vars)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	out, err := rt.Drive(ctx, cfg, item, p, workDir)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	remember(cfg, rt.Time(), "completed %s in %d round(s)", item.Name, out.Rounds())
	report := filepath.Base(vars["report_file"])
	if !cfg.OutputQueue().Exists(report) {
		log.Warn(log.CatLoop, "Item finished without a report", "agent", cfg.Name, "item", item.Name, "expected", report)
	}
	log.Info(log.CatLoop, "Item completed", "agent", cfg.Name, "item", item.Name, "rounds", out.Rounds())
	return nil
}
