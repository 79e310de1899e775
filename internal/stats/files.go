package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JSONFile returns the path of an item's JSON stats in dir.
func JSONFile(dir, item string) string {
	return filepath.Join(dir, TaskName(item)+"-stats.json")
}

// MarkdownFile returns the path of an item's markdown stats in dir.
func MarkdownFile(dir, item string) string {
	return filepath.Join(dir, TaskName(item)+"-stats.md")
}

// WriteFiles writes both stats files for rec into dir.
func WriteFiles(dir string, rec ItemRecord) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating stats dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := os.WriteFile(JSONFile(dir, rec.Item), data, 0o600); err != nil {
		return fmt.Errorf("writing stats json: %w", err)
	}
	if err := os.WriteFile(MarkdownFile(dir, rec.Item), []byte(Markdown(rec)), 0o600); err != nil {
		return fmt.Errorf("writing stats markdown: %w", err)
	}
	return nil
}

// ReadJSON loads a record written by WriteFiles.
func ReadJSON(dir, item string) (ItemRecord, error) {
	var rec ItemRecord
	data, err := os.ReadFile(JSONFile(dir, item)) //nolint:gosec // G304: stats dir is derived from the workspace
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding %s: %w", JSONFile(dir, item), err)
	}
	return rec, nil
}

// Markdown renders rec as a short report.
func Markdown(rec ItemRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Stats: %s\n\n", rec.Task())
	fmt.Fprintf(&b, "- Agent: %s (%s)\n", rec.Agent, rec.AgentType)
	fmt.Fprintf(&b, "- Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "- Started: %s\n", rec.StartedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "- Finished: %s\n", rec.FinishedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "- Duration: %s\n", rec.Duration().Round(time.Second))
	fmt.Fprintf(&b, "- Rounds: %d\n", len(rec.Rounds))
	if rec.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", rec.Error)
	}

	if len(rec.Rounds) > 0 {
		b.WriteString("\n| Round | Kind | Session | Duration | Tool calls | Error |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, r := range rec.Rounds {
			kind := "resume"
			if r.First {
				kind = "first"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %d | %s |\n",
				r.Number, kind, r.SessionID,
				(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Second),
				r.ToolCalls, r.Error)
		}
	}
	return b.String()
}
