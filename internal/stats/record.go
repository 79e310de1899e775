// Package stats records what happened to each processed work item.
//
// Every item gets a <task>-stats.json and a readable <task>-stats.md in the
// instance's stats directory; the Recycler feeds the markdown to its review
// prompt. Optionally the same record is appended to a per-instance sqlite
// ledger for `kai stats`.
package stats

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/round"
)

// Item statuses.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// ItemRecord is the outcome of processing one work item.
type ItemRecord struct {
	RunID       string        `json:"run_id"`
	Agent       string        `json:"agent"`
	AgentType   string        `json:"agent_type"`
	Item        string        `json:"item"`
	Termination string        `json:"termination"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Rounds      []RoundRecord `json:"rounds"`
}

// Duration is the wall time between start and finish.
func (r ItemRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Task returns the item name without its extension.
func (r ItemRecord) Task() string { return TaskName(r.Item) }

// RoundRecord is the persisted view of one round.
type RoundRecord struct {
	Number     int       `json:"number"`
	First      bool      `json:"first"`
	SessionID  string    `json:"session_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	ToolCalls  int       `json:"tool_calls"`
	Error      string    `json:"error,omitempty"`
}

// FromSession converts a session's rounds.
func FromSession(s *round.Session) []RoundRecord {
	if s == nil {
		return nil
	}
	out := make([]RoundRecord, 0, len(s.Rounds))
	for _, r := range s.Rounds {
		rec := RoundRecord{
			Number:     r.Number,
			First:      r.First,
			SessionID:  r.SessionID,
			StartedAt:  r.StartedAt,
			DurationMs: r.Duration.Milliseconds(),
			ToolCalls:  r.ToolCalls,
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

// TaskName strips the extension and any -report suffix: fix-bug-report.md -> fix-bug.
func TaskName(item string) string {
	name := strings.TrimSuffix(item, filepath.Ext(item))
	return strings.TrimSuffix(name, "-report")
}

// Recorder persists item records.
type Recorder interface {
	Record(ctx context.Context, rec ItemRecord) error
}

// Discard drops every record.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, ItemRecord) error { return nil }
