package round

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/kai/internal/log"
)

// DefaultRetryInterval is the wait between continuation rounds.
const DefaultRetryInterval = 3 * time.Second

// ErrMaxRounds is returned when an UntilFileDeleted item is still present
// after the configured number of rounds.
var ErrMaxRounds = errors.New("round limit reached")

const progressHeading = "## Progress notes"

// Plan describes how to process one claimed item.
type Plan struct {
	Termination Termination
	// Item is the path of the claimed item inside the processing queue.
	Item string
	// Prompt is the rendered first-round prompt.
	Prompt        string
	WorkDir       string
	Verbose       bool
	RetryInterval time.Duration
	// MaxRounds caps UntilFileDeleted processing; 0 means no cap.
	MaxRounds int
	// ProgressNotes appends a line to the item after every round that
	// leaves it in place.
	ProgressNotes bool
}

// Outcome summarizes a Drive call.
type Outcome struct {
	Session *Session
	// Completed is true when the termination condition was met: the item
	// was deleted, or the single round of a SingleRun plan returned.
	Completed bool
}

// Rounds returns how many rounds ran.
func (o Outcome) Rounds() int {
	if o.Session == nil {
		return 0
	}
	return len(o.Session.Rounds)
}

// Drive runs rounds for one item until its termination condition is met.
//
// SingleRun: exactly one round; its error, if any, is returned.
// UntilFileDeleted: rounds repeat, each after the first resuming the same
// session, for as long as the item exists. A backend error stops the item
// and leaves it in place for a later fresh attempt.
func (e *Executor) Drive(ctx context.Context, plan Plan) (Outcome, error) {
	s := NewSession(filepath.Base(plan.Item))
	out := Outcome{Session: s}
	in := Input{Prompt: plan.Prompt, WorkDir: plan.WorkDir, Verbose: plan.Verbose}

	retry := plan.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}

	for {
		r, err := e.Run(ctx, s, in)
		if err != nil {
			return out, err
		}

		if plan.Termination == SingleRun {
			out.Completed = true
			return out, nil
		}

		if !itemExists(plan.Item) {
			out.Completed = true
			log.Debug(log.CatLoop, "Item deleted, processing complete", "item", s.Item, "rounds", len(s.Rounds))
			return out, nil
		}

		if plan.MaxRounds > 0 && len(s.Rounds) >= plan.MaxRounds {
			return out, fmt.Errorf("%w: %d rounds on %s", ErrMaxRounds, len(s.Rounds), s.Item)
		}

		if plan.ProgressNotes {
			if err := appendProgress(plan.Item, r); err != nil {
				log.Warn(log.CatLoop, "Could not append progress note", "item", s.Item, "error", err)
			}
		}

		if err := e.sleep(ctx, retry); err != nil {
			return out, err
		}

		if !itemExists(plan.Item) {
			out.Completed = true
			return out, nil
		}
	}
}

func itemExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// appendProgress adds one line under the progress heading. It never
// recreates an item that disappeared in the meantime.
func appendProgress(path string, r Round) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the claimed item
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var b strings.Builder
	if !strings.Contains(string(data), progressHeading) {
		if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n" + progressHeading + "\n\n")
	}
	fmt.Fprintf(&b, "- round %d finished %s (%s)\n",
		r.Number, r.StartedAt.Add(r.Duration).Format("2006-01-02 15:04:05"), r.Duration.Round(time.Second))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0) //nolint:gosec // G304: path is the claimed item
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
