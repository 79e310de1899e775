// Package round runs the external backend against one work item, one round
// at a time, and drives rounds until the item's termination condition is met.
package round

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/kai/internal/backend"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/tracing"
)

// Termination decides how many rounds a claimed item gets.
type Termination int

const (
	// UntilFileDeleted keeps resuming the conversation until the item is
	// gone from the processing queue.
	UntilFileDeleted Termination = iota
	// SingleRun runs exactly one round per item, whatever its outcome.
	SingleRun
)

func (t Termination) String() string {
	switch t {
	case UntilFileDeleted:
		return "until_file_deleted"
	case SingleRun:
		return "single_run"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

// ParseTermination accepts the names produced by String.
func ParseTermination(s string) (Termination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "until_file_deleted", "until-file-deleted", "":
		return UntilFileDeleted, nil
	case "single_run", "single-run", "once":
		return SingleRun, nil
	default:
		return 0, fmt.Errorf("unknown termination condition %q", s)
	}
}

// Round is the in-memory record of one backend invocation.
type Round struct {
	Number    int
	First     bool
	StartedAt time.Time
	Duration  time.Duration
	SessionID string
	Result    string
	ToolCalls int
	Err       error
}

// Session is the conversation handle for one work item. It is created when
// the item is claimed and discarded when processing ends; two items never
// share a session.
type Session struct {
	ID     string
	Item   string
	Rounds []Round
}

// NewSession starts an empty session for item.
func NewSession(item string) *Session {
	return &Session{Item: item}
}

// Resumable reports whether the next round can continue the conversation.
func (s *Session) Resumable() bool { return s.ID != "" }

// Last returns the most recent round, or the zero Round.
func (s *Session) Last() Round {
	if len(s.Rounds) == 0 {
		return Round{}
	}
	return s.Rounds[len(s.Rounds)-1]
}

// Input is what a round needs besides its session.
type Input struct {
	// Prompt is the rendered first-round prompt. Continuations ignore it.
	Prompt  string
	WorkDir string
	Verbose bool
}

// Executor passes rounds through to a backend.
type Executor struct {
	backend       backend.Backend
	resumeMessage string
	tracer        trace.Tracer
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithResumeMessage sets the text sent on continuation rounds.
func WithResumeMessage(msg string) Option {
	return func(e *Executor) {
		if msg != "" {
			e.resumeMessage = msg
		}
	}
}

// WithTracer records a span per round.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithSleep replaces the inter-round wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor returns an Executor for b.
func NewExecutor(b backend.Backend, opts ...Option) *Executor {
	e := &Executor{
		backend:       b,
		resumeMessage: backend.DefaultResumeMessage,
		tracer:        noop.NewTracerProvider().Tracer("noop"),
		sleep:         Sleep,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrEmptyPrompt is returned for a first round without a prompt.
var ErrEmptyPrompt = errors.New("first round needs a prompt")

// Run invokes the backend once. A session without an ID gets a fresh
// conversation with in.Prompt; otherwise the conversation is resumed with
// the static resume message. The result text is returned uninterpreted.
func (e *Executor) Run(ctx context.Context, s *Session, in Input) (Round, error) {
	r := Round{
		Number:    len(s.Rounds) + 1,
		First:     !s.Resumable(),
		StartedAt: e.now(),
	}

	req := backend.Request{WorkDir: in.WorkDir, Verbose: in.Verbose}
	if r.First {
		if strings.TrimSpace(in.Prompt) == "" {
			return r, ErrEmptyPrompt
		}
		req.Prompt = in.Prompt
	} else {
		req.Prompt = e.resumeMessage
		req.SessionID = s.ID
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanBackendRound, trace.WithAttributes(
		attribute.String(tracing.AttrItemName, s.Item),
		attribute.Int(tracing.AttrRoundNumber, r.Number),
		attribute.Bool(tracing.AttrRoundResume, !r.First),
	))

	resp, err := e.backend.Run(ctx, req)

	r.Duration = resp.Duration
	if r.Duration == 0 {
		r.Duration = e.now().Sub(r.StartedAt)
	}
	r.Result = resp.Text
	r.ToolCalls = resp.ToolCalls
	r.Err = err
	// A backend may fork the conversation on resume; follow the latest handle.
	if resp.SessionID != "" {
		s.ID = resp.SessionID
	}
	r.SessionID = s.ID
	s.Rounds = append(s.Rounds, r)

	span.SetAttributes(attribute.String(tracing.AttrSessionID, s.ID))
	tracing.End(span, err)

	log.Debug(log.CatBackend, "Round finished",
		"item", s.Item, "round", r.Number, "resume", !r.First, "session", s.ID, "duration", r.Duration.Round(time.Millisecond))
	return r, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
