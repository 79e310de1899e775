// Package backend is the boundary to the external reasoning process.
//
// The orchestration core hands a backend a prompt (or a session to resume)
// and a working directory, and gets back text. Everything else about the
// process (flags, framing, exit codes) stays inside this package.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when the backend process cannot be started.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrTimeout is returned when the backend exceeds its configured timeout.
	ErrTimeout = errors.New("backend timed out")
	// ErrFailed is returned when the backend terminates abnormally or reports an error result.
	ErrFailed = errors.New("backend failed")
)

// Request is one backend invocation.
type Request struct {
	// Prompt is the full prompt for a fresh conversation, or the resume
	// message for a continuation.
	Prompt string
	// SessionID resumes an existing conversation when set.
	SessionID string
	// WorkDir is the directory the backend operates in.
	WorkDir string
	// Verbose echoes the readable transcript while the backend runs.
	Verbose bool
}

// Resume reports whether the request continues an earlier conversation.
func (r Request) Resume() bool { return r.SessionID != "" }

// Response is what a finished invocation produced.
type Response struct {
	SessionID  string
	Model      string
	Text       string
	Transcript []string
	ToolCalls  int
	Duration   time.Duration
}

// Backend runs one round against the external reasoning process.
type Backend interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, req Request) (Response, error)

// Run implements Backend.
func (f Func) Run(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

var _ Backend = Func(nil)
