package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/kai/internal/log"
)

// Defaults for the agent CLI.
const (
	DefaultCommand       = "agent"
	DefaultModel         = "auto"
	DefaultResumeMessage = "continue"
)

// DefaultExtraArgs are passed on every invocation unless overridden.
var DefaultExtraArgs = []string{"--force", "--trust"}

// waitDelay bounds how long Wait lingers on inherited pipes after a kill.
const waitDelay = 2 * time.Second

// maxStderr bounds how much stderr is kept for error messages.
const maxStderr = 8 * 1024

// CLIConfig configures the headless agent CLI adapter.
type CLIConfig struct {
	Command   string
	Model     string
	ExtraArgs []string
	Timeout   time.Duration
	// Workspace overrides Request.WorkDir for the --workspace flag when set.
	Workspace string
	// Echo receives the readable transcript for verbose requests.
	// Defaults to os.Stdout.
	Echo io.Writer
}

// CLI runs each round as one headless agent CLI process speaking stream-json.
type CLI struct {
	cfg CLIConfig
}

var _ Backend = (*CLI)(nil)

// NewCLI returns a CLI adapter with defaults filled in.
func NewCLI(cfg CLIConfig) *CLI {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.ExtraArgs == nil {
		cfg.ExtraArgs = DefaultExtraArgs
	}
	if cfg.Echo == nil {
		cfg.Echo = os.Stdout
	}
	return &CLI{cfg: cfg}
}

// Run spawns the CLI, parses its event stream and waits for it to exit.
func (c *CLI) Run(ctx context.Context, req Request) (Response, error) {
	var (
		procCtx context.Context
		cancel  context.CancelFunc
	)
	if c.cfg.Timeout > 0 {
		procCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	} else {
		procCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	args := c.buildArgs(req)
	log.Debug(log.CatBackend, "Spawning backend", "command", c.cfg.Command, "resume", req.SessionID, "workDir", req.WorkDir)

	// #nosec G204 -- command and flags come from configuration, the prompt is a single argument
	cmd := exec.CommandContext(procCtx, c.cfg.Command, args...)
	cmd.Dir = req.WorkDir
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, fmt.Errorf("%w: stdout pipe: %v", ErrUnavailable, err)
	}
	stderr := &tailBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.ErrorErr(log.CatBackend, "Failed to start backend", err, "command", c.cfg.Command)
		return Response{}, fmt.Errorf("%w: starting %s: %v", ErrUnavailable, c.cfg.Command, err)
	}
	log.Debug(log.CatBackend, "Backend started", "pid", cmd.Process.Pid)

	col := c.consume(stdout, req.Verbose)
	waitErr := cmd.Wait()
	resp := col.response()
	resp.Duration = time.Since(start)

	if errors.Is(procCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return resp, fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return resp, fmt.Errorf("%w: %v", ErrFailed, ctx.Err())
	}
	if waitErr != nil {
		return resp, fmt.Errorf("%w: %v: %s", ErrFailed, waitErr, stderr.String())
	}
	if col.failure != "" {
		return resp, fmt.Errorf("%w: %s", ErrFailed, col.failure)
	}

	log.Debug(log.CatBackend, "Backend finished",
		"session", resp.SessionID, "toolCalls", resp.ToolCalls, "duration", resp.Duration.Round(time.Millisecond))
	return resp, nil
}

// buildArgs constructs the command line arguments for the CLI.
func (c *CLI) buildArgs(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
	}
	args = append(args, c.cfg.ExtraArgs...)

	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}

	workspace := c.cfg.Workspace
	if workspace == "" {
		workspace = req.WorkDir
	}
	if workspace != "" {
		args = append(args, "--workspace", workspace)
	}

	if c.cfg.Model != "" {
		args = append(args, "--model", c.cfg.Model)
	}

	// The -- separator keeps a prompt starting with "-" from being read as a flag.
	if req.Prompt != "" {
		args = append(args, "--", req.Prompt)
	}
	return args
}

// consume reads stream-json lines until stdout closes.
func (c *CLI) consume(r io.Reader, verbose bool) *collector {
	col := &collector{}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			log.Debug(log.CatBackend, "Skipping non-JSON line", "line", string(line[:min(100, len(line))]))
			continue
		}
		col.add(ev)
		if verbose {
			if text := ev.Describe(); text != "" {
				_, _ = fmt.Fprintln(c.cfg.Echo, text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.ErrorErr(log.CatBackend, "Reading backend output", err)
		// Keep the pipe drained so the process can exit.
		_, _ = io.Copy(io.Discard, r)
	}
	return col
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
