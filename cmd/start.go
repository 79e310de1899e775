package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/backend"
	"github.com/zjrosen/kai/internal/config"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/pubsub"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
	"github.com/zjrosen/kai/internal/scan"
	"github.com/zjrosen/kai/internal/stats"
	"github.com/zjrosen/kai/internal/tracing"
	"github.com/zjrosen/kai/internal/watcher"
)

var (
	startOnce    bool
	startType    string
	startVerbose bool
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Run one agent instance until interrupted",
	Long: `Run the scan loop of one agent instance in the foreground.

The instance must have been hired, or --type must name the type to hire it
as. The loop stops cleanly on SIGINT/SIGTERM. A trigger that cannot be
evaluated stops it with a non-zero exit.

Examples:
  kai start sen
  kai start reviewer --type reviewer
  kai start sen --once --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := validConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runStart(ctx, workspace(), c, startOptions{
			Name:    args[0],
			Type:    startType,
			Once:    startOnce,
			Verbose: startVerbose,
			Out:     cmd.OutOrStdout(),
		})
	},
}

func init() {
	startCmd.Flags().BoolVar(&startOnce, "once", false, "run a single cycle and exit")
	startCmd.Flags().StringVarP(&startType, "type", "t", "", "hire the instance as this type if it is not hired yet")
	startCmd.Flags().BoolVarP(&startVerbose, "verbose", "v", false, "echo log lines and the agent transcript")
	rootCmd.AddCommand(startCmd)
}

type startOptions struct {
	Name    string
	Type    string
	Once    bool
	Verbose bool
	Out     io.Writer
	// Backend replaces the configured CLI backend.
	Backend backend.Backend
	// Wake replaces the fsnotify watcher.
	Wake <-chan struct{}
}

func runStart(ctx context.Context, ws paths.Workspace, c config.Config, opts startOptions) error {
	if err := roster.ValidateName(opts.Name); err != nil {
		return err
	}
	a := ws.Agent(opts.Name)

	cleanup, err := log.Init(a.LogFile())
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer cleanup()
	if c.Debug || debugFlag {
		log.SetMinLevel(log.LevelDebug)
	}
	if opts.Verbose {
		if l := log.NewListener(ctx); l != nil {
			go l.Each(func(e pubsub.Event[string]) {
				_, _ = fmt.Fprintln(os.Stderr, e.Payload)
			})
		}
	}

	reg, err := loadRegistry(ws)
	if err != nil {
		return err
	}
	entry, err := ensureHired(ws, reg, opts.Name, opts.Type)
	if err != nil {
		return err
	}
	typ, err := reg.Get(entry.Type)
	if err != nil {
		return err
	}
	acfg := typ.BuildConfig(ws, opts.Name)

	tp, err := tracing.NewProvider(c.Tracing)
	if err != nil {
		log.Warn(log.CatConfig, "Tracing disabled", "error", err)
		tp = tracing.Noop()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	out := &syncWriter{w: opts.Out}

	b := opts.Backend
	if b == nil {
		b = backend.NewCLI(backend.CLIConfig{
			Command:   c.Backend.Command,
			Model:     c.Backend.Model,
			ExtraArgs: c.Backend.ExtraArgs,
			Timeout:   c.Backend.Timeout,
			Echo:      out,
		})
	}

	store := openStats(a, c.Stats.Ledger)
	defer func() { _ = store.Close() }()

	rt := &agent.Runtime{
		Workspace: ws,
		Executor: round.NewExecutor(b,
			round.WithResumeMessage(c.Backend.ResumeMessage),
			round.WithTracer(tp.Tracer()),
		),
		Prompts:       prompt.NewLoader(ws.CustomPromptsDir()),
		Stats:         store,
		RetryInterval: c.RetryInterval,
		MaxRounds:     c.MaxRounds,
		ProgressNotes: c.ProgressNotes,
		Verbose:       opts.Verbose,
	}
	if c.Workspace != "" {
		rt.DefaultWorkDir = ws.Root
	}

	broker := pubsub.NewBroker[scan.Event]()
	events := pubsub.NewListener[scan.Event](context.Background(), broker)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		events.Each(func(e pubsub.Event[scan.Event]) { reportEvent(out, e) })
	}()

	loopOpts := []scan.Option{
		scan.WithPollInterval(c.PollFor(entry.Type)),
		scan.WithOnce(opts.Once),
		scan.WithBroker(broker),
		scan.WithTracer(tp.Tracer()),
	}

	var refresher scan.Refresher
	switch {
	case opts.Wake != nil:
		loopOpts = append(loopOpts, scan.WithWake(opts.Wake))
	case !opts.Once:
		dirs, _ := acfg.WatchDirs()
		w, err := watcher.New(watcher.DefaultConfig(dirs...))
		if err != nil {
			log.Warn(log.CatWatcher, "File watcher unavailable, polling only", "error", err)
			break
		}
		defer func() { _ = w.Stop() }()
		loopOpts = append(loopOpts, scan.WithWake(w.Start()))
		refresher = w
	}
	if scan.NeedsCoordinator(acfg) {
		coord := scan.NewCoordinator(acfg, refresher)
		loopOpts = append(loopOpts, scan.WithBeforeCycle(coord.Refresh))
	}

	loop := scan.New(typ, acfg, rt, loopOpts...)
	_, _ = fmt.Fprintf(out, "%s started (%s, %s)\n", acfg.Label, acfg.Type, acfg.Termination)

	err = loop.Run(ctx)
	broker.Close()
	<-reported

	cycles, completed, failed := loop.Stats()
	log.Info(log.CatLoop, "Scan loop stopped", "agent", opts.Name, "cycles", cycles, "completed", completed, "failed", failed)
	_, _ = fmt.Fprintf(out, "%s stopped: %d completed, %d failed\n", acfg.Label, completed, failed)

	var te *agent.TriggerEvaluationError
	if errors.As(err, &te) {
		return fmt.Errorf("%s stopped: %w", opts.Name, err)
	}
	return err
}

// ensureHired returns the roster entry for name, hiring it as typ first when
// it does not exist yet.
func ensureHired(ws paths.Workspace, reg *agent.Registry, name, typ string) (roster.Entry, error) {
	entry, err := roster.Get(ws, name)
	switch {
	case err == nil:
		if typ != "" && typ != entry.Type {
			return entry, fmt.Errorf("agent %s is a %s, not a %s", name, entry.Type, typ)
		}
		return entry, nil
	case !errors.Is(err, roster.ErrNotFound):
		return entry, err
	case typ == "":
		return entry, fmt.Errorf("agent %s is not hired; run 'kai hire %s <type>' or pass --type", name, name)
	}

	if _, err := reg.Get(typ); err != nil {
		return entry, err
	}
	entry = roster.Entry{Name: name, Type: typ}
	if err := roster.Hire(ws, entry); err != nil {
		return entry, err
	}
	return roster.Get(ws, name)
}

// openStats returns a stats store for the instance. A ledger that cannot be
// opened is logged and skipped; the stats files are still written.
func openStats(a paths.AgentPaths, ledger bool) *stats.Store {
	if !ledger {
		return stats.NewStore(a.Stats, nil)
	}
	l, err := stats.OpenLedger(a.Ledger())
	if err != nil {
		log.Warn(log.CatStats, "Stats ledger unavailable", "path", a.Ledger(), "error", err)
		return stats.NewStore(a.Stats, nil)
	}
	return stats.NewStore(a.Stats, l)
}

func reportEvent(out io.Writer, e pubsub.Event[scan.Event]) {
	ev := e.Payload
	ts := ev.At.Format("15:04:05")
	switch e.Type {
	case pubsub.ClaimedEvent:
		_, _ = fmt.Fprintf(out, "%s claimed %s\n", ts, ev.Item)
	case pubsub.CompletedEvent:
		_, _ = fmt.Fprintf(out, "%s finished %s\n", ts, ev.Item)
	case pubsub.FailedEvent:
		_, _ = fmt.Fprintf(out, "%s failed %s: %v\n", ts, ev.Item, ev.Err)
	}
}

// syncWriter serializes the loop's and the event reporter's output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
