package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/pubsub"
	"github.com/zjrosen/kai/internal/round"
	"github.com/zjrosen/kai/internal/tracing"
)

// DefaultPollInterval is the time between trigger evaluations.
const DefaultPollInterval = 5 * time.Second

// MaxClaimRetries bounds the immediate re-evaluations after lost claim
// races within one cycle.
const MaxClaimRetries = 3

// Option configures a Loop.
type Option func(*Loop)

// WithPollInterval sets the time between trigger evaluations.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithCooldown sets the pause after each processed item.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) { l.cooldown = d }
}

// WithOnce makes Run return after a single cycle.
func WithOnce(once bool) Option {
	return func(l *Loop) { l.once = once }
}

// WithBroker publishes loop events on b.
func WithBroker(b pubsub.Publisher[Event]) Option {
	return func(l *Loop) { l.broker = b }
}

// WithTracer records a span per cycle and per item.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithWake adds a channel that triggers an early evaluation.
func WithWake(ch <-chan struct{}) Option {
	return func(l *Loop) { l.wake = ch }
}

// WithBeforeCycle runs fn at the start of every cycle.
func WithBeforeCycle(fn func(ctx context.Context)) Option {
	return func(l *Loop) { l.beforeCycle = fn }
}

// Loop drives one agent instance.
type Loop struct {
	typ agent.Type
	cfg agent.Config
	rt  *agent.Runtime

	poll        time.Duration
	cooldown    time.Duration
	once        bool
	broker      pubsub.Publisher[Event]
	tracer      trace.Tracer
	wake        <-chan struct{}
	beforeCycle func(ctx context.Context)

	state     atomic.Int32
	cycles    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New returns a loop for the instance described by cfg.
func New(t agent.Type, cfg agent.Config, rt *agent.Runtime, opts ...Option) *Loop {
	l := &Loop{
		typ:    t,
		cfg:    cfg,
		rt:     rt,
		poll:   DefaultPollInterval,
		tracer: noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the instance config.
func (l *Loop) Config() agent.Config { return l.cfg }

// State returns the current state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Stats returns how many cycles ran and how many items completed or failed.
func (l *Loop) Stats() (cycles, completed, failed int64) {
	return l.cycles.Load(), l.completed.Load(), l.failed.Load()
}

// Run evaluates the trigger on every poll tick or wake-up until ctx is
// cancelled. It returns nil on cancellation, and the error when a trigger
// evaluation fails fatally.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(Stopped)

	log.Info(log.CatLoop, "Scan loop started", "agent", l.cfg.Name, "type", l.cfg.Type,
		"termination", l.cfg.Termination, "poll", l.poll, "once", l.once)

	if _, err := agent.RecoverOngoing(l.cfg); err != nil {
		log.ErrorErr(log.CatLoop, "Could not recover interrupted items", err, "agent", l.cfg.Name)
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.Cycle(ctx); err != nil {
			return err
		}
		if l.once {
			return nil
		}

		select {
		case <-ctx.Done():
			log.Info(log.CatLoop, "Scan loop stopping", "agent", l.cfg.Name)
			return nil
		case <-ticker.C:
		case <-l.wake:
			log.Debug(log.CatLoop, "Woken by file change", "agent", l.cfg.Name)
		}
	}
}

// Cycle runs one evaluate-claim-execute pass. Only a
// *agent.TriggerEvaluationError is returned; everything else is logged.
func (l *Loop) Cycle(ctx context.Context) (err error) {
	l.cycles.Add(1)
	ctx, span := l.tracer.Start(ctx, tracing.SpanScanCycle, trace.WithAttributes(tracing.Agent(l.cfg.Name, l.cfg.Type)...))
	defer func() { tracing.End(span, err) }()

	if l.beforeCycle != nil {
		l.beforeCycle(ctx)
	}

	for attempt := 0; attempt <= MaxClaimRetries; attempt++ {
		l.setState(Evaluating)
		fired, err := agent.Evaluate(l.cfg)
		if err != nil {
			var te *agent.TriggerEvaluationError
			if errors.As(err, &te) {
				log.ErrorErr(log.CatTrigger, "Trigger evaluation failed, stopping", err, "agent", l.cfg.Name)
				return err
			}
			log.Warn(log.CatTrigger, "Could not evaluate trigger", "agent", l.cfg.Name, "error", err)
			l.setState(Idle)
			return nil
		}
		span.SetAttributes(attribute.Bool(tracing.AttrTriggered, fired))
		if !fired {
			l.setState(Idle)
			return nil
		}

		l.setState(Claiming)
		item, err := agent.Claim(ctx, l.rt, l.typ, l.cfg)
		switch {
		case errors.Is(err, agent.ErrClaimRace):
			log.Debug(log.CatQueue, "Lost claim race, re-evaluating", "agent", l.cfg.Name, "attempt", attempt+1, "error", err)
			continue
		case errors.Is(err, agent.ErrNothingToClaim):
			l.setState(Idle)
			return nil
		case err != nil:
			log.Warn(log.CatQueue, "Claim failed", "agent", l.cfg.Name, "error", err)
			l.setState(Idle)
			return nil
		}

		l.execute(ctx, item)

		l.setState(CoolingDown)
		if l.cooldown > 0 {
			_ = round.Sleep(ctx, l.cooldown)
		}
		l.setState(Idle)
		return nil
	}

	log.Debug(log.CatQueue, "Giving up after repeated claim races", "agent", l.cfg.Name)
	l.setState(Idle)
	return nil
}

func (l *Loop) execute(ctx context.Context, item agent.Item) {
	l.setState(Executing)
	l.publish(pubsub.ClaimedEvent, Event{Item: item.Name, RunID: item.RunID, Origin: item.Origin})
	log.Info(log.CatLoop, "Claimed item", "agent", l.cfg.Name, "item", item.Name, "run_id", item.RunID,
		"resumed", item.Resumed, "origin", item.Origin)

	ctx, span := l.tracer.Start(ctx, tracing.SpanAgentItem, trace.WithAttributes(
		attribute.String(tracing.AttrAgentName, l.cfg.Name),
		attribute.String(tracing.AttrItemName, item.Name),
		attribute.String(tracing.AttrItemRunID, item.RunID),
		attribute.String(tracing.AttrTermination, l.cfg.Termination.String()),
	))

	err := agent.Process(ctx, l.rt, l.typ, l.cfg, item)
	tracing.End(span, err)

	if err != nil {
		l.failed.Add(1)
		if ctx.Err() != nil {
			log.Warn(log.CatLoop, "Item interrupted", "agent", l.cfg.Name, "item", item.Name, "run_id", item.RunID)
		} else {
			log.ErrorErr(log.CatLoop, "Item failed", err, "agent", l.cfg.Name, "item", item.Name, "run_id", item.RunID)
		}
		l.publish(pubsub.FailedEvent, Event{Item: item.Name, RunID: item.RunID, Origin: item.Origin, Err: err})
		return
	}

	l.completed.Add(1)
	l.publish(pubsub.CompletedEvent, Event{Item: item.Name, RunID: item.RunID, Origin: item.Origin})
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	l.publish(pubsub.StateEvent, Event{})
}

func (l *Loop) publish(t pubsub.EventType, ev Event) {
	if l.broker == nil {
		return
	}
	ev.Agent = l.cfg.Name
	ev.State = l.State()
	ev.At = time.Now()
	l.broker.Publish(t, ev)
}
