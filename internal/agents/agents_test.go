package agents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/backend"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
	"github.com/zjrosen/kai/internal/stats"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	recs []stats.ItemRecord
}

func (r *recorder) Record(_ context.Context, rec stats.ItemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

// fakeBackend records requests and answers through hook.
type fakeBackend struct {
	mu   sync.Mutex
	reqs []backend.Request
	hook func(call int, req backend.Request) (backend.Response, error)
}

func (f *fakeBackend) Run(_ context.Context, req backend.Request) (backend.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	call := len(f.reqs)
	f.mu.Unlock()
	return f.hook(call, req)
}

func reply(text string) func(int, backend.Request) (backend.Response, error) {
	return func(int, backend.Request) (backend.Response, error) {
		return backend.Response{SessionID: "s1", Text: text}, nil
	}
}

func newRuntime(ws paths.Workspace, b backend.Backend, rec stats.Recorder) *agent.Runtime {
	return &agent.Runtime{
		Workspace: ws,
		Executor: round.NewExecutor(b, round.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		})),
		Prompts: prompt.NewLoader(ws.CustomPromptsDir()),
		Stats:   rec,
		Now:     func() time.Time { return fixedNow },
	}
}

func hire(t *testing.T, ws paths.Workspace, name, typ, target string) {
	t.Helper()
	require.NoError(t, roster.Hire(ws, roster.Entry{Name: name, Type: typ, Target: target, Description: typ + " " + name}))
}

func items(t *testing.T, dir string) []string {
	t.Helper()
	names, err := queue.New(dir).List()
	require.NoError(t, err)
	return names
}

func TestWorker_FixBug(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "sen", "worker", "")
	cfg := Worker{}.BuildConfig(ws, "sen")
	require.Equal(t, "👷 sen", cfg.Label)
	require.NoError(t, cfg.InputQueue().Write("fix-bug.md", "# Fix bug\n\nThe parser drops the last line.\n"))

	fired, err := agent.Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, fired)

	fb := &fakeBackend{}
	fb.hook = func(call int, req backend.Request) (backend.Response, error) {
		switch call {
		case 1:
			require.NoError(t, cfg.OutputQueue().Write("fix-bug-report.md", "fixed"))
		case 2:
			require.NoError(t, cfg.ProcessingQueue().Remove("fix-bug.md"))
		}
		return backend.Response{SessionID: "s1", Text: "working"}, nil
	}
	rec := &recorder{}
	rt := newRuntime(ws, fb, rec)

	item, err := agent.Claim(context.Background(), rt, Worker{}, cfg)
	require.NoError(t, err)
	require.Equal(t, "fix-bug.md", item.Name)
	require.Empty(t, items(t, cfg.Input))

	require.NoError(t, agent.Process(context.Background(), rt, Worker{}, cfg, item))

	require.Len(t, fb.reqs, 2)
	require.Contains(t, fb.reqs[0].Prompt, "The parser drops the last line.")
	require.Contains(t, fb.reqs[0].Prompt, filepath.Join(cfg.Output, "fix-bug-report.md"))
	require.Empty(t, fb.reqs[0].SessionID)
	require.Equal(t, "s1", fb.reqs[1].SessionID)
	require.Equal(t, backend.DefaultResumeMessage, fb.reqs[1].Prompt)
	require.Equal(t, cfg.Paths.Base, fb.reqs[0].WorkDir)

	require.Empty(t, items(t, cfg.Processing))
	require.Equal(t, []string{"fix-bug-report.md"}, items(t, cfg.Output))

	memory, err := os.ReadFile(cfg.Paths.Memory)
	require.NoError(t, err)
	require.Contains(t, string(memory), "completed fix-bug.md in 2 round(s)")

	require.Len(t, rec.recs, 1)
	require.Equal(t, stats.StatusCompleted, rec.recs[0].Status)
	require.Equal(t, "worker", rec.recs[0].AgentType)
}

func TestWorker_BackendFailureLeavesItem(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	cfg := Worker{}.BuildConfig(ws, "sen")
	require.NoError(t, cfg.InputQueue().Write("task.md", "workspace: /srv/app\ndo it"))

	fb := &fakeBackend{hook: func(int, backend.Request) (backend.Response, error) {
		return backend.Response{}, backend.ErrFailed
	}}
	rt := newRuntime(ws, fb, nil)

	item, err := agent.Claim(context.Background(), rt, Worker{}, cfg)
	require.NoError(t, err)
	err = Worker{}.ProcessItem(context.Background(), rt, cfg, item)

	var pe *agent.ProcessingError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, backend.ErrFailed)
	require.Equal(t, []string{"task.md"}, items(t, cfg.Processing))
	require.Equal(t, "/srv/app", fb.reqs[0].WorkDir)

	again, err := agent.Claim(context.Background(), rt, Worker{}, cfg)
	require.NoError(t, err)
	require.True(t, again.Resumed, "crashed items are picked up first")
}

func TestSecretary_AssignsAndFiles(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "sen", "worker", "")
	hire(t, ws, "sec", "secretary", "")
	cfg := Secretary{}.BuildConfig(ws, "sec")
	require.NoError(t, os.WriteFile(cfg.Paths.Goals, []byte("ship v2"), 0o600))
	require.NoError(t, cfg.InputQueue().Write("req.md", "please add retries"))

	sen := ws.Agent("sen")
	fb := &fakeBackend{hook: func(int, backend.Request) (backend.Response, error) {
		if err := queue.New(sen.Tasks).Write("add-retries.md", "# Add retries"); err != nil {
			return backend.Response{}, err
		}
		return backend.Response{SessionID: "s1", Text: "assigned add-retries.md to sen\n"}, nil
	}}
	rt := newRuntime(ws, fb, nil)

	item, err := agent.Claim(context.Background(), rt, Secretary{}, cfg)
	require.NoError(t, err)
	require.NoError(t, Secretary{}.ProcessItem(context.Background(), rt, cfg, item))

	p := fb.reqs[0].Prompt
	require.Contains(t, p, "please add retries")
	require.Contains(t, p, "ship v2")
	require.Contains(t, p, sen.Tasks)
	require.Contains(t, p, "worker sen")

	require.Empty(t, items(t, cfg.Processing))
	require.Equal(t, []string{"req.md"}, items(t, cfg.Paths.Assigned))
	require.Equal(t, []string{"add-retries.md"}, items(t, sen.Tasks))

	memory, err := os.ReadFile(cfg.Paths.Memory)
	require.NoError(t, err)
	require.Contains(t, string(memory), "req.md: assigned add-retries.md to sen")
}

func TestSecretary_FailureStillFiles(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	cfg := Secretary{}.BuildConfig(ws, "sec")
	require.NoError(t, cfg.InputQueue().Write("req.md", "x"))

	rt := newRuntime(ws, &fakeBackend{hook: func(int, backend.Request) (backend.Response, error) {
		return backend.Response{}, backend.ErrTimeout
	}}, nil)

	item, err := agent.Claim(context.Background(), rt, Secretary{}, cfg)
	require.NoError(t, err)
	err = Secretary{}.ProcessItem(context.Background(), rt, cfg, item)
	require.ErrorIs(t, err, backend.ErrTimeout)
	require.Equal(t, []string{"req.md"}, items(t, cfg.Paths.Assigned))
	require.NoFileExists(t, cfg.Paths.Memory)
}

func TestBossTarget(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	cfg := Boss{}.BuildConfig(ws, "chief")
	require.Equal(t, DefaultBossTarget, BossTarget(cfg))

	require.NoError(t, os.MkdirAll(cfg.Paths.Base, 0o750))
	require.NoError(t, os.WriteFile(cfg.Paths.BossConfig, []byte("# boss\n- worker: kim\n"), 0o600))
	require.Equal(t, "kim", BossTarget(cfg))

	hire(t, ws, "chief", "boss", "lee")
	require.Equal(t, "lee", BossTarget(cfg))
}

func TestBoss_WritesExactlyOneTask(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "sen", "worker", "")
	hire(t, ws, "chief", "boss", "sen")
	cfg := Boss{}.BuildConfig(ws, "chief")
	sen := ws.Agent("sen")
	require.NoError(t, os.WriteFile(cfg.Paths.Goal, []byte("make the CLI fast"), 0o600))
	require.NoError(t, queue.New(sen.Reports).Write("old-report.md", "done"))

	require.NoError(t, queue.New(sen.Tasks).Write("busy.md", "x"))
	fired, err := agent.Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, fired, "target still has work")

	require.NoError(t, queue.New(sen.Tasks).Remove("busy.md"))
	fired, err = agent.Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, fired)

	fb := &fakeBackend{hook: reply("# Profile startup\n\nMeasure and cut startup time.")}
	rt := newRuntime(ws, fb, nil)

	item, err := agent.Claim(context.Background(), rt, Boss{}, cfg)
	require.NoError(t, err)
	require.True(t, item.Synthetic)

	require.NoError(t, Boss{}.ProcessItem(context.Background(), rt, cfg, item))

	p := fb.reqs[0].Prompt
	require.Contains(t, p, "make the CLI fast")
	require.Contains(t, p, "old-report.md")
	require.Contains(t, p, sen.Tasks)

	tasks := items(t, sen.Tasks)
	require.Equal(t, []string{"boss-chief-20250601-093000.md"}, tasks)
	content, err := queue.New(sen.Tasks).Read(tasks[0])
	require.NoError(t, err)
	require.Equal(t, "# Profile startup\n\nMeasure and cut startup time.\n", content)

	require.Equal(t, []string{"20250601-093000-summary.md"}, items(t, cfg.Output))
	require.Empty(t, items(t, cfg.Processing))

	fired, err = agent.Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, fired, "the new task keeps the boss quiet")
}

func TestBoss_EmptyResult(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	cfg := Boss{}.BuildConfig(ws, "chief")
	rt := newRuntime(ws, &fakeBackend{hook: reply("   \n")}, nil)

	require.NoError(t, cfg.InputQueue().Write("goal-item.md", "focus on docs"))
	item, err := agent.Claim(context.Background(), rt, Boss{}, cfg)
	require.NoError(t, err)
	require.False(t, item.Synthetic)

	err = Boss{}.ProcessItem(context.Background(), rt, cfg, item)
	require.ErrorIs(t, err, ErrEmptyTask)
	require.Empty(t, items(t, ws.Agent(DefaultBossTarget).Tasks))
	require.Empty(t, items(t, cfg.Output))
	require.Empty(t, items(t, cfg.Processing))
}

func TestBoss_EarlyFailureDropsSyntheticTrigger(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "sen", "worker", "")
	hire(t, ws, "chief", "boss", "sen")
	cfg := Boss{}.BuildConfig(ws, "chief")
	require.NoError(t, os.MkdirAll(cfg.Paths.Goal, 0o750))

	fb := &fakeBackend{hook: reply("never used")}
	rt := newRuntime(ws, fb, nil)
	for range 3 {
		item, err := agent.Claim(context.Background(), rt, Boss{}, cfg)
		require.NoError(t, err)
		require.True(t, item.Synthetic)

		err = Boss{}.ProcessItem(context.Background(), rt, cfg, item)
		var perr *agent.ProcessingError
		require.ErrorAs(t, err, &perr)
		require.Empty(t, items(t, cfg.Processing))
	}
	require.Empty(t, fb.reqs)
	require.Empty(t, items(t, ws.Agent("sen").Tasks))
}

func setupRecycler(t *testing.T) (paths.Workspace, agent.Config) {
	t.Helper()
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "sen", "worker", "")
	hire(t, ws, "rec", "recycler", "")
	sen := ws.Agent("sen")
	require.NoError(t, queue.New(sen.Reports).Write("fix-bug-report.md", "I fixed it, tests pass."))
	require.NoError(t, queue.New(sen.Stats).Write("fix-bug-stats.md", "| 1 | first |"))
	require.NoError(t, queue.New(sen.Stats).Write("fix-bug-stats.json", "{}"))
	return ws, Recycler{}.BuildConfig(ws, "rec")
}

func TestRecycler_Solved(t *testing.T) {
	ws, cfg := setupRecycler(t)
	sen := ws.Agent("sen")

	fired, err := agent.Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, fired)

	fb := &fakeBackend{hook: reply("solved: the fix is in place")}
	rt := newRuntime(ws, fb, nil)
	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	require.Equal(t, "sen", item.Origin)
	require.Empty(t, items(t, sen.Reports))

	require.NoError(t, Recycler{}.ProcessItem(context.Background(), rt, cfg, item))
	require.Contains(t, fb.reqs[0].Prompt, "I fixed it, tests pass.")
	require.Contains(t, fb.reqs[0].Prompt, "| 1 | first |")

	require.ElementsMatch(t, []string{"fix-bug-report.md", "fix-bug-stats.md", "fix-bug-stats.json"}, items(t, cfg.Paths.Solved))
	require.Empty(t, items(t, cfg.Paths.Unsolved))
	require.Empty(t, items(t, cfg.Processing))
	require.Empty(t, items(t, sen.Tasks))

	fired, err = agent.Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, fired)
}

func TestRecycler_UnsolvedResubmits(t *testing.T) {
	ws, cfg := setupRecycler(t)
	sen := ws.Agent("sen")
	rt := newRuntime(ws, &fakeBackend{hook: reply("unsolved\nThe tests were never run.")}, nil)

	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	require.NoError(t, Recycler{}.ProcessItem(context.Background(), rt, cfg, item))

	unsolved := items(t, cfg.Paths.Unsolved)
	require.Contains(t, unsolved, "fix-bug-report.md")
	require.Contains(t, unsolved, "fix-bug-unsolved-reason.md")
	require.Empty(t, items(t, cfg.Paths.Solved))

	retry := items(t, sen.Tasks)
	require.Equal(t, []string{"fix-bug-retry-20250601-093000.md"}, retry)
	content, err := queue.New(sen.Tasks).Read(retry[0])
	require.NoError(t, err)
	require.Contains(t, content, "The tests were never run.")
	require.Contains(t, content, "I fixed it, tests pass.")
}

func TestRecycler_ResubmitsToSecretary(t *testing.T) {
	ws, cfg := setupRecycler(t)
	hire(t, ws, "sec", "secretary", "")
	rt := newRuntime(ws, &fakeBackend{hook: reply("no verdict here")}, nil)

	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	require.NoError(t, Recycler{}.ProcessItem(context.Background(), rt, cfg, item))

	require.Len(t, items(t, ws.Agent("sec").Tasks), 1)
	require.Empty(t, items(t, ws.Agent("sen").Tasks))
	require.Contains(t, items(t, cfg.Paths.Unsolved), "fix-bug-report.md")
}

func TestRecycler_BackendMovedReport(t *testing.T) {
	ws, cfg := setupRecycler(t)
	fb := &fakeBackend{hook: func(int, backend.Request) (backend.Response, error) {
		_, err := cfg.ProcessingQueue().Release("fix-bug-report.md", queue.New(cfg.Paths.Solved))
		return backend.Response{Text: "moved to solved, nothing unsolved"}, err
	}}
	rt := newRuntime(ws, fb, nil)

	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	require.NoError(t, Recycler{}.ProcessItem(context.Background(), rt, cfg, item))

	require.Contains(t, items(t, cfg.Paths.Solved), "fix-bug-report.md")
	require.NotContains(t, items(t, cfg.Paths.Unsolved), "fix-bug-report.md")
	require.Empty(t, items(t, ws.Agent("sen").Tasks), "the backend's own routing wins")
}

func TestRecycler_BackendFailureLeavesReport(t *testing.T) {
	ws, cfg := setupRecycler(t)
	rt := newRuntime(ws, &fakeBackend{hook: func(int, backend.Request) (backend.Response, error) {
		return backend.Response{}, backend.ErrUnavailable
	}}, nil)

	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	err = Recycler{}.ProcessItem(context.Background(), rt, cfg, item)
	require.ErrorIs(t, err, backend.ErrUnavailable)
	require.Equal(t, []string{"fix-bug-report.md"}, items(t, cfg.Processing))
	require.Empty(t, items(t, ws.Agent("sen").Reports))
}

func TestRecycler_IgnoresOwnAndNonReports(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "rec", "recycler", "")
	hire(t, ws, "chief", "boss", "")
	cfg := Recycler{}.BuildConfig(ws, "rec")
	require.NoError(t, queue.New(ws.Agent("chief").Reports).Write("20250601-093000-summary.md", "x"))
	require.NoError(t, cfg.OutputQueue().Write("mine-report.md", "x"))

	fired, err := agent.Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, fired)

	_, err = Recycler{}.Claim(context.Background(), newRuntime(ws, nil, nil), cfg)
	require.ErrorIs(t, err, agent.ErrNothingToClaim)
}

func TestRecycler_ClaimsRetriedReports(t *testing.T) {
	ws := paths.Workspace{Root: t.TempDir()}
	hire(t, ws, "rec", "recycler", "")
	cfg := Recycler{}.BuildConfig(ws, "rec")
	require.NoError(t, cfg.InputQueue().Write("fix-bug-report.md", "done"))

	fired, err := agent.Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, fired)

	rt := newRuntime(ws, &fakeBackend{hook: reply("solved")}, nil)
	item, err := agent.Claim(context.Background(), rt, Recycler{}, cfg)
	require.NoError(t, err)
	require.Empty(t, item.Origin)

	require.NoError(t, Recycler{}.ProcessItem(context.Background(), rt, cfg, item))
	require.Equal(t, []string{"fix-bug-report.md"}, items(t, cfg.Paths.Solved))
	require.Empty(t, items(t, cfg.Input))
}

// A reviewed report always ends up in exactly one of solved-report/ or
// unsolved-report/, whatever the backend says.
func TestRecycler_ReportLandsInExactlyOnePlace(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		root, err := os.MkdirTemp("", "recycler")
		if err != nil {
			rt.Fatal(err)
		}
		defer func() { _ = os.RemoveAll(root) }()

		ws := paths.Workspace{Root: root}
		for _, e := range []roster.Entry{{Name: "sen", Type: "worker"}, {Name: "rec", Type: "recycler"}} {
			if err := roster.Hire(ws, e); err != nil {
				rt.Fatal(err)
			}
		}
		if err := queue.New(ws.Agent("sen").Reports).Write("t-report.md", "r"); err != nil {
			rt.Fatal(err)
		}
		cfg := Recycler{}.BuildConfig(ws, "rec")

		text := rapid.SampledFrom([]string{"solved", "unsolved", "", "未解决", "已解决", "not solved", "✅ done", "maybe"}).Draw(rt, "reply")
		runtime := newRuntime(ws, &fakeBackend{hook: reply(text)}, nil)

		item, err := agent.Claim(context.Background(), runtime, Recycler{}, cfg)
		if err != nil {
			rt.Fatal(err)
		}
		if err := (Recycler{}).ProcessItem(context.Background(), runtime, cfg, item); err != nil {
			rt.Fatal(err)
		}

		in := 0
		for _, dir := range []string{cfg.Paths.Solved, cfg.Paths.Unsolved} {
			if queue.New(dir).Exists("t-report.md") {
				in++
			}
		}
		if in != 1 {
			rt.Fatalf("report in %d destinations for reply %q", in, text)
		}
		if queue.New(ws.Agent("sen").Reports).Exists("t-report.md") || cfg.ProcessingQueue().Exists("t-report.md") {
			rt.Fatalf("report left behind for reply %q", text)
		}
	})
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		reply string
		want  Verdict
	}{
		{"solved", Solved},
		{"**Solved** the task is done", Solved},
		{"unsolved: missing tests", Unsolved},
		{"The task is solved.", Solved},
		{"The task is not solved.", Unsolved},
		{"未解决，缺少测试", Unsolved},
		{"已解决", Solved},
		{"[判定: ✅ 已完成]", Solved},
		{"[判定: ❌ 未完成]", Unsolved},
		{"", Unsolved},
		{"I could not decide", Unsolved},
		{"solved! two unsolved nits remain", Solved},
		{"The bug remains unresolved; the test still fails.", Unsolved},
		{"Task was not fully solved: the migration is missing.", Unsolved},
		{"The crash is not resolved yet.", Unsolved},
		{"Work is incomplete, docs are missing.", Unsolved},
		{"Looks resolved to me.", Solved},
		{"All issues were dissolved into one fix", Unsolved},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseVerdict(tc.reply), "reply %q", tc.reply)
	}
}

func TestCustom(t *testing.T) {
	_, err := NewCustom(Definition{Name: "../x"})
	require.Error(t, err)
	_, err = NewCustom(Definition{Name: "x", Termination: "forever"})
	require.Error(t, err)
	_, err = NewCustom(Definition{Name: "x", Condition: "odd"})
	require.Error(t, err)
	_, err = NewCustom(Definition{Name: "x", Watch: []string{"/etc"}})
	require.Error(t, err)

	c, err := NewCustom(Definition{Name: "linter", Termination: "single_run"})
	require.NoError(t, err)
	require.Equal(t, DefaultCustomTemplate, c.PromptTemplate())

	ws := paths.Workspace{Root: t.TempDir()}
	cfg := c.BuildConfig(ws, "lint")
	require.Equal(t, round.SingleRun, cfg.Termination)
	require.Equal(t, []string{cfg.Input}, cfg.Trigger.Watch)
	require.Equal(t, "🤖 lint", cfg.Label)

	require.NoError(t, cfg.InputQueue().Write("check.md", "lint pkg/"))
	fb := &fakeBackend{hook: reply("ok")}
	rt := newRuntime(ws, fb, nil)
	item, err := agent.Claim(context.Background(), rt, c, cfg)
	require.NoError(t, err)
	require.NoError(t, c.ProcessItem(context.Background(), rt, cfg, item))
	require.Len(t, fb.reqs, 1)
	require.Contains(t, fb.reqs[0].Prompt, "lint pkg/")
	require.Equal(t, []string{"check.md"}, items(t, cfg.Paths.Done))
	require.Empty(t, items(t, cfg.Processing))
}

func TestCustom_WatchResolution(t *testing.T) {
	c, err := NewCustom(Definition{Name: "auditor", Condition: "is_empty", Watch: []string{"inbox", "sen/tasks"}})
	require.NoError(t, err)

	ws := paths.Workspace{Root: "/w"}
	cfg := c.BuildConfig(ws, "aud")
	require.Equal(t, []string{
		filepath.Join(cfg.Paths.Base, "inbox"),
		ws.Agent("sen").Tasks,
	}, cfg.Trigger.Watch)
	require.Equal(t, agent.IsEmpty, cfg.Trigger.Condition)
	require.Equal(t, round.UntilFileDeleted, cfg.Termination)
}

func TestRegisterBuiltins(t *testing.T) {
	r := agent.NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	require.Equal(t, []string{"boss", "recycler", "secretary", "worker"}, r.Names())

	c, err := NewCustom(Definition{Name: "worker"})
	require.NoError(t, err)
	err = r.Register(c)
	require.True(t, errors.Is(err, agent.ErrDuplicateAgentTypeName))

	got, err := r.Get("worker")
	require.NoError(t, err)
	require.IsType(t, Worker{}, got)

	for _, typ := range Builtins() {
		cfg := typ.BuildConfig(paths.Workspace{Root: "/w"}, "x")
		require.True(t, strings.HasSuffix(cfg.Label, " x"))
		require.Equal(t, typ.Name(), cfg.Type)
	}
}
