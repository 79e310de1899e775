package agents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/prompt"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/roster"
	"github.com/zjrosen/kai/internal/round"
	"github.com/zjrosen/kai/internal/stats"
)

// ReportSuffix marks files the recycler reviews.
const ReportSuffix = "-report.md"

// maxResubmitReport caps how much of a failed report is quoted in the
// resubmitted request.
const maxResubmitReport = 2000

// Verdict is the recycler's ruling on a report.
type Verdict int

const (
	Unsolved Verdict = iota
	Solved
)

func (v Verdict) String() string {
	if v == Solved {
		return "solved"
	}
	return "unsolved"
}

// Recycler reviews the reports of every other instance and files each one
// as solved or unsolved. Unsolved work is sent back for another attempt.
type Recycler struct{}

var (
	_ agent.Type    = Recycler{}
	_ agent.Claimer = Recycler{}
)

func (Recycler) Name() string           { return "recycler" }
func (Recycler) LabelFormat() string    { return "♻️ {name}" }
func (Recycler) PromptTemplate() string { return "recycler.md" }

func (r Recycler) BuildConfig(ws paths.Workspace, instance string) agent.Config {
	cfg := agent.NewConfig(ws, r, instance)
	cfg.Trigger = agent.TriggerConfig{
		Watch:     []string{cfg.Input},
		WatchFunc: peerReportDirs,
		Custom:    hasReports,
	}
	cfg.Termination = round.SingleRun
	return cfg
}

// peerReportDirs lists the reports/ of every instance but cfg's own. It is
// rebuilt on every evaluation so new hires are picked up.
func peerReportDirs(cfg agent.Config) ([]string, error) {
	names, err := roster.Names(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, n := range names {
		if n != cfg.Name {
			dirs = append(dirs, cfg.Workspace.Agent(n).Reports)
		}
	}
	return dirs, nil
}

func hasReports(_ agent.Config, snap agent.Snapshot) (bool, error) {
	for _, items := range snap {
		for _, name := range items {
			if strings.HasSuffix(name, ReportSuffix) {
				return true, nil
			}
		}
	}
	return false, nil
}

type candidate struct {
	origin  string
	dir     string
	name    string
	modTime time.Time
}

// Claim moves the oldest peer report into ongoing/.
func (Recycler) Claim(_ context.Context, rt *agent.Runtime, cfg agent.Config) (agent.Item, error) {
	names, err := roster.Names(cfg.Workspace)
	if err != nil {
		return agent.Item{}, err
	}

	// Reports handed back by 'kai retry' sit in our own tasks/ and have
	// lost their origin.
	sources := []candidate{{dir: cfg.Input}}
	for _, n := range names {
		if n != cfg.Name {
			sources = append(sources, candidate{origin: n, dir: cfg.Workspace.Agent(n).Reports})
		}
	}

	var best *candidate
	for _, src := range sources {
		dir := src.dir
		reports, err := queue.New(dir).ListSuffix(ReportSuffix)
		if err != nil || len(reports) == 0 {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, reports[0]))
		if err != nil {
			continue
		}
		if best == nil || info.ModTime().Before(best.modTime) {
			best = &candidate{origin: src.origin, dir: dir, name: reports[0], modTime: info.ModTime()}
		}
	}
	if best == nil {
		return agent.Item{}, agent.ErrNothingToClaim
	}

	proc := cfg.ProcessingQueue()
	final, err := queue.New(best.dir).Claim(best.name, proc)
	if err != nil {
		return agent.Item{}, err
	}
	return agent.Item{
		Name:      final,
		Path:      proc.Path(final),
		Source:    best.dir,
		Origin:    best.origin,
		ClaimedAt: rt.Time(),
		RunID:     uuid.NewString(),
	}, nil
}

// ProcessItem reviews one report and routes it to solved-report/ or
// unsolved-report/. A backend failure leaves it in ongoing/.
func (Recycler) ProcessItem(ctx context.Context, rt *agent.Runtime, cfg agent.Config, item agent.Item) error {
	proc := cfg.ProcessingQueue()
	content, err := proc.Read(item.Name)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	origin := item.Origin
	var originStats string
	if origin != "" {
		originStats, err = readOptional(stats.MarkdownFile(cfg.Workspace.Agent(origin).Stats, item.Name))
		if err != nil {
			return agent.Failed(cfg, item, err)
		}
	}

	p, err := rt.Render(ctx, cfg, prompt.Vars{
		"report_file":    item.Path,
		"report_content": content,
		"origin":         orNone(origin),
		"stats":          orNone(originStats),
		"solved_dir":     cfg.Paths.Solved,
		"unsolved_dir":   cfg.Paths.Unsolved,
	})
	if err != nil {
		return agent.Failed(cfg, item, err)
	}

	out, err := rt.Drive(ctx, cfg, item, p, cfg.Workspace.Root)
	if err != nil {
		return agent.Failed(cfg, item, err)
	}
	output := out.Session.Last().Result

	solved := queue.New(cfg.Paths.Solved)
	unsolved := queue.New(cfg.Paths.Unsolved)

	var verdict Verdict
	switch {
	case solved.Exists(item.Name):
		verdict = Solved
	case unsolved.Exists(item.Name):
		verdict = Unsolved
	case !proc.Exists(item.Name):
		log.Info(log.CatLoop, "Report handled by backend", "agent", cfg.Name, "item", item.Name)
		return nil
	default:
		verdict = ParseVerdict(output)
		into := unsolved
		if verdict == Solved {
			into = solved
		}
		if _, err := proc.Release(item.Name, into); err != nil {
			return agent.Failed(cfg, item, err)
		}
	}

	dest := cfg.Paths.Unsolved
	if verdict == Solved {
		dest = cfg.Paths.Solved
	}
	moveRelatedStats(cfg.Workspace, origin, item.Name, dest)

	if verdict == Unsolved {
		reason := ensureUnsolvedReason(cfg, item.Name, output)
		if err := resubmit(rt, cfg, item, content, reason); err != nil {
			return agent.Failed(cfg, item, err)
		}
	}

	remember(cfg, rt.Time(), "%s from %s: %s", item.Name, orNone(origin), verdict)
	log.Info(log.CatLoop, "Report reviewed", "agent", cfg.Name, "item", item.Name, "origin", origin, "verdict", verdict)
	return nil
}

// Verdict phrases are matched on whole words so "unresolved" never reads as
// "solved". Marks and CJK phrases have no word boundaries and match anywhere.
var (
	unsolvedPhrases = [][]string{
		{"unsolved"}, {"unresolved"}, {"incomplete"},
		{"not", "solved"}, {"not", "resolved"},
		{"not", "fully", "solved"}, {"not", "fully", "resolved"},
	}
	solvedPhrases = [][]string{{"solved"}, {"resolved"}}
	unsolvedMarks = []string{"未解决", "未完成", "❌"}
	solvedMarks   = []string{"已解决", "已完成", "✅"}
)

// ParseVerdict reads the ruling from the backend's reply. The first word
// decides when it is a verdict; otherwise any unsolved marker wins over a
// solved one. A reply without a verdict counts as unsolved.
func ParseVerdict(output string) Verdict {
	text := strings.ToLower(output)
	if fields := strings.Fields(text); len(fields) > 0 {
		switch strings.Trim(fields[0], "*`[]:.!") {
		case "solved", "已解决", "已完成":
			return Solved
		case "unsolved", "unresolved", "incomplete", "未解决", "未完成":
			return Unsolved
		}
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	switch {
	case containsPhrase(words, unsolvedPhrases) || containsAny(text, unsolvedMarks):
		return Unsolved
	case containsPhrase(words, solvedPhrases) || containsAny(text, solvedMarks):
		return Solved
	}
	return Unsolved
}

func containsPhrase(words []string, phrases [][]string) bool {
	for i := range words {
		for _, p := range phrases {
			if i+len(p) <= len(words) && slices.Equal(words[i:i+len(p)], p) {
				return true
			}
		}
	}
	return false
}

func containsAny(text string, marks []string) bool {
	for _, m := range marks {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func unsolvedReasonName(item string) string {
	return stats.TaskName(item) + "-unsolved-reason.md"
}

// ensureUnsolvedReason makes sure unsolved-report/ explains the ruling and
// returns the explanation.
func ensureUnsolvedReason(cfg agent.Config, item, output string) string {
	q := queue.New(cfg.Paths.Unsolved)
	name := unsolvedReasonName(item)
	if existing, err := q.Read(name); err == nil {
		return existing
	}
	reason := strings.TrimSpace(output)
	if reason == "" {
		reason = "The review gave no reason. See the report next to this file."
	}
	reason = "# Why this is unsolved\n\n" + reason + "\n"
	if err := q.Write(name, reason); err != nil {
		log.Warn(log.CatLoop, "Could not write unsolved reason", "agent", cfg.Name, "item", item, "error", err)
	}
	return reason
}

// moveRelatedStats files the origin's stats for item next to the report.
func moveRelatedStats(ws paths.Workspace, origin, item, dest string) {
	if origin == "" {
		return
	}
	dir := ws.Agent(origin).Stats
	for _, src := range []string{stats.JSONFile(dir, item), stats.MarkdownFile(dir, item)} {
		target := filepath.Join(dest, filepath.Base(src))
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.Rename(src, target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn(log.CatStats, "Could not move stats file", "file", src, "error", err)
		}
	}
}

// resubmit sends unsolved work back: to the first secretary if there is
// one, otherwise straight to the origin worker.
func resubmit(rt *agent.Runtime, cfg agent.Config, item agent.Item, report, reason string) error {
	task := stats.TaskName(item.Name)

	into := ""
	secretaries, err := roster.OfType(cfg.Workspace, Secretary{}.Name())
	if err != nil {
		return err
	}
	switch {
	case len(secretaries) > 0:
		into = cfg.Workspace.Agent(secretaries[0].Name).Tasks
	case item.Origin != "":
		into = cfg.Workspace.Agent(item.Origin).Tasks
	default:
		log.Warn(log.CatLoop, "Nowhere to resubmit unsolved report", "agent", cfg.Name, "item", item.Name)
		return nil
	}

	if len(report) > maxResubmitReport {
		report = report[:maxResubmitReport] + "\n...(truncated)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Resubmitted: %s\n\n", task)
	fmt.Fprintf(&b, "The previous attempt at `%s` was reviewed as unsolved. Address the review below and avoid repeating work that is already done.\n\n", task)
	if item.Origin != "" {
		fmt.Fprintf(&b, "Previous worker: `%s`\n\n", item.Origin)
	}
	fmt.Fprintf(&b, "## Review\n\n%s\n\n## Previous report\n\n%s\n", strings.TrimSpace(reason), strings.TrimSpace(report))

	now := rt.Time()
	name, err := writeUnique(queue.New(into), fmt.Sprintf("%s-retry-%s.md", task, now.Format(stampFormat)), b.String(), now)
	if err != nil {
		return err
	}
	log.Info(log.CatLoop, "Resubmitted unsolved task", "agent", cfg.Name, "task", task, "to", into, "item", name)
	return nil
}
