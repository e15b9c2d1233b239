// Package pipeline sequences one QA run: execute suites, compute the
// coverage gate, persist the report bundle, and optionally package new
// failures into bug entries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkoosis/megaqa/pkg/bundle"
	"github.com/dkoosis/megaqa/pkg/coverage"
	"github.com/dkoosis/megaqa/pkg/packager"
	"github.com/dkoosis/megaqa/pkg/qa"
	"github.com/dkoosis/megaqa/pkg/runner"
)

// Exit codes returned by a run.
const (
	ExitPass    = 0
	ExitFail    = 1
	ExitPersist = 2
)

// State is a step of the run state machine.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateAggregating State = "aggregating"
	StateGating      State = "gating"
	StateWriting     State = "writing"
	StatePackaging   State = "packaging"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Transition is reported to OnState on every state change. Suite and Name
// identify the suite for StateRunning; Suite is -1 otherwise.
type Transition struct {
	From  State
	To    State
	Suite int
	Name  string
}

// Run describes one invocation.
type Run struct {
	ID          string
	Mode        Mode
	Scenario    string
	Seed        int64
	GitSHA      string
	GitBranch   string
	Environment qa.Environment
	Suites      []runner.Spec
	// Package forces packaging on; ModeCI packages regardless.
	Package bool
}

// Result is what a run produced. Dir is zero when the bundle could not be
// persisted.
type Result struct {
	Bundle   qa.ReportBundle
	Dir      bundle.Dir
	Bugs     []qa.BugEntry
	ExitCode int
	State    State
}

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	Runner   runner.Runner
	Registry *coverage.Registry
	Writer   *bundle.Writer
	// Packager is required only when a run packages.
	Packager  *packager.Packager
	OutputDir string
	// RequiredTagsOut, when set, receives the required tag list each run.
	RequiredTagsOut string
	// MaxParallel above 1 runs suites concurrently.
	MaxParallel int
	Log         *slog.Logger
	OnState     func(Transition)
	OnSuite     func(index int, o runner.Outcome)
	Now         func() time.Time

	mu    sync.Mutex
	state State
}

// Execute performs the run. The returned error is non-nil only when the
// bundle or the ledger could not be persisted; failing tests and crashed
// tools are reported through Result.ExitCode.
func (p *Pipeline) Execute(ctx context.Context, r Run) (Result, error) {
	log := p.logger().With("run_id", r.ID)
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()

	started := p.now()
	outcomes := p.runSuites(ctx, r.Suites)

	p.transition(StateAggregating, -1, "")
	var (
		suites   = make([]qa.SuiteResult, 0, len(outcomes))
		failures []qa.Failure
		observed []string
		scanDirs []string
	)
	for i, o := range outcomes {
		suites = append(suites, o.Result)
		failures = append(failures, o.Failures...)
		observed = append(observed, o.Tags...)
		scanDirs = append(scanDirs, r.Suites[i].ArtifactDir)
	}

	p.transition(StateGating, -1, "")
	cov := p.Registry.Compute(observed)
	if p.RequiredTagsOut != "" {
		if err := p.Registry.WriteRequiredTags(p.RequiredTagsOut); err != nil {
			log.Warn("could not write required tags", "path", p.RequiredTagsOut, "error", err)
		}
	}
	result, exit := qa.Verdict(cov, suites)
	log.Info("gate evaluated", "result", result, "coverage", cov.CoveragePercent, "missing", len(cov.Missing))

	p.transition(StateWriting, -1, "")
	dir, err := bundle.InitDir(p.OutputDir, r.ID)
	if err != nil {
		return p.fail(log, err)
	}
	artifacts, failures := bundle.CollectArtifacts(dir, failures, scanDirs, log)
	finished := p.now()
	b := qa.ReportBundle{
		Manifest: qa.RunManifest{
			RunID:       r.ID,
			GitSHA:      r.GitSHA,
			GitBranch:   r.GitBranch,
			Mode:        string(r.Mode),
			Scenario:    r.Scenario,
			Seed:        r.Seed,
			Result:      result,
			ExitCode:    exit,
			DurationMs:  finished.Sub(started).Milliseconds(),
			StartedAt:   started.UTC(),
			FinishedAt:  finished.UTC(),
			Environment: r.Environment,
		},
		Coverage:  cov,
		Suites:    suites,
		Failures:  failures,
		Artifacts: artifacts,
		Summary:   qa.Summarize(suites, failures, cov),
	}
	if err := p.writer().Write(dir, b); err != nil {
		return p.fail(log, err)
	}
	res := Result{Bundle: b, Dir: dir, ExitCode: exit}

	if r.Package || r.Mode.Packages() {
		p.transition(StatePackaging, -1, "")
		bugs, err := p.packageBundle(dir)
		if err != nil {
			res.ExitCode = ExitPersist
			res.State = StateFailed
			p.transition(StateFailed, -1, "")
			log.Error("packaging failed", "error", err)
			return res, err
		}
		res.Bugs = bugs
	}

	p.transition(StateDone, -1, "")
	res.State = StateDone
	return res, nil
}

func (p *Pipeline) runSuites(ctx context.Context, specs []runner.Spec) []runner.Outcome {
	outcomes := make([]runner.Outcome, len(specs))
	run := func(i int) {
		p.transition(StateRunning, i, specs[i].Name)
		if err := ctx.Err(); err != nil {
			outcomes[i] = notStarted(specs[i], err)
		} else {
			outcomes[i] = p.Runner.Run(ctx, specs[i])
		}
		if p.OnSuite != nil {
			p.mu.Lock()
			p.OnSuite(i, outcomes[i])
			p.mu.Unlock()
		}
	}

	if p.MaxParallel <= 1 {
		for i := range specs {
			run(i)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(p.MaxParallel)
	for i := range specs {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// notStarted records a suite skipped because the run was interrupted. It
// counts as errored so an interrupted run can never pass.
func notStarted(spec runner.Spec, err error) runner.Outcome {
	return runner.Outcome{
		Result: qa.SuiteResult{
			Name:        spec.Name,
			Category:    spec.Category,
			Tool:        spec.Tool,
			Status:      qa.SuiteError,
			Error:       "not started: " + err.Error(),
			Tests:       []qa.Test{},
			CoveredTags: []string{},
			FailureIDs:  []string{},
		},
		Failures: []qa.Failure{},
		Tags:     []string{},
	}
}

// packageBundle reads the bundle back from disk; packaging never sees
// in-memory state.
func (p *Pipeline) packageBundle(dir bundle.Dir) ([]qa.BugEntry, error) {
	if p.Packager == nil {
		return nil, errors.New("packaging requested but no packager configured")
	}
	b, err := bundle.Read(dir.Path)
	if err != nil {
		return nil, err
	}
	entries, err := p.Packager.Package(b)
	if err != nil {
		return nil, err
	}
	if err := p.Packager.WriteBugs(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *Pipeline) fail(log *slog.Logger, err error) (Result, error) {
	p.transition(StateFailed, -1, "")
	log.Error("bundle not persisted", "error", err)
	if !errors.Is(err, bundle.ErrPersist) {
		err = fmt.Errorf("%w: %v", bundle.ErrPersist, err)
	}
	return Result{ExitCode: ExitPersist, State: StateFailed}, err
}

func (p *Pipeline) transition(to State, suite int, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := Transition{From: p.state, To: to, Suite: suite, Name: name}
	p.state = to
	if to == StateRunning {
		p.logger().Debug("state", "from", t.From, "to", to, "suite", name)
	} else {
		p.logger().Debug("state", "from", t.From, "to", to)
	}
	if p.OnState != nil {
		p.OnState(t)
	}
}

func (p *Pipeline) writer() *bundle.Writer {
	if p.Writer != nil {
		return p.Writer
	}
	return &bundle.Writer{Log: p.Log}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
