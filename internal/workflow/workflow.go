// Package workflow owns the rule registry, the working directory, and the
// worker pool: the entry points a loader and CLI front-end drive ("run
// named rule", "produce file"). Grounded on the teacher's registry-style
// coordinators (internal/render/registry, internal/cachedaemon) — a
// write-once-then-read-only map guarded by a mutex, with explicit
// constructor options instead of package-level state (SPEC_FULL.md §5:
// REDESIGN FLAGS carries this forward from spec.md §9's "global Workflow
// singleton" note).
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.uber.org/zap"

	"github.com/edgecomet/buildgraph/internal/common/configtypes"
	"github.com/edgecomet/buildgraph/internal/common/logger"
	"github.com/edgecomet/buildgraph/internal/exec"
	"github.com/edgecomet/buildgraph/internal/graph"
	"github.com/edgecomet/buildgraph/internal/graphmetrics"
)

// Options configures a single run (spec.md §6's enumerated run options).
type Options struct {
	DryRun    bool
	ForceThis bool
	ForceAll  bool
	Quiet     bool
	Jobs      int
}

// Workflow is the registry of rules plus the working-directory and
// worker-pool state shared across planning and execution. The zero value
// is not usable; build one with New.
type Workflow struct {
	mu    sync.RWMutex
	rules map[string]*graph.Rule
	order []string // insertion order, for first/last and RunFirst

	workdirSet bool

	logger  *zap.Logger
	metrics *graphmetrics.Collector
}

// Option configures a Workflow at construction time.
type Option func(*Workflow)

// WithLogger attaches a zap logger; a nil logger falls back to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics attaches a Prometheus collector shared across runs.
func WithMetrics(m *graphmetrics.Collector) Option {
	return func(w *Workflow) { w.metrics = m }
}

// New creates an empty Workflow.
func New(opts ...Option) *Workflow {
	w := &Workflow{
		rules:  make(map[string]*graph.Rule),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewFromConfig builds the logger described by cfg.Log (internal/common/logger)
// and attaches it to a new Workflow, so every Register/Plan/Execute call and
// everything the scheduler logs during a run shares the one configured
// logger. This is the glue between the loaded config and the core: a CLI
// front-end calls this instead of New+WithLogger directly.
func NewFromConfig(cfg *configtypes.WorkflowConfig, opts ...Option) (*Workflow, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("building logger from config: %w", err)
	}
	allOpts := append([]Option{WithLogger(log)}, opts...)
	return New(allOpts...), nil
}

// Register inserts rule by name, preserving insertion order. It fails with
// *graph.RuleDefinitionError if the name is already taken (spec.md §6's
// DuplicateName).
func (w *Workflow) Register(rule *graph.Rule) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.rules[rule.Name()]; exists {
		return &graph.RuleDefinitionError{Rule: rule.Name(), Reason: "duplicate rule name"}
	}
	if rule.HasOutputs() && !rule.HasAction() {
		return &graph.RuleDefinitionError{Rule: rule.Name(), Reason: "rule has outputs but no action"}
	}

	w.rules[rule.Name()] = rule
	w.order = append(w.order, rule.Name())
	w.logger.Debug("registered rule", zap.String("rule", rule.Name()))
	return nil
}

// HasRule reports whether name is registered.
func (w *Workflow) HasRule(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.rules[name]
	return ok
}

// GetRule returns the named rule, or false if it isn't registered.
func (w *Workflow) GetRule(name string) (*graph.Rule, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.rules[name]
	return r, ok
}

// FirstRule returns the first-registered rule, or false if none are
// registered yet.
func (w *Workflow) FirstRule() (*graph.Rule, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.order) == 0 {
		return nil, false
	}
	return w.rules[w.order[0]], true
}

// LastRule returns the most-recently-registered rule, or false if none are
// registered yet.
func (w *Workflow) LastRule() (*graph.Rule, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.order) == 0 {
		return nil, false
	}
	return w.rules[w.order[len(w.order)-1]], true
}

// allRules returns a snapshot of every registered rule, in insertion order.
func (w *Workflow) allRules() []*graph.Rule {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*graph.Rule, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.rules[name])
	}
	return out
}

// SetWorkdir creates dir if it doesn't exist and chdirs the process into
// it. Idempotent: calls after the first are ignored, matching spec.md
// §4.5's "set at most once" lifecycle.
func (w *Workflow) SetWorkdir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workdirSet || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workdir %q: %w", dir, err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("changing into workdir %q: %w", dir, err)
	}
	w.workdirSet = true
	return nil
}

// CheckRules verifies every rule that declares outputs has an action,
// spec.md §4.5's definition-time sanity check.
func (w *Workflow) CheckRules() error {
	for _, r := range w.allRules() {
		if r.HasOutputs() && !r.HasAction() {
			return &graph.RuleDefinitionError{Rule: r.Name(), Reason: "rule has outputs but no action"}
		}
	}
	return nil
}

// resolveJobs returns opts.Jobs if positive, otherwise the host's logical
// CPU count (gopsutil, matching the teacher's render/chrome auto-sizing),
// falling back to 1 if that probe fails.
func resolveJobs(opts Options) int {
	if opts.Jobs > 0 {
		return opts.Jobs
	}
	counts, err := cpu.Counts(true)
	if err != nil || counts < 1 {
		return 1
	}
	return counts
}

// Plan expands rule into a Job DAG rooted at requestedOutput (nil for a
// rule invoked without a concrete target) without running anything. This is
// the plan-introspection entry point SPEC_FULL.md §4 adds so a caller can
// inspect or serialise a plan (e.g. a future --dump-plan) separately from
// Execute.
func (w *Workflow) Plan(rule *graph.Rule, requestedOutput *string, opts Options) (*graph.Job, error) {
	pl := graph.NewPlanner(w.allRules())
	return pl.Plan(rule, requestedOutput, opts.ForceAll, opts.ForceThis, opts.DryRun)
}

// Execute runs a previously planned Job DAG through a worker pool sized
// from opts (or the host CPU count).
func (w *Workflow) Execute(ctx context.Context, job *graph.Job, opts Options) error {
	sched := exec.NewScheduler(resolveJobs(opts),
		exec.WithLogger(w.logger),
		exec.WithMetrics(w.metrics),
		exec.WithQuiet(opts.Quiet),
	)
	return sched.Execute(ctx, job)
}

// run plans rule (optionally against requestedOutput) and executes the
// result, the shared body behind RunFirst/RunNamed/Produce.
func (w *Workflow) run(ctx context.Context, rule *graph.Rule, requestedOutput *string, opts Options) error {
	job, err := w.Plan(rule, requestedOutput, opts)
	if err != nil {
		return err
	}
	return w.Execute(ctx, job, opts)
}

// RunFirst runs the first-registered rule with no requested output. Per
// spec.md §9's Open Question (resolved in SPEC_FULL.md §4), a first rule
// that declares wildcards cannot be the default target, since there is no
// requested output to bind them from.
func (w *Workflow) RunFirst(ctx context.Context, opts Options) error {
	rule, ok := w.FirstRule()
	if !ok {
		return fmt.Errorf("no rules registered")
	}
	if names := rule.WildcardNames(); len(names) > 0 {
		return &graph.FirstRuleHasWildcardsError{Rule: rule.Name(), Wildcards: names}
	}
	return w.run(ctx, rule, nil, opts)
}

// RunNamed runs the named rule with no requested output (same wildcard
// restriction as RunFirst applies whenever the rule declares wildcards).
func (w *Workflow) RunNamed(ctx context.Context, name string, opts Options) error {
	rule, ok := w.GetRule(name)
	if !ok {
		return fmt.Errorf("no such rule %q", name)
	}
	if names := rule.WildcardNames(); len(names) > 0 {
		return &graph.FirstRuleHasWildcardsError{Rule: rule.Name(), Wildcards: names}
	}
	return w.run(ctx, rule, nil, opts)
}

// Produce finds the unique rule that produces concretePath and runs it.
// Candidate rules are probed with a dry-run plan first (spec.md §4.5):
// a candidate that fails with MissingInput is dropped rather than
// immediately erroring, so Produce can fall through to another candidate
// or, if every candidate fails, aggregate their MissingInput errors.
func (w *Workflow) Produce(ctx context.Context, concretePath string, opts Options) error {
	rule, err := w.resolveProducer(concretePath, opts)
	if err != nil {
		return err
	}
	target := concretePath
	return w.run(ctx, rule, &target, opts)
}

func (w *Workflow) resolveProducer(concretePath string, opts Options) (*graph.Rule, error) {
	var candidates []*graph.Rule
	for _, r := range w.allRules() {
		if r.IsProducer(concretePath) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, &graph.MissingRuleError{Path: concretePath}
	}

	var chosen *graph.Rule
	var missingErrs []error
	for _, candidate := range candidates {
		pl := graph.NewPlanner(w.allRules())
		target := concretePath
		_, err := pl.Plan(candidate, &target, opts.ForceAll, opts.ForceThis, true)
		if err != nil {
			var missing *graph.MissingInputError
			if errors.As(err, &missing) {
				missingErrs = append(missingErrs, err)
				continue
			}
			return nil, err
		}
		if chosen != nil {
			return nil, &graph.AmbiguousRuleError{Path: concretePath, First: chosen.Name(), Other: candidate.Name()}
		}
		chosen = candidate
	}

	if chosen == nil {
		return nil, &graph.MissingInputError{Rule: concretePath, Paths: []string{concretePath}, Wrapped: missingErrs}
	}
	return chosen, nil
}
