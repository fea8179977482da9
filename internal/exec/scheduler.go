// Package exec runs a planned Job DAG: it waits for dependencies, dispatches
// ready jobs to a bounded worker pool, and surfaces the first error while
// letting in-flight jobs drain. Grounded on the teacher's worker-pool and
// coordinator style (internal/edge/orchestrator), reimplemented here over
// golang.org/x/sync's errgroup+semaphore instead of a hand-rolled channel
// pool — the idiomatic-Go expression of spec §5's "fixed pool, first error
// wins, in-flight jobs drain" contract.
package exec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/edgecomet/buildgraph/internal/graph"
	"github.com/edgecomet/buildgraph/internal/graphmetrics"
)

// Scheduler dispatches a planned Job DAG through a fixed-size worker pool.
type Scheduler struct {
	workers int
	quiet   bool
	logger  *zap.Logger
	metrics *graphmetrics.Collector
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger attaches a zap logger; a nil logger falls back to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches a job metrics collector. A nil collector is fine —
// every Collector method is a no-op on a nil receiver.
func WithMetrics(m *graphmetrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithQuiet suppresses per-rule message logging (errors still surface).
func WithQuiet(quiet bool) Option {
	return func(s *Scheduler) { s.quiet = quiet }
}

// NewScheduler builds a Scheduler with a worker pool sized to workers. A
// non-positive workers defaults to 1.
func NewScheduler(workers int, opts ...Option) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{workers: workers, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type jobResult struct {
	done chan struct{}
	err  error
}

// Execute runs the DAG rooted at root and blocks until the root Job's
// completion signal fires. On the first job failure, no further jobs are
// dispatched; jobs already running are allowed to finish. The first error
// encountered anywhere in the DAG is returned.
func (s *Scheduler) Execute(ctx context.Context, root *graph.Job) error {
	jobs := collectJobs(root)
	s.metrics.ObservePlanned(len(jobs))

	results := make(map[string]*jobResult, len(jobs))
	for _, j := range jobs {
		results[j.Key()] = &jobResult{done: make(chan struct{})}
	}

	sem := semaphore.NewWeighted(int64(s.workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, j := range jobs {
		j := j
		res := results[j.Key()]
		g.Go(func() error {
			for _, dep := range j.Deps {
				depRes := results[dep.Key()]
				select {
				case <-depRes.done:
				case <-gctx.Done():
					finish(res, gctx.Err())
					return nil
				}
				if depRes.err != nil {
					finish(res, fmt.Errorf("dependency %q did not complete: %w", dep.Rule.Name(), depRes.err))
					return nil
				}
			}

			if err := sem.Acquire(gctx, 1); err != nil {
				finish(res, err)
				return nil
			}
			defer sem.Release(1)

			err := s.runJob(gctx, j)
			finish(res, err)
			return err
		})
	}

	err := g.Wait()

	rootRes := results[root.Key()]
	<-rootRes.done
	if err != nil {
		return err
	}
	return rootRes.err
}

func finish(res *jobResult, err error) {
	res.err = err
	close(res.done)
}

// collectJobs walks the DAG from root and returns every unique Job
// (deduplicated by Key, matching the planner's memoisation) exactly once.
func collectJobs(root *graph.Job) []*graph.Job {
	seen := make(map[string]bool)
	var out []*graph.Job

	var visit func(j *graph.Job)
	visit = func(j *graph.Job) {
		key := j.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		for _, dep := range j.Deps {
			visit(dep)
		}
		out = append(out, j)
	}
	visit(root)
	return out
}

// runJob implements spec §4.4's dispatch rules for a single Job.
func (s *Scheduler) runJob(ctx context.Context, job *graph.Job) error {
	if !job.NeedsRun {
		s.metrics.JobSkipped(job.Rule.Name())
		return nil
	}

	if job.DryRun {
		if !s.quiet {
			s.logger.Info(job.Message, zap.String("rule", job.Rule.Name()), zap.String("job_id", job.ID.String()), zap.Bool("dry_run", true))
		}
		return nil
	}

	start := time.Now()
	err := s.runAction(ctx, job)
	duration := time.Since(start).Seconds()

	result := "ran"
	if err != nil {
		result = "failed"
	}
	s.metrics.JobFinished(job.Rule.Name(), result, duration)

	return err
}

// runAction implements the run_action sub-steps of spec §4.4: print the
// message, ensure output directories exist, invoke the action, clean up on
// failure, and verify outputs exist on success.
func (s *Scheduler) runAction(ctx context.Context, job *graph.Job) error {
	s.metrics.JobStarted()

	if !s.quiet {
		s.logger.Info(job.Message, zap.String("rule", job.Rule.Name()), zap.String("job_id", job.ID.String()))
	}

	for _, out := range job.Outputs {
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("rule %q: creating output directory %q: %w", job.Rule.Name(), dir, err)
			}
		}
	}

	if err := job.Rule.Run(ctx, job.Inputs, job.Outputs, job.Binding); err != nil {
		cleanupOutputs(job.Outputs)
		return &graph.ActionFailedError{Rule: job.Rule.Name(), Cause: err}
	}

	for _, out := range job.Outputs {
		if _, statErr := os.Stat(out); statErr != nil {
			return &graph.MissingOutputError{Rule: job.Rule.Name(), Path: out}
		}
	}

	return nil
}

// cleanupOutputs removes any output paths an action created before failing:
// an unlink for a file, a remove for an empty directory. Paths that were
// never created are left alone (os.Remove on a missing path is ignored).
func cleanupOutputs(outputs []string) {
	for _, out := range outputs {
		os.Remove(out)
	}
}
