package graph

import (
	"errors"
	"os"

	"github.com/google/uuid"
)

// Planner recursively expands a requested target into a memoised Job DAG.
// It holds the candidate rule list used to resolve producers for each
// discovered input; the Workflow registry constructs one per top-level
// Plan call.
type Planner struct {
	rules []*Rule

	memo    map[string]*Job
	visited map[string]bool
}

// NewPlanner builds a Planner over the given candidate rule set.
func NewPlanner(rules []*Rule) *Planner {
	return &Planner{
		rules:   rules,
		memo:    make(map[string]*Job),
		visited: make(map[string]bool),
	}
}

// Plan expands rule into a Job, recursively planning producers for each of
// its inputs. requestedOutput is nil for a rule invoked without a concrete
// target (e.g. the first registered rule); otherwise it is the concrete
// path that selected rule as a candidate.
func (pl *Planner) Plan(rule *Rule, requestedOutput *string, forceAll, forceThis, dryRun bool) (*Job, error) {
	binding := map[string]string{}
	if requestedOutput != nil {
		b, ok := rule.Bind(*requestedOutput)
		if !ok {
			return nil, &MissingRuleError{Path: *requestedOutput}
		}
		binding = b
	}

	inputs, outputs, err := rule.Expand(binding)
	if err != nil {
		return nil, err
	}

	key := jobKey(rule, outputs)
	if job, ok := pl.memo[key]; ok {
		return job, nil
	}
	if pl.visited[key] {
		return nil, &CyclicGraphError{Rule: rule.name, Path: key}
	}
	pl.visited[key] = true
	defer delete(pl.visited, key)

	var deps []*Job
	var missingPaths []string
	var missingWrapped []error

	for _, input := range inputs {
		producerJob, producerErrs, err := pl.planProducer(input, rule, forceAll, dryRun)
		if err != nil {
			return nil, err
		}

		if producerJob != nil {
			if producerJob.NeedsRun {
				deps = append(deps, producerJob)
			}
			continue
		}

		if _, statErr := os.Stat(input); statErr != nil {
			missingPaths = append(missingPaths, input)
			missingWrapped = append(missingWrapped, producerErrs...)
		}
	}

	if len(missingPaths) > 0 {
		return nil, &MissingInputError{Rule: rule.name, Paths: missingPaths, Wrapped: missingWrapped}
	}

	needsRun := forceThis || forceAll || len(deps) > 0 || rule.IsStale(inputs, outputs, false)

	job := &Job{
		ID:       uuid.New(),
		Rule:     rule,
		Binding:  binding,
		Inputs:   inputs,
		Outputs:  outputs,
		Deps:     deps,
		Message:  rule.FormatMessage(inputs, outputs, binding),
		NeedsRun: needsRun,
		DryRun:   dryRun,
	}
	pl.memo[key] = job
	return job, nil
}

// planProducer finds the rules (other than self) that produce input and
// recursively plans the unique successful one. It returns a nil Job (with
// any collected MissingInput errors) when every candidate failed, so the
// caller can fall back to a filesystem presence check.
func (pl *Planner) planProducer(input string, self *Rule, forceAll, dryRun bool) (*Job, []error, error) {
	var chosen *Job
	var chosenRuleName string
	var collected []error

	for _, candidate := range pl.rules {
		if candidate == self {
			continue
		}
		if !candidate.IsProducer(input) {
			continue
		}

		reqOutput := input
		job, err := pl.Plan(candidate, &reqOutput, forceAll, false, dryRun)
		if err != nil {
			var missing *MissingInputError
			if errors.As(err, &missing) {
				collected = append(collected, err)
				continue
			}
			return nil, nil, err
		}

		if chosen != nil {
			return nil, nil, &AmbiguousRuleError{Path: input, First: chosenRuleName, Other: candidate.Name()}
		}
		chosen = job
		chosenRuleName = candidate.Name()
	}

	return chosen, collected, nil
}
