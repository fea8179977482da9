package graph

import (
	"strings"

	"github.com/google/uuid"
)

// Job is a planned invocation of a Rule with a fixed wildcard binding.
type Job struct {
	// ID correlates a Job across log lines and the worker pool; it has no
	// bearing on planning or execution semantics. Grounded on the
	// teacher's per-request correlation IDs (internal/common/requestid).
	ID uuid.UUID

	Rule     *Rule
	Binding  map[string]string
	Inputs   []string
	Outputs  []string
	Deps     []*Job
	Message  string
	NeedsRun bool
	DryRun   bool
}

// Key returns the Job's memoisation key: (rule, outputs-tuple). Two
// planning paths that arrive at the same rule producing the same outputs
// share one Job.
func (j *Job) Key() string {
	return jobKey(j.Rule, j.Outputs)
}

func jobKey(rule *Rule, outputs []string) string {
	return rule.name + "\x00" + strings.Join(outputs, "\x00")
}
