package graph

import (
	"fmt"
	"strings"
)

// MissingRuleError means no rule declares an output matching the requested
// file.
type MissingRuleError struct {
	Path string
}

func (e *MissingRuleError) Error() string {
	return fmt.Sprintf("no rule produces %q", e.Path)
}

// MissingInputError aggregates the inputs a rule could not obtain: either
// the file is absent and no rule produces it, or every candidate producer
// failed with its own MissingInputError.
type MissingInputError struct {
	Rule    string
	Paths   []string
	Wrapped []error
}

func (e *MissingInputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule %q: missing input(s) %s", e.Rule, strings.Join(e.Paths, ", "))
	for _, w := range e.Wrapped {
		fmt.Fprintf(&b, "\n\t%s", w.Error())
	}
	return b.String()
}

func (e *MissingInputError) Unwrap() []error {
	return e.Wrapped
}

// MissingOutputError means a rule's action returned successfully but a
// declared output was not produced.
type MissingOutputError struct {
	Rule string
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("rule %q: action completed but output %q was not produced", e.Rule, e.Path)
}

// AmbiguousRuleError means two rules both claim the same concrete input
// with equal standing.
type AmbiguousRuleError struct {
	Path  string
	First string
	Other string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("ambiguous producer for %q: both %q and %q can produce it", e.Path, e.First, e.Other)
}

// InconsistentWildcardsError means a rule's outputs do not all declare the
// same wildcard name set.
type InconsistentWildcardsError struct {
	Rule     string
	Pattern  string
	Expected []string
	Got      []string
}

func (e *InconsistentWildcardsError) Error() string {
	return fmt.Sprintf("rule %q: output %q has wildcards %v, expected %v", e.Rule, e.Pattern, e.Got, e.Expected)
}

// ActionFailedError wraps the error an action callback returned.
type ActionFailedError struct {
	Rule  string
	Cause error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("rule %q: action failed: %v", e.Rule, e.Cause)
}

func (e *ActionFailedError) Unwrap() error {
	return e.Cause
}

// CyclicGraphError is raised by the planner's visited-stack guard when a
// rule is re-entered while already being planned — see spec §9's reserved
// CyclicGraph kind and the REDESIGN FLAGS section of SPEC_FULL.md.
type CyclicGraphError struct {
	Rule string
	Path string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: rule %q re-entered while planning %q", e.Rule, e.Path)
}

// FirstRuleHasWildcardsError is raised when a rule is invoked with no
// requested output (the first-registered rule via RunFirst, or a named rule
// via RunNamed) but declares wildcards that an empty binding cannot
// satisfy — the Open Question in spec §9, resolved per SPEC_FULL.md §4.
type FirstRuleHasWildcardsError struct {
	Rule      string
	Wildcards []string
}

func (e *FirstRuleHasWildcardsError) Error() string {
	return fmt.Sprintf("rule %q cannot run without a requested output: it declares wildcards %v that need a requested output to bind", e.Rule, e.Wildcards)
}

// RuleDefinitionError wraps a definition-time mistake: a rule with outputs
// but no action, or a duplicate name. DuplicateName in spec §6 is reported
// through this with Reason set accordingly; actions are callbacks on the
// Rule, so there is no action-symbol name collision to report.
type RuleDefinitionError struct {
	Rule   string
	Reason string
}

func (e *RuleDefinitionError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Reason)
}
