package graph

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/edgecomet/buildgraph/pkg/pathpattern"
)

// ActionFunc is the opaque callback a rule loader supplies to actually
// transform inputs into outputs. The core never looks inside it; it only
// invokes it with the concrete paths and wildcard binding a Job resolved.
type ActionFunc func(ctx context.Context, inputs, outputs []string, binding map[string]string) error

// Rule holds a set of input/output path patterns, a shared wildcard name
// set, and the action that produces the outputs from the inputs.
type Rule struct {
	name     string
	inputs   []*pathpattern.Pattern
	outputs  []*pathpattern.Pattern
	wildcard map[string]struct{} // established wildcard name set, from outputs
	message  string
	action   ActionFunc
}

// NewRule creates an empty, unnamed-pattern rule. Inputs and outputs are
// added with AddInput/AddOutput.
func NewRule(name string) *Rule {
	return &Rule{name: name}
}

func (r *Rule) Name() string { return r.name }

func (r *Rule) SetMessage(tmpl string) { r.message = tmpl }

func (r *Rule) SetAction(action ActionFunc) { r.action = action }

func (r *Rule) HasAction() bool { return r.action != nil }

// Run invokes the rule's action callback, or returns nil immediately for a
// rule without one (a phony, dependency-only rule).
func (r *Rule) Run(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
	if r.action == nil {
		return nil
	}
	return r.action(ctx, inputs, outputs, binding)
}

// flattenPaths recursively flattens nested path sequences. Rule loaders
// built from dynamic configuration (e.g. a YAML list of lists) commonly
// hand the core such nested structures.
func flattenPaths(paths []interface{}) ([]string, error) {
	var out []string
	for _, p := range paths {
		switch v := p.(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		case []interface{}:
			nested, err := flattenPaths(v)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			return nil, fmt.Errorf("unsupported path element type %T", p)
		}
	}
	return out, nil
}

// AddInput appends input path patterns. Every wildcard name referenced by
// an input pattern must appear in the rule's established output wildcard
// set; this is checked lazily by Expand, since inputs may be added before
// or after outputs.
func (r *Rule) AddInput(paths ...interface{}) error {
	flat, err := flattenPaths(paths)
	if err != nil {
		return err
	}
	for _, raw := range flat {
		p, err := pathpattern.Compile(raw)
		if err != nil {
			return err
		}
		r.inputs = append(r.inputs, p)
	}
	return nil
}

// AddOutput appends output path patterns, validating that each new
// pattern's wildcard name set equals the rule's established set.
func (r *Rule) AddOutput(paths ...interface{}) error {
	flat, err := flattenPaths(paths)
	if err != nil {
		return err
	}
	for _, raw := range flat {
		p, err := pathpattern.Compile(raw)
		if err != nil {
			return err
		}

		if r.wildcard == nil {
			r.wildcard = make(map[string]struct{}, len(p.Names()))
			for _, n := range p.Names() {
				r.wildcard[n] = struct{}{}
			}
		} else if !sameNameSet(r.wildcard, p.Names()) {
			return &InconsistentWildcardsError{
				Rule:     r.name,
				Pattern:  raw,
				Expected: sortedKeys(r.wildcard),
				Got:      p.Names(),
			}
		}

		r.outputs = append(r.outputs, p)
	}
	return nil
}

func sameNameSet(set map[string]struct{}, names []string) bool {
	if len(set) != len(names) {
		return false
	}
	for _, n := range names {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasOutputs reports whether the rule declares any outputs.
func (r *Rule) HasOutputs() bool { return len(r.outputs) > 0 }

// WildcardNames returns the rule's output wildcard name set.
func (r *Rule) WildcardNames() []string {
	return sortedKeys(r.wildcard)
}

// IsProducer reports whether any output pattern matches path in full.
func (r *Rule) IsProducer(path string) bool {
	for _, o := range r.outputs {
		if _, ok := o.Match(path); ok {
			return true
		}
	}
	return false
}

// Bind finds the output pattern that matches concreteOutput and, among
// ties, prefers the shortest total captured-value length (declaration
// order breaks further ties) — the shortest-match rule of spec §4.2.
func (r *Rule) Bind(concreteOutput string) (map[string]string, bool) {
	var best map[string]string
	bestLen := -1

	for _, o := range r.outputs {
		binding, ok := o.Match(concreteOutput)
		if !ok {
			continue
		}
		capLen := o.CaptureLength(binding)
		if best == nil || capLen < bestLen {
			best = binding
			bestLen = capLen
		}
	}

	return best, best != nil
}

// Expand formats every input and output pattern against binding.
func (r *Rule) Expand(binding map[string]string) (inputs, outputs []string, err error) {
	inputs = make([]string, 0, len(r.inputs))
	for _, p := range r.inputs {
		formatted, err := p.Format(binding)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, formatted)
	}

	outputs = make([]string, 0, len(r.outputs))
	for _, p := range r.outputs {
		formatted, err := p.Format(binding)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, formatted)
	}

	return inputs, outputs, nil
}

// IsStale implements spec §4.2's staleness predicate.
func (r *Rule) IsStale(inputs, outputs []string, force bool) bool {
	// A rule lacking an action can never be (re)run, so it is never
	// reported stale regardless of force — this keeps a phony,
	// action-less grouping rule from forcing every dependent to rebuild.
	if r.action == nil {
		return false
	}
	if force {
		return true
	}
	if len(outputs) == 0 {
		return true
	}

	var minOutputMtime, maxInputMtime int64
	haveOutputMtime := false
	haveInputMtime := false

	for _, out := range outputs {
		info, err := os.Stat(out)
		if err != nil {
			return true
		}
		mt := info.ModTime().UnixNano()
		if !haveOutputMtime || mt < minOutputMtime {
			minOutputMtime = mt
			haveOutputMtime = true
		}
	}

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			continue // missing inputs don't contribute to the mtime comparison
		}
		mt := info.ModTime().UnixNano()
		if !haveInputMtime || mt > maxInputMtime {
			maxInputMtime = mt
			haveInputMtime = true
		}
	}

	if !haveInputMtime {
		return false
	}
	return minOutputMtime <= maxInputMtime
}

// FormatMessage renders the rule's message template, or a default
// description when none was set.
func (r *Rule) FormatMessage(inputs, outputs []string, binding map[string]string) string {
	if r.message != "" {
		if rendered, err := renderMessage(r.message, inputs, outputs, binding); err == nil {
			return rendered
		}
	}
	return fmt.Sprintf("rule %s:\n\tinput: %s\n\toutput: %s", r.name, strings.Join(inputs, ", "), strings.Join(outputs, ", "))
}

func renderMessage(tmpl string, inputs, outputs []string, binding map[string]string) (string, error) {
	data := make(map[string]interface{}, len(binding)+2)
	for k, v := range binding {
		data[k] = v
	}
	data["input"] = strings.Join(inputs, " ")
	data["output"] = strings.Join(outputs, " ")

	t, err := template.New("message").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
