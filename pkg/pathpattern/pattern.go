// Package pathpattern compiles wildcard path templates into matchers and
// formatters.
//
// A template is a plain string containing zero or more named placeholders of
// the form {name}. A placeholder matches any non-empty run of characters,
// including path separators (wildcards are greedy and span directories).
// Everything outside a placeholder, including a literal ".", is matched
// literally.
package pathpattern

import (
	"fmt"
	"regexp"
	"strings"
)

// identRe validates a placeholder name the same way a Go identifier would be
// validated: it must start with a letter or underscore and contain only
// letters, digits, and underscores.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// MalformedPatternError is returned by Compile when a template contains a
// placeholder with an empty or invalid name.
type MalformedPatternError struct {
	Template string
	Reason   string
}

func (e *MalformedPatternError) Error() string {
	return fmt.Sprintf("malformed pattern %q: %s", e.Template, e.Reason)
}

// UnboundWildcardError is returned by Format when a binding is missing a
// name the template references.
type UnboundWildcardError struct {
	Template string
	Name     string
}

func (e *UnboundWildcardError) Error() string {
	return fmt.Sprintf("pattern %q references unbound wildcard %q", e.Template, e.Name)
}

// Pattern is a compiled path template: a regular-expression matcher plus
// enough bookkeeping to reverse the match back into a concrete path.
type Pattern struct {
	template string
	names    []string // declared wildcard names, in order of first appearance
	nameSet  map[string]struct{}
	matcher  *regexp.Regexp
}

// Compile parses template and returns a Pattern ready for Match/Format.
func Compile(template string) (*Pattern, error) {
	names := make([]string, 0, 2)
	nameSet := make(map[string]struct{}, 2)

	var reBuilder strings.Builder
	reBuilder.WriteByte('^')

	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(template, -1) {
		start, end := loc[0], loc[1]
		nameStart, nameEnd := loc[2], loc[3]
		name := template[nameStart:nameEnd]

		if name == "" {
			return nil, &MalformedPatternError{Template: template, Reason: "placeholder name is empty"}
		}
		if !identRe.MatchString(name) {
			return nil, &MalformedPatternError{Template: template, Reason: fmt.Sprintf("placeholder name %q is not a valid identifier", name)}
		}

		reBuilder.WriteString(regexp.QuoteMeta(template[last:start]))
		if _, seen := nameSet[name]; seen {
			// A repeated wildcard must capture the same value each time.
			reBuilder.WriteString(fmt.Sprintf("(?P<%s_dup>.+)", name))
		} else {
			reBuilder.WriteString(fmt.Sprintf("(?P<%s>.+)", name))
			names = append(names, name)
			nameSet[name] = struct{}{}
		}

		last = end
	}
	reBuilder.WriteString(regexp.QuoteMeta(template[last:]))
	reBuilder.WriteByte('$')

	matcher, err := regexp.Compile(reBuilder.String())
	if err != nil {
		return nil, &MalformedPatternError{Template: template, Reason: err.Error()}
	}

	return &Pattern{
		template: template,
		names:    names,
		nameSet:  nameSet,
		matcher:  matcher,
	}, nil
}

// Template returns the original template string.
func (p *Pattern) Template() string {
	return p.template
}

// Names returns the set of wildcard names declared by the template, in
// order of first appearance.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// HasName reports whether name is one of the template's declared wildcards.
func (p *Pattern) HasName(name string) bool {
	_, ok := p.nameSet[name]
	return ok
}

// Match anchors the pattern against the full concrete string and, on
// success, returns the captured binding. The second return value is false
// when concrete does not match the pattern at all.
func (p *Pattern) Match(concrete string) (map[string]string, bool) {
	m := p.matcher.FindStringSubmatch(concrete)
	if m == nil {
		return nil, false
	}

	binding := make(map[string]string, len(p.names))
	for i, groupName := range p.matcher.SubexpNames() {
		if i == 0 || groupName == "" {
			continue
		}
		if strings.HasSuffix(groupName, "_dup") {
			name := strings.TrimSuffix(groupName, "_dup")
			if binding[name] != m[i] {
				return nil, false
			}
			continue
		}
		binding[groupName] = m[i]
	}
	return binding, true
}

// Format substitutes binding into the template, producing a concrete path.
// It fails with *UnboundWildcardError if binding is missing a name the
// template references.
func (p *Pattern) Format(binding map[string]string) (string, error) {
	var missingName string
	result := placeholderRe.ReplaceAllStringFunc(p.template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := binding[name]
		if !ok {
			missingName = name
			return match
		}
		return value
	})
	if missingName != "" {
		return "", &UnboundWildcardError{Template: p.template, Name: missingName}
	}
	return result, nil
}

// CaptureLength returns the total length, in characters, of the values
// binding assigns to this pattern's declared wildcard names. Rule.Bind uses
// this to implement the shortest-match tie-break between multiple outputs
// of the same rule.
func (p *Pattern) CaptureLength(binding map[string]string) int {
	total := 0
	for _, name := range p.names {
		total += len(binding[name])
	}
	return total
}
