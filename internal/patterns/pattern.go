package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const regexPrefix = "re:"

// Pattern is one textual marker. Literal patterns are matched against text that
// has already been lower-cased and whitespace-collapsed (see corpus.Corpus.Text).
//
// Syntax:
//
//	re:<expr>            case-insensitive regular expression
//	a || b               either literal
//	a && b               both literals on the same page
//	a && b || c          (a and b) or c
type Pattern struct {
	source string
	re     *regexp.Regexp
	alts   [][]string
}

// ParsePattern compiles a pattern from its textual form.
func ParsePattern(src string) (Pattern, error) {
	p := Pattern{source: src}
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return p, fmt.Errorf("empty pattern")
	}
	if strings.HasPrefix(trimmed, regexPrefix) {
		re, err := regexp.Compile("(?i)" + strings.TrimPrefix(trimmed, regexPrefix))
		if err != nil {
			return p, fmt.Errorf("pattern %q: %w", src, err)
		}
		p.re = re
		return p, nil
	}
	for _, alt := range strings.Split(trimmed, "||") {
		var group []string
		for _, lit := range strings.Split(alt, "&&") {
			lit = NormalizeLiteral(lit)
			if lit == "" {
				return p, fmt.Errorf("pattern %q: empty literal", src)
			}
			group = append(group, lit)
		}
		p.alts = append(p.alts, group)
	}
	return p, nil
}

// MustPattern is ParsePattern for package-level literals and tests.
func MustPattern(src string) Pattern {
	p, err := ParsePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

// NormalizeLiteral puts a literal into the same form as corpus match text.
func NormalizeLiteral(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}

// Match reports whether the pattern occurs in text.
func (p Pattern) Match(text string) bool {
	if p.re != nil {
		return p.re.MatchString(text)
	}
	for _, group := range p.alts {
		all := true
		for _, lit := range group {
			if !strings.Contains(text, lit) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Remove blanks out every occurrence of the pattern in text.
func (p Pattern) Remove(text string) string {
	if p.re != nil {
		return p.re.ReplaceAllString(text, " ")
	}
	for _, group := range p.alts {
		for _, lit := range group {
			text = strings.ReplaceAll(text, lit, " ")
		}
	}
	return text
}

// String returns the pattern as written.
func (p Pattern) String() string { return p.source }

// IsRegex reports whether the pattern is a regular expression.
func (p Pattern) IsRegex() bool { return p.re != nil }

// Regexp exposes the compiled expression of a regex pattern, nil otherwise.
func (p Pattern) Regexp() *regexp.Regexp { return p.re }

func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePattern(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = parsed
	return nil
}

func (p Pattern) MarshalYAML() (interface{}, error) { return p.source, nil }

// Set is an ordered list of patterns.
type Set []Pattern

// NewSet parses every source into a Set.
func NewSet(sources ...string) (Set, error) {
	s := make(Set, 0, len(sources))
	for _, src := range sources {
		p, err := ParsePattern(src)
		if err != nil {
			return nil, err
		}
		s = append(s, p)
	}
	return s, nil
}

// MustSet panics on an invalid source.
func MustSet(sources ...string) Set {
	s, err := NewSet(sources...)
	if err != nil {
		panic(err)
	}
	return s
}

// Any reports whether at least one pattern matches.
func (s Set) Any(text string) bool {
	for _, p := range s {
		if p.Match(text) {
			return true
		}
	}
	return false
}

// Count returns how many distinct patterns of the set match.
func (s Set) Count(text string) int {
	n := 0
	for _, p := range s {
		if p.Match(text) {
			n++
		}
	}
	return n
}

// FirstMatch returns the index of the first matching pattern or -1.
func (s Set) FirstMatch(text string) int {
	for i, p := range s {
		if p.Match(text) {
			return i
		}
	}
	return -1
}

// Regex is a case-insensitive expression decoded from a YAML scalar.
type Regex struct {
	*regexp.Regexp
	source string
}

// CompileRegex compiles src with case folding enabled.
func CompileRegex(src string) (Regex, error) {
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		return Regex{}, fmt.Errorf("regex %q: %w", src, err)
	}
	return Regex{Regexp: re, source: src}, nil
}

// MustRegex panics on an invalid expression.
func MustRegex(src string) Regex {
	r, err := CompileRegex(src)
	if err != nil {
		panic(err)
	}
	return r
}

// Valid reports whether the expression was set.
func (r Regex) Valid() bool { return r.Regexp != nil }

func (r *Regex) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*r = Regex{}
		return nil
	}
	compiled, err := CompileRegex(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = compiled
	return nil
}

func (r Regex) MarshalYAML() (interface{}, error) { return r.source, nil }
