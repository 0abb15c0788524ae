package runner

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects scenarios by name with glob patterns. A pattern prefixed
// with "!" excludes matching names.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles patterns. '*' does not cross '/' separators, '**' does.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}

		exclude := strings.HasPrefix(pattern, "!")
		pattern = strings.TrimPrefix(pattern, "!")

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid scenario pattern '%s': %w", raw, err)
		}
		if exclude {
			f.exclude = append(f.exclude, g)
		} else {
			f.include = append(f.include, g)
		}
	}
	return f, nil
}

// Match reports whether name is selected. Exclusions win; with no include
// patterns everything else is selected.
func (f *Filter) Match(name string) bool {
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Select returns the scenarios whose names match, preserving order.
func (f *Filter) Select(scenarios []Scenario) []Scenario {
	var out []Scenario
	for _, s := range scenarios {
		if f.Match(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// SplitPatterns splits a comma separated -run value.
func SplitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
