package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		match    []string
		reject   []string
	}{
		{
			name:  "no patterns selects everything",
			match: []string{"login/valid_user", "home/landing_visible"},
		},
		{
			name:     "star stays within a segment",
			patterns: []string{"login/*"},
			match:    []string{"login/valid_user", "login/invalid_user"},
			reject:   []string{"login/data/negative_tests/empty_email", "home/landing_visible"},
		},
		{
			name:     "double star crosses segments",
			patterns: []string{"login/**"},
			match:    []string{"login/valid_user", "login/data/negative_tests/empty_email"},
			reject:   []string{"home/landing_visible"},
		},
		{
			name:     "exclusion only",
			patterns: []string{"!login/data/**"},
			match:    []string{"login/valid_user", "home/landing_visible"},
			reject:   []string{"login/data/positive_tests/valid_login"},
		},
		{
			name:     "exclusion wins over inclusion",
			patterns: []string{"**", "!*/empty_*"},
			match:    []string{"login/valid_user"},
			reject:   []string{"login/empty_password"},
		},
		{
			name:     "alternatives",
			patterns: []string{"{home,login}/*_visible"},
			match:    []string{"home/landing_visible"},
			reject:   []string{"home/other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.patterns)
			require.NoError(t, err)
			for _, name := range tt.match {
				assert.True(t, f.Match(name), "expected %q to match", name)
			}
			for _, name := range tt.reject {
				assert.False(t, f.Match(name), "expected %q not to match", name)
			}
		})
	}
}

func TestFilter_Select(t *testing.T) {
	f, err := NewFilter(SplitPatterns("home/*, login/valid_user"))
	require.NoError(t, err)

	selected := f.Select([]Scenario{
		{Name: "login/valid_user"},
		{Name: "login/invalid_user"},
		{Name: "home/landing_visible"},
	})

	names := make([]string, 0, len(selected))
	for _, s := range selected {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"login/valid_user", "home/landing_visible"}, names)
}

func TestSplitPatterns(t *testing.T) {
	assert.Nil(t, SplitPatterns("  "))
	assert.Equal(t, []string{"a", " b"}, SplitPatterns("a, b"))
}
