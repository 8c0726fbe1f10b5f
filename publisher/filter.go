package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters sync events by name using glob patterns
type GlobFilter struct {
	globs []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(patterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		globs: make([]glob.Glob, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid event pattern %q: %w", pattern, err)
		}
		filter.globs = append(filter.globs, g)
	}

	return filter, nil
}

// Match returns true if name matches any configured pattern
// If no patterns are configured, all events match
func (f *GlobFilter) Match(name string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
