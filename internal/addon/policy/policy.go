// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package policy decides which filesystem paths may be loaded as addons.
//
// Pattern matching uses gobwas/glob with '/' as the segment separator:
//   - '*' matches a single path segment
//   - '**' matches zero or more segments
//
// Examples:
//   - "/opt/addons/*" matches "/opt/addons/math_utils" but NOT "/opt/addons/x/y"
//   - "/opt/addons/**" matches both
package policy

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Policy is an allow list of addon path patterns.
//
// Policy is safe for concurrent use. An empty policy allows every path.
type Policy struct {
	allow []compiledPattern
	mu    sync.RWMutex
}

// New creates a policy from allow patterns.
func New(patterns []string) (*Policy, error) {
	p := &Policy{}
	if err := p.SetAllow(patterns); err != nil {
		return nil, err
	}
	return p, nil
}

// SetAllow replaces the allow list. If any pattern is invalid no change is
// made.
func (p *Policy) SetAllow(patterns []string) error {
	compiled := make([]compiledPattern, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return fmt.Errorf("pattern %d: empty pattern", i)
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return fmt.Errorf("pattern %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledPattern{pattern: pattern, glob: g}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.allow = compiled
	return nil
}

// Patterns returns a copy of the allow list.
func (p *Policy) Patterns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.allow))
	for i, c := range p.allow {
		out[i] = c.pattern
	}
	return out
}

// Allowed reports whether path may be loaded. A nil or empty policy allows
// everything.
func (p *Policy) Allowed(path string) bool {
	if p == nil {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.allow) == 0 {
		return true
	}
	for _, c := range p.allow {
		if c.glob.Match(path) {
			return true
		}
	}
	return false
}
