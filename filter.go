// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pck

package pck

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// entryFilter holds compiled include/exclude rules for virtual paths.
// A nil filter keeps every path.
type entryFilter struct {
	matcher *pathrules.Matcher
}

// newEntryFilter compiles include and exclude patterns in gitignore syntax.
// With include patterns present only matching paths are kept; exclude rules win over includes.
func newEntryFilter(include []string, exclude []string) (*entryFilter, error) {
	includes := normalizeFilterPatterns(include)
	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, pattern := range includes {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range normalizeFilterPatterns(exclude) {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}
	if len(rules) == 0 {
		return nil, nil
	}

	defaultAction := pathrules.ActionInclude
	if len(includes) > 0 {
		defaultAction = pathrules.ActionExclude
	}

	matcher, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		DefaultAction: defaultAction,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterPattern, err)
	}

	return &entryFilter{matcher: matcher}, nil
}

// normalizeFilterPatterns normalizes patterns and drops empty ones.
func normalizeFilterPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = normalizePathForMatching(pattern)
		if pattern == "" {
			continue
		}

		out = append(out, pattern)
	}

	return out
}

// Match reports whether virtual path passes the filter.
func (f *entryFilter) Match(virtualPath string) bool {
	if f == nil || f.matcher == nil {
		return true
	}

	candidate := NormalizePath(trimResScheme(virtualPath))
	if candidate == "" {
		return false
	}

	return f.matcher.Included(candidate, false)
}

// filterEntries keeps entries whose path passes f.
func filterEntries(entries []EntryInfo, f *entryFilter) []EntryInfo {
	if f == nil {
		return entries
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		if f.Match(entry.Path) {
			out = append(out, entry)
		}
	}

	return out
}
