package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// WatchSet
// ///////////////////////////////////////////////

// Set is an immutable set of file base names whose modification triggers a
// restart. Entries containing glob metacharacters are matched with doublestar
// against the base name; all other entries match only themselves.
type Set struct {
	exact    map[string]struct{}
	patterns []string
}

// NewSet builds a Set from config entries. Entries are reduced to their base
// name; empty entries and invalid glob patterns are rejected.
func NewSet(entries []string) (Set, error) {
	s := Set{exact: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			return Set{}, fmt.Errorf("watch set: empty entry")
		}
		base := filepath.Base(e)
		if !hasMeta(base) {
			s.exact[base] = struct{}{}
			continue
		}
		if !doublestar.ValidatePattern(base) {
			return Set{}, fmt.Errorf("watch set: invalid pattern %q", e)
		}
		if !slices.Contains(s.patterns, base) {
			s.patterns = append(s.patterns, base)
		}
	}
	return s, nil
}

// Contains reports whether the base name of path is watched.
func (s Set) Contains(path string) bool {
	name := filepath.Base(path)
	if _, ok := s.exact[name]; ok {
		return true
	}
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Len returns the number of entries in the set.
func (s Set) Len() int {
	return len(s.exact) + len(s.patterns)
}

// Entries returns the sorted entries of the set.
func (s Set) Entries() []string {
	out := make([]string, 0, s.Len())
	for name := range s.exact {
		out = append(out, name)
	}
	out = append(out, s.patterns...)
	slices.Sort(out)
	return out
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
