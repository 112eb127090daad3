package kv

import (
	"fmt"
	"strings"
)

// TreeEntry is one flat entry: its path segments relative to the tree root
// and the leaf stored there.
type TreeEntry struct {
	Path []string
	Leaf any
}

// Fold nests flat entries into maps keyed by path segment. A leaf that would
// also have to be a parent, or two leaves at the same path, yield
// ErrTreeConflict whatever order the entries arrive in. Entries with an empty
// path are ignored.
func Fold(entries []TreeEntry) (map[string]any, error) {
	root := make(map[string]any)
	for _, e := range entries {
		if len(e.Path) == 0 {
			continue
		}
		node := root
		for i, seg := range e.Path[:len(e.Path)-1] {
			next, ok := node[seg]
			if !ok {
				child := make(map[string]any)
				node[seg] = child
				node = child
				continue
			}
			child, isMap := next.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%w: %q is a value and a parent", ErrTreeConflict, strings.Join(e.Path[:i+1], "/"))
			}
			node = child
		}
		last := e.Path[len(e.Path)-1]
		if _, exists := node[last]; exists {
			return nil, fmt.Errorf("%w: %q is set more than once", ErrTreeConflict, strings.Join(e.Path, "/"))
		}
		node[last] = e.Leaf
	}
	return root, nil
}

// TransformKeys rewrites every key of tree, at every depth, with fn. Keys that
// collide after the rewrite yield ErrTreeConflict.
func TransformKeys(tree map[string]any, fn func(string) string) (map[string]any, error) {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		nk := fn(k)
		if _, exists := out[nk]; exists {
			return nil, fmt.Errorf("%w: keys collide as %q", ErrTreeConflict, nk)
		}
		if sub, ok := v.(map[string]any); ok {
			t, err := TransformKeys(sub, fn)
			if err != nil {
				return nil, err
			}
			v = t
		}
		out[nk] = v
	}
	return out, nil
}

// Lookup walks tree along path split by separator. It returns false if any
// segment is missing or a leaf is reached before the end.
func Lookup(tree map[string]any, path, separator string) (any, bool) {
	var node any = tree
	for _, seg := range strings.Split(path, separator) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// recordEntries splits record keys on separator, drops the first skip
// segments and decodes values to text. Keys ending in the separator are
// folder markers and contribute nothing.
func recordEntries(records []Record, separator string, skip int) ([]TreeEntry, error) {
	entries := make([]TreeEntry, 0, len(records))
	for _, rec := range records {
		if strings.HasSuffix(rec.Key, separator) {
			continue
		}
		segs := strings.Split(rec.Key, separator)
		if len(segs) <= skip {
			continue
		}
		var leaf any
		if rec.Value != "" {
			data, err := rec.Decode()
			if err != nil {
				return nil, err
			}
			leaf = string(data)
		}
		entries = append(entries, TreeEntry{Path: segs[skip:], Leaf: leaf})
	}
	return entries, nil
}
