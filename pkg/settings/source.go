// Package settings fills configuration structs from key/value trees. Every
// configured path is read recursively, the trees are deep-merged in order and
// struct fields are looked up by path in the merged tree.
//
//	type DB struct {
//		Host    string        `consul:"host"`
//		Port    int           `consul:"port"`
//		Timeout time.Duration `consul:"timeout,connect_timeout"`
//	}
//	type App struct {
//		DB     DB                `consul:"db"`
//		Labels map[string]string `consul:"labels"`
//	}
//
// A tag lists alternative source names separated by commas; the first one that
// resolves to a non-empty value wins. Untagged fields are looked up by field
// name. Lookups are case-insensitive unless the Source is case sensitive.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apapsch/go-jsonmerge/v2"

	"github.com/cbconsul/consul_sdk_go/pkg/consul"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
)

const (
	tagName   = "consul"
	separator = "/"
)

// Source reads settings from one or more key/value paths.
type Source struct {
	kv            *kv.Client
	paths         []string
	prefix        string
	caseSensitive bool
}

// Option configures a Source.
type Option func(*Source)

// WithPaths adds root paths. Later paths override earlier ones.
func WithPaths(paths ...string) Option {
	return func(s *Source) {
		s.paths = append(s.paths, paths...)
	}
}

// WithPrefix appends prefix to every root path, e.g. paths "cfg/app" and
// prefix "prod" read "cfg/app/prod".
func WithPrefix(prefix string) Option {
	return func(s *Source) {
		s.prefix = prefix
	}
}

// WithCaseSensitive disables lower-casing of keys and source names.
func WithCaseSensitive(on bool) Option {
	return func(s *Source) {
		s.caseSensitive = on
	}
}

// New returns a Source reading through client.
func New(client *kv.Client, opts ...Option) *Source {
	s := &Source{kv: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewFromEnv returns a Source over a client configured from the process
// environment.
func NewFromEnv(opts ...Option) (*Source, error) {
	client, _, err := consul.NewFromEnv()
	if err != nil {
		return nil, err
	}
	return New(client.KV(), opts...), nil
}

// Paths returns the effective root paths, prefix included.
func (s *Source) Paths() []string {
	out := make([]string, 0, len(s.paths))
	for _, p := range s.paths {
		if s.prefix != "" {
			p = strings.TrimRight(p, separator) + separator + strings.TrimLeft(s.prefix, separator)
		}
		out = append(out, p)
	}
	return out
}

func (s *Source) transform(name string) string {
	if s.caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

// Tree reads every path and deep-merges the results. A path without keys
// contributes nothing. A later path that puts a leaf where an earlier one
// has a subtree is reported as kv.ErrTreeConflict.
func (s *Source) Tree(ctx context.Context) (map[string]any, error) {
	merged := make(map[string]any)
	opts := []kv.TreeOption{kv.WithRecurse(true)}
	if !s.caseSensitive {
		opts = append(opts, kv.WithKeyTransform(strings.ToLower))
	}
	for _, path := range s.Paths() {
		tree, err := s.kv.GetTree(ctx, path, opts...)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("settings: read %s: %w", path, err)
		}
		merger := jsonmerge.Merger{CopyNonexistent: true}
		out := merger.Merge(merged, tree)
		if len(merger.Errors) > 0 {
			return nil, fmt.Errorf("settings: merge %s: %w: %v", path, kv.ErrTreeConflict, errors.Join(merger.Errors...))
		}
		merged = out.(map[string]any)
	}
	return merged, nil
}

// Values resolves every field of target, a struct or pointer to struct,
// against the merged tree. The result maps field names to the string leaf or
// subtree found; unresolved fields are absent.
func (s *Source) Values(ctx context.Context, target any) (map[string]any, error) {
	fields, err := structFields(target)
	if err != nil {
		return nil, err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, f := range fields {
		if v, ok := s.lookup(tree, f.names); ok {
			out[f.name] = v
		}
	}
	return out, nil
}

// Load reads the merged tree and assigns it to target, a pointer to struct.
// Fields without a value keep their current contents.
func (s *Source) Load(ctx context.Context, target any) error {
	if _, err := structFields(target); err != nil {
		return err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return err
	}
	return s.assign(tree, target)
}

// lookup returns the first candidate that resolves to a non-empty value.
func (s *Source) lookup(tree map[string]any, names []string) (any, bool) {
	for _, name := range names {
		v, ok := kv.Lookup(tree, s.transform(name), separator)
		if ok && !empty(v) {
			return v, true
		}
	}
	return nil, false
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
