// Package mock implements an in-memory Consul key/value store together with
// an HTTP handler that speaks the /v1/kv wire protocol. It backs the sandbox
// server, the "mock" runtime mode and the package tests.
package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cbconsul/consul_sdk_go/internal/devseed"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
)

const defaultMaxWait = 5 * time.Minute

type entry struct {
	createIndex uint64
	modifyIndex uint64
	lockIndex   uint64
	flags       uint64
	value       []byte
	session     string
}

func (e *entry) record(key string) kv.Record {
	rec := kv.Record{
		Key:         key,
		CreateIndex: e.createIndex,
		ModifyIndex: e.modifyIndex,
		LockIndex:   e.lockIndex,
		Flags:       e.flags,
		Session:     e.session,
	}
	if len(e.value) > 0 {
		rec.Value = base64.StdEncoding.EncodeToString(e.value)
	}
	return rec
}

// Mock is an in-memory key/value store with Consul's index, CAS and lock
// semantics. The store index grows by one on every successful write.
type Mock struct {
	mu      sync.Mutex
	items   map[string]*entry
	index   uint64
	changed chan struct{}
	token   string
	maxWait time.Duration
}

// Option configures the mock instance.
type Option func(*Mock)

// WithToken makes the HTTP handler reject requests that do not carry token.
func WithToken(token string) Option {
	return func(m *Mock) {
		m.token = token
	}
}

// WithMaxWait caps how long a blocking read may be held.
func WithMaxWait(d time.Duration) Option {
	return func(m *Mock) {
		if d > 0 {
			m.maxWait = d
		}
	}
}

// New creates an empty mock store.
func New(opts ...Option) *Mock {
	m := &Mock{
		items:   make(map[string]*entry),
		index:   1,
		changed: make(chan struct{}),
		maxWait: defaultMaxWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed loads initial items from seed entries (typically decoded via devseed.LoadKVSeed).
func (m *Mock) Seed(entries []devseed.KVSeedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("mock kv: seed entry missing key")
		}
		flags := e.Flags
		m.writeLocked(e.Key, []byte(e.Value), &flags)
	}
	return nil
}

// Index returns the current store index.
func (m *Mock) Index() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Get returns the record stored under key.
func (m *Mock) Get(ctx context.Context, key string) (kv.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return kv.Record{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.items[key]
	if !ok {
		return kv.Record{}, false, nil
	}
	return ent.record(key), true, nil
}

// GetValue returns a copy of the bytes stored under key.
func (m *Mock) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), ent.value...), true, nil
}

// List returns every record whose key starts with prefix, sorted by key.
func (m *Mock) List(ctx context.Context, prefix string) ([]kv.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.keysLocked(prefix)
	records := make([]kv.Record, 0, len(keys))
	for _, key := range keys {
		records = append(records, m.items[key].record(key))
	}
	return records, nil
}

// Keys lists keys under prefix. With a non-empty separator, keys are cut
// after the first separator following prefix and de-duplicated, which is
// how Consul presents one level of a hierarchy.
func (m *Mock) Keys(ctx context.Context, prefix, separator string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.keysLocked(prefix)
	if separator == "" {
		return keys, nil
	}
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		rest := key[len(prefix):]
		if idx := strings.Index(rest, separator); idx >= 0 {
			key = prefix + rest[:idx+len(separator)]
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}

func (m *Mock) keysLocked(prefix string) []string {
	keys := make([]string, 0, len(m.items))
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// PutOptions mirrors the query modifiers of a PUT request.
type PutOptions struct {
	Flags   *uint64
	CAS     *uint64
	Acquire string
	Release string
}

// Put writes value under key and reports whether the write was applied. A CAS
// mismatch, an acquire of a key held by another session and a release by a
// session that does not hold the key all return false.
func (m *Mock) Put(ctx context.Context, key string, value []byte, opts PutOptions) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("mock kv: key is required")
	}
	if opts.Acquire != "" && opts.Release != "" {
		return false, fmt.Errorf("mock kv: acquire and release are mutually exclusive")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ent, exists := m.items[key]
	if opts.CAS != nil {
		if *opts.CAS == 0 && exists {
			return false, nil
		}
		if *opts.CAS != 0 && (!exists || ent.modifyIndex != *opts.CAS) {
			return false, nil
		}
	}

	flags := opts.Flags
	if flags == nil && exists {
		flags = &ent.flags
	}

	switch {
	case opts.Acquire != "":
		if exists && ent.session != "" && ent.session != opts.Acquire {
			return false, nil
		}
		updated := m.writeLocked(key, value, flags)
		if !exists || ent.session != opts.Acquire {
			updated.lockIndex++
		}
		updated.session = opts.Acquire
	case opts.Release != "":
		if !exists || ent.session != opts.Release {
			return false, nil
		}
		updated := m.writeLocked(key, value, flags)
		updated.session = ""
	default:
		m.writeLocked(key, value, flags)
	}
	return true, nil
}

// Delete removes key, or every key under it when recurse is set. With cas,
// the key is removed only if its ModifyIndex matches.
func (m *Mock) Delete(ctx context.Context, key string, recurse bool, cas *uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if recurse {
		keys := m.keysLocked(key)
		for _, k := range keys {
			delete(m.items, k)
		}
		if len(keys) > 0 {
			m.bumpLocked()
		}
		return true, nil
	}

	ent, exists := m.items[key]
	if cas != nil {
		if !exists || ent.modifyIndex != *cas {
			return false, nil
		}
	}
	if exists {
		delete(m.items, key)
		m.bumpLocked()
	}
	return true, nil
}

// WaitIndex blocks until the store index exceeds index, wait elapses or ctx
// ends. A zero wait uses the configured maximum.
func (m *Mock) WaitIndex(ctx context.Context, index uint64, wait time.Duration) error {
	if wait <= 0 || wait > m.maxWait {
		wait = m.maxWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		m.mu.Lock()
		current, changed := m.index, m.changed
		m.mu.Unlock()
		if current > index {
			return nil
		}
		select {
		case <-changed:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLocked stores value and advances the store index. The returned entry
// is the one now stored under key.
func (m *Mock) writeLocked(key string, value []byte, flags *uint64) *entry {
	idx := m.bumpLocked()
	ent, exists := m.items[key]
	if !exists {
		ent = &entry{createIndex: idx}
		m.items[key] = ent
	}
	ent.modifyIndex = idx
	ent.value = append([]byte(nil), value...)
	if flags != nil {
		ent.flags = *flags
	}
	return ent
}

func (m *Mock) bumpLocked() uint64 {
	m.index++
	close(m.changed)
	m.changed = make(chan struct{})
	return m.index
}
