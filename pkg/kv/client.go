package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
	"github.com/cbconsul/consul_sdk_go/internal/httpx"
)

// DefaultSeparator splits key paths in tree reads.
const DefaultSeparator = "/"

// Client is the key/value facade. It is safe for concurrent use; scoped views
// created with Prefixed share the backend and nothing else.
type Client struct {
	backend Backend
	prefix  string
}

// Option configures a Client.
type Option func(*Client)

// WithPrefix prepends prefix to every key the client sends.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// New constructs a Client bound to the provided API base URL (including the
// version path, e.g. "http://localhost:8500/v1").
func New(baseURL string, opts ...httpx.Option) (*Client, error) {
	cl, err := httpx.NewClient(baseURL, append([]httpx.Option{httpx.WithRetryPolicy(httpx.NoRetry)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(cl), nil
}

// NewWithHTTPClient wraps an existing httpx.Client.
func NewWithHTTPClient(httpClient *httpx.Client, opts ...Option) *Client {
	return NewWithBackend(&httpBackend{client: httpClient}, opts...)
}

// NewWithBackend allows callers to supply a custom backend (e.g., mocks).
func NewWithBackend(b Backend, opts ...Option) *Client {
	c := &Client{backend: b}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Prefix returns the namespace prefix applied to every key.
func (c *Client) Prefix() string {
	return c.prefix
}

// Prefixed returns a view whose keys are additionally scoped under prefix.
// The receiver is left untouched.
func (c *Client) Prefixed(prefix string) *Client {
	return &Client{backend: c.backend, prefix: c.prefix + prefix}
}

// Apply sends op and decodes the response. When the key is missing, def is
// returned if non-nil and ErrNotFound otherwise. Every other failure is
// returned unchanged.
func (c *Client) Apply(ctx context.Context, op Operation, def *Value) (*Result, error) {
	if c == nil || c.backend == nil {
		return nil, fmt.Errorf("kv: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req := BuildRequest(op, c.prefix)
	resp, err := c.backend.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("kv: %s %s: backend returned no response", req.Method, req.Path)
	}
	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}
	value, found := decode(op, resp)
	if !found {
		if def == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, op.Key())
		}
		return &Result{Value: *def}, nil
	}
	return &Result{Value: value, Meta: ExtractMetadata(resp.Header)}, nil
}

// Get reads key.
func (c *Client) Get(ctx context.Context, key string) (*Record, error) {
	res, err := c.Apply(ctx, OpGet(key), nil)
	if err != nil {
		return nil, err
	}
	return singleRecord(res.Value, key)
}

// GetOr reads key, returning def when it does not exist. An empty record
// list counts as not existing.
func (c *Client) GetOr(ctx context.Context, key string, def Record) (*Record, error) {
	res, err := c.Apply(ctx, OpGet(key), &Value{Shape: ShapeRecord, Record: &def})
	if err != nil {
		return nil, err
	}
	if res.Value.Record == nil {
		return &def, nil
	}
	return singleRecord(res.Value, key)
}

// GetWithMeta reads key and returns the response metadata needed for a
// follow-up CAS write or blocking read.
func (c *Client) GetWithMeta(ctx context.Context, key string) (*Record, Metadata, error) {
	res, err := c.Apply(ctx, OpGet(key), nil)
	if err != nil {
		return nil, Metadata{}, err
	}
	rec, err := singleRecord(res.Value, key)
	return rec, res.Meta, err
}

// GetRaw returns the stored bytes of key.
func (c *Client) GetRaw(ctx context.Context, key string) ([]byte, error) {
	res, err := c.Apply(ctx, OpGetRaw(key), nil)
	if err != nil {
		return nil, err
	}
	return res.Value.Raw, nil
}

// GetRawOr returns the stored bytes of key, or def when it does not exist.
func (c *Client) GetRawOr(ctx context.Context, key string, def []byte) ([]byte, error) {
	res, err := c.Apply(ctx, OpGetRaw(key), &Value{Shape: ShapeRaw, Raw: def})
	if err != nil {
		return nil, err
	}
	return res.Value.Raw, nil
}

// Watch blocks until key changes past index or wait elapses, then returns the
// current record and the index to pass to the next call.
func (c *Client) Watch(ctx context.Context, key string, index uint64, wait time.Duration) (*Record, Metadata, error) {
	res, err := c.Apply(ctx, OpWatch(key, index, wait), nil)
	if err != nil {
		return nil, Metadata{}, err
	}
	rec, err := singleRecord(res.Value, key)
	return rec, res.Meta, err
}

func singleRecord(v Value, key string) (*Record, error) {
	if v.Record == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	rec := *v.Record
	return &rec, nil
}

// TreeOption tunes tree reads.
type TreeOption func(*treeConfig)

type treeConfig struct {
	recurse   bool
	separator string
	transform func(string) string
}

// WithRecurse sends an empty separator so nested keys are returned flat.
func WithRecurse(recurse bool) TreeOption {
	return func(cfg *treeConfig) { cfg.recurse = recurse }
}

// WithSeparator overrides DefaultSeparator.
func WithSeparator(sep string) TreeOption {
	return func(cfg *treeConfig) {
		if sep != "" {
			cfg.separator = sep
		}
	}
}

// WithKeyTransform rewrites the keys of a folded tree, e.g. strings.ToLower.
func WithKeyTransform(fn func(string) string) TreeOption {
	return func(cfg *treeConfig) { cfg.transform = fn }
}

func newTreeConfig(opts []TreeOption) treeConfig {
	cfg := treeConfig{separator: DefaultSeparator}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// GetRecords reads every record under prefix.
func (c *Client) GetRecords(ctx context.Context, prefix string, opts ...TreeOption) ([]Record, error) {
	cfg := newTreeConfig(opts)
	res, err := c.Apply(ctx, OpGetTree(prefix, cfg.recurse, cfg.separator), nil)
	if err != nil {
		return nil, err
	}
	return res.Value.Records, nil
}

// GetTree reads every record under prefix and folds them into nested maps
// keyed by path segment below prefix. Leaves are the decoded values as
// strings, or nil for keys without a value.
func (c *Client) GetTree(ctx context.Context, prefix string, opts ...TreeOption) (map[string]any, error) {
	cfg := newTreeConfig(opts)
	prefix = withTrailing(prefix, cfg.separator)
	// Returned keys carry the normalised form of the prefix, not the caller's.
	skip := strings.Count(consulapi.NormalizeKey(c.prefix+prefix), cfg.separator)

	records, err := c.GetRecords(ctx, prefix, opts...)
	if err != nil {
		return nil, err
	}
	entries, err := recordEntries(records, cfg.separator, skip)
	if err != nil {
		return nil, err
	}
	tree, err := Fold(entries)
	if err != nil {
		return nil, err
	}
	if cfg.transform != nil {
		return TransformKeys(tree, cfg.transform)
	}
	return tree, nil
}

// ListTree lists the keys under prefix.
func (c *Client) ListTree(ctx context.Context, prefix string, opts ...TreeOption) ([]string, error) {
	cfg := newTreeConfig(opts)
	prefix = withTrailing(prefix, cfg.separator)
	res, err := c.Apply(ctx, OpListTree(prefix, cfg.recurse, cfg.separator), nil)
	if err != nil {
		return nil, err
	}
	return res.Value.Keys, nil
}

func withTrailing(prefix, sep string) string {
	if prefix == "" || strings.HasSuffix(prefix, sep) {
		return prefix
	}
	return prefix + sep
}

// Set writes value under key.
func (c *Client) Set(ctx context.Context, key string, value []byte, opts ...WriteOption) (bool, error) {
	return c.applyBool(ctx, OpSet(key, value, opts...))
}

// SetCAS writes value only if the key's ModifyIndex still equals index. An
// index mismatch yields false, not an error.
func (c *Client) SetCAS(ctx context.Context, key string, value []byte, index uint64, opts ...WriteOption) (bool, error) {
	return c.applyBool(ctx, OpSetCAS(key, value, index, opts...))
}

// Lock tries to acquire key for session and reports whether it succeeded.
func (c *Client) Lock(ctx context.Context, key, session string, opts ...WriteOption) (bool, error) {
	return c.applyBool(ctx, OpLock(key, session, opts...))
}

// AcquireLock is Lock that reports a refused acquisition as ErrLockFailure.
func (c *Client) AcquireLock(ctx context.Context, key, session string, opts ...WriteOption) error {
	ok, err := c.Lock(ctx, key, session, opts...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s held by another session", ErrLockFailure, key)
	}
	return nil
}

// Unlock releases key held by session.
func (c *Client) Unlock(ctx context.Context, key, session string, opts ...WriteOption) (bool, error) {
	return c.applyBool(ctx, OpUnlock(key, session, opts...))
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	return c.applyBool(ctx, OpDelete(key))
}

// DeleteCAS removes key only if its ModifyIndex still equals index.
func (c *Client) DeleteCAS(ctx context.Context, key string, index uint64) (bool, error) {
	return c.applyBool(ctx, OpDeleteCAS(key, index))
}

// DeleteTree removes every key under prefix.
func (c *Client) DeleteTree(ctx context.Context, prefix string) (bool, error) {
	return c.applyBool(ctx, OpDeleteTree(prefix))
}

func (c *Client) applyBool(ctx context.Context, op Operation) (bool, error) {
	res, err := c.Apply(ctx, op, nil)
	if err != nil {
		return false, err
	}
	return res.Value.OK, nil
}
