package consul

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
	"github.com/cbconsul/consul_sdk_go/internal/devseed"
	"github.com/cbconsul/consul_sdk_go/internal/httpx"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
	"github.com/cbconsul/consul_sdk_go/pkg/kv/mock"
)

// Option customises New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	retries    int
	store      *mock.Mock
}

// WithHTTPClient sets the underlying HTTP client. Its timeout is overridden by
// Config.Timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpClient = h }
}

// WithReadRetries retries reads up to n times on transport errors, 429 and
// 5xx responses. Writes are never retried.
func WithReadRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithMockStore makes mock mode use store instead of a fresh one.
func WithMockStore(store *mock.Mock) Option {
	return func(o *options) { o.store = store }
}

// Client owns the transport behind a KV client.
type Client struct {
	kv    *kv.Client
	http  *httpx.Client
	store *mock.Mock
	mode  string
}

// New builds a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	switch cfg.Mode {
	case "", ModeHTTP:
		return newHTTPClient(cfg, o)
	case ModeMock:
		return newMockClient(cfg, o)
	default:
		return nil, fmt.Errorf("consul: unsupported mode %q", cfg.Mode)
	}
}

// NewFromEnv resolves the configuration from the process environment and
// returns the client together with the resolved mode.
func NewFromEnv(opts ...Option) (*Client, string, error) {
	cfg, err := ResolveConfig(OSEnv())
	if err != nil {
		return nil, "", err
	}
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, "", err
	}
	return client, client.mode, nil
}

func newHTTPClient(cfg Config, o options) (*Client, error) {
	baseURL, err := apiBaseURL(cfg.Address)
	if err != nil {
		return nil, err
	}

	policy := httpx.NoRetry
	if o.retries > 0 {
		policy = httpx.DefaultRetryPolicy
		policy.MaxRetries = o.retries
	}
	httpOpts := []httpx.Option{
		httpx.WithRetryPolicy(policy),
		httpx.WithTimeout(cfg.Timeout),
		httpx.WithHeaders(namespaceHeader(cfg)),
		httpx.WithToken(cfg.Token),
	}
	if o.httpClient != nil {
		httpOpts = append([]httpx.Option{httpx.WithHTTPClient(o.httpClient)}, httpOpts...)
	}
	// The transport drops basic auth on requests that carry a token.
	if cfg.BasicAuth != "" {
		user, pass, _ := strings.Cut(cfg.BasicAuth, ":")
		httpOpts = append(httpOpts, httpx.WithBasicAuth(user, pass))
	}

	transport, err := httpx.NewClient(baseURL, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("consul: init HTTP client: %w", err)
	}
	return &Client{
		kv:   kv.NewWithHTTPClient(transport, kv.WithPrefix(cfg.Prefix)),
		http: transport,
		mode: ModeHTTP,
	}, nil
}

func newMockClient(cfg Config, o options) (*Client, error) {
	store := o.store
	if store == nil {
		store = mock.New()
	}
	if cfg.MockSeed != "" {
		entries, err := devseed.LoadKVSeed(cfg.MockSeed)
		if err != nil {
			return nil, fmt.Errorf("consul: load mock seed: %w", err)
		}
		if err := store.Seed(entries); err != nil {
			return nil, fmt.Errorf("consul: apply mock seed: %w", err)
		}
	}
	header := namespaceHeader(cfg)
	if cfg.Token != "" {
		header.Set(consulapi.HeaderToken, cfg.Token)
	}
	backend := mock.NewBackend(store, header)
	return &Client{
		kv:    kv.NewWithBackend(backend, kv.WithPrefix(cfg.Prefix)),
		store: store,
		mode:  ModeMock,
	}, nil
}

// apiBaseURL turns an agent address into the versioned API base URL.
func apiBaseURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("consul: address is required")
	}
	if !strings.Contains(address, "://") {
		address = defaultScheme + "://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("consul: invalid address %q: %w", address, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("consul: address %q has no host", address)
	}
	return strings.TrimRight(address, "/") + consulapi.APIVersionPath, nil
}

func namespaceHeader(cfg Config) http.Header {
	h := make(http.Header)
	if cfg.Namespace != "" {
		h.Set(consulapi.HeaderNamespace, cfg.Namespace)
	}
	return h
}

// KV returns the key/value client.
func (c *Client) KV() *kv.Client { return c.kv }

// Async returns an asynchronous view over KV.
func (c *Client) Async() *kv.AsyncClient { return kv.NewAsync(c.kv) }

// Mode reports ModeHTTP or ModeMock.
func (c *Client) Mode() string { return c.mode }

// Store returns the in-memory store in mock mode and nil otherwise.
func (c *Client) Store() *mock.Mock { return c.store }

// Close releases idle connections. The client stays usable.
func (c *Client) Close() {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
}
