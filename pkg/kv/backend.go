package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cbconsul/consul_sdk_go/internal/httpx"
)

// Request is the rendered form of an Operation.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response is what a Backend hands back for any HTTP status. Error statuses
// are not transport errors; the Client classifies them.
type Response struct {
	StatusCode int
	Header     http.Header
	// ContentType gates JSON decoding; empty means unknown and is accepted.
	ContentType string
	Body        []byte
}

// Backend performs a single round trip. Implementations must not retry on
// their own behalf unless the caller configured them to.
type Backend interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// BuildRequest renders op for the backend. prefix is prepended to the key.
func BuildRequest(op Operation, prefix string) *Request {
	if prefix != "" {
		op = op.WithKey(prefix + op.Key())
	}
	return &Request{
		Method: op.Method(),
		Path:   op.Path(),
		Query:  op.Query(),
		Body:   op.Value(),
	}
}

type httpBackend struct {
	client *httpx.Client
}

func (b *httpBackend) Do(ctx context.Context, req *Request) (*Response, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("kv: http backend not configured")
	}
	// Writes are sent once whatever the retry policy says.
	hreq := &httpx.Request{
		Method:       req.Method,
		Path:         req.Path,
		Query:        req.Query,
		DisableRetry: req.Method != http.MethodGet,
	}
	if req.Body != nil {
		body := req.Body
		hreq.Body = bytes.NewReader(body)
		hreq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	resp, err := b.client.Do(ctx, hreq)
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return &Response{
				StatusCode:  httpErr.StatusCode,
				Header:      httpErr.Header,
				ContentType: httpErr.Header.Get("Content-Type"),
				Body:        httpErr.Body,
			}, nil
		}
		return nil, fmt.Errorf("kv: %s %s: %w", req.Method, req.Path, err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kv: read response body: %w", err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
