package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
)

// Backend serves kv requests in-process through the mock's HTTP handler, so
// the in-memory and network paths share one implementation.
type Backend struct {
	handler http.Handler
	header  http.Header
}

// NewBackend returns a kv.Backend over m. header is attached to every request
// (for instance the ACL token).
func NewBackend(m *Mock, header http.Header) *Backend {
	return &Backend{handler: NewHandler(m), header: header.Clone()}
}

func (b *Backend) Do(ctx context.Context, req *kv.Request) (*kv.Response, error) {
	if b == nil || b.handler == nil {
		return nil, fmt.Errorf("mock kv: backend not configured")
	}
	u := url.URL{Path: consulapi.APIVersionPath + req.Path}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("mock kv: build request: %w", err)
	}
	for k, values := range b.header {
		for _, v := range values {
			hreq.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, hreq)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := rec.Result()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("mock kv: read response: %w", err)
	}
	return &kv.Response{
		StatusCode:  res.StatusCode,
		Header:      res.Header,
		ContentType: res.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
