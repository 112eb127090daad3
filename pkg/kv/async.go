package kv

import (
	"context"
	"time"
)

// Future is the pending result of an AsyncClient call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Done is closed once the call has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call completes or ctx ends. Abandoning a Future does
// not cancel the call; cancel the context passed to the AsyncClient method
// for that.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncClient runs each Client call on its own goroutine. Calls are not
// sequenced against each other and may complete in any order.
type AsyncClient struct {
	kv *Client
}

// NewAsync wraps c.
func NewAsync(c *Client) *AsyncClient {
	return &AsyncClient{kv: c}
}

// Sync returns the wrapped Client.
func (a *AsyncClient) Sync() *Client {
	return a.kv
}

// Prefixed returns an AsyncClient over the wrapped client scoped to prefix.
func (a *AsyncClient) Prefixed(prefix string) *AsyncClient {
	return &AsyncClient{kv: a.kv.Prefixed(prefix)}
}

// Get runs Client.Get.
func (a *AsyncClient) Get(ctx context.Context, key string) *Future[*Record] {
	return goFuture(func() (*Record, error) { return a.kv.Get(ctx, key) })
}

// GetRaw runs Client.GetRaw.
func (a *AsyncClient) GetRaw(ctx context.Context, key string) *Future[[]byte] {
	return goFuture(func() ([]byte, error) { return a.kv.GetRaw(ctx, key) })
}

// GetRecords runs Client.GetRecords.
func (a *AsyncClient) GetRecords(ctx context.Context, prefix string, opts ...TreeOption) *Future[[]Record] {
	return goFuture(func() ([]Record, error) { return a.kv.GetRecords(ctx, prefix, opts...) })
}

// GetTree runs Client.GetTree.
func (a *AsyncClient) GetTree(ctx context.Context, prefix string, opts ...TreeOption) *Future[map[string]any] {
	return goFuture(func() (map[string]any, error) { return a.kv.GetTree(ctx, prefix, opts...) })
}

// ListTree runs Client.ListTree.
func (a *AsyncClient) ListTree(ctx context.Context, prefix string, opts ...TreeOption) *Future[[]string] {
	return goFuture(func() ([]string, error) { return a.kv.ListTree(ctx, prefix, opts...) })
}

// Set runs Client.Set. value is copied before the call returns, so the
// caller may reuse the buffer.
func (a *AsyncClient) Set(ctx context.Context, key string, value []byte, opts ...WriteOption) *Future[bool] {
	value = cloneBytes(value)
	return goFuture(func() (bool, error) { return a.kv.Set(ctx, key, value, opts...) })
}

// SetCAS runs Client.SetCAS, copying value like Set.
func (a *AsyncClient) SetCAS(ctx context.Context, key string, value []byte, index uint64, opts ...WriteOption) *Future[bool] {
	value = cloneBytes(value)
	return goFuture(func() (bool, error) { return a.kv.SetCAS(ctx, key, value, index, opts...) })
}

// Lock runs Client.Lock.
func (a *AsyncClient) Lock(ctx context.Context, key, session string, opts ...WriteOption) *Future[bool] {
	return goFuture(func() (bool, error) { return a.kv.Lock(ctx, key, session, opts...) })
}

// Unlock runs Client.Unlock.
func (a *AsyncClient) Unlock(ctx context.Context, key, session string, opts ...WriteOption) *Future[bool] {
	return goFuture(func() (bool, error) { return a.kv.Unlock(ctx, key, session, opts...) })
}

// Delete runs Client.Delete.
func (a *AsyncClient) Delete(ctx context.Context, key string) *Future[bool] {
	return goFuture(func() (bool, error) { return a.kv.Delete(ctx, key) })
}

// DeleteCAS runs Client.DeleteCAS.
func (a *AsyncClient) DeleteCAS(ctx context.Context, key string, index uint64) *Future[bool] {
	return goFuture(func() (bool, error) { return a.kv.DeleteCAS(ctx, key, index) })
}

// DeleteTree runs Client.DeleteTree.
func (a *AsyncClient) DeleteTree(ctx context.Context, prefix string) *Future[bool] {
	return goFuture(func() (bool, error) { return a.kv.DeleteTree(ctx, prefix) })
}

// Watch runs Client.Watch. The metadata is dropped; use the synchronous
// client when the next index is needed.
func (a *AsyncClient) Watch(ctx context.Context, key string, index uint64, wait time.Duration) *Future[*Record] {
	return goFuture(func() (*Record, error) {
		rec, _, err := a.kv.Watch(ctx, key, index, wait)
		return rec, err
	})
}
