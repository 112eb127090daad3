package kv_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbconsul/consul_sdk_go/internal/httpx"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
	"github.com/cbconsul/consul_sdk_go/pkg/kv/mock"
)

func newTestClient(t *testing.T, m *mock.Mock, opts ...httpx.Option) *kv.Client {
	t.Helper()
	srv := httptest.NewServer(mock.NewHandler(m))
	t.Cleanup(srv.Close)

	client, err := kv.New(srv.URL+"/v1", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestClientSetGetDelete(t *testing.T) {
	client := newTestClient(t, mock.New())
	ctx := context.Background()

	ok, err := client.Set(ctx, "app/name", []byte("billing"), kv.WithFlags(42))
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}

	rec, meta, err := client.GetWithMeta(ctx, "app/name")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Key != "app/name" || rec.Flags != 42 || rec.Value != "YmlsbGluZw==" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	value, err := rec.Decode()
	if err != nil || string(value) != "billing" {
		t.Fatalf("Decode: %q %v", value, err)
	}
	if meta.Index == 0 || meta.KnownLeader != "true" {
		t.Fatalf("metadata not populated: %#v", meta)
	}

	raw, err := client.GetRaw(ctx, "app/name")
	if err != nil || string(raw) != "billing" {
		t.Fatalf("GetRaw: %q %v", raw, err)
	}

	if ok, err := client.Delete(ctx, "app/name"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, err := client.Get(ctx, "app/name"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	fallback, err := client.GetRawOr(ctx, "app/name", []byte("fallback"))
	if err != nil || string(fallback) != "fallback" {
		t.Fatalf("GetRawOr: %q %v", fallback, err)
	}
}

func TestClientCAS(t *testing.T) {
	client := newTestClient(t, mock.New())
	ctx := context.Background()

	if ok, err := client.SetCAS(ctx, "counter", []byte("1"), 0); err != nil || !ok {
		t.Fatalf("create with cas=0: ok=%v err=%v", ok, err)
	}
	if ok, err := client.SetCAS(ctx, "counter", []byte("x"), 0); err != nil || ok {
		t.Fatalf("cas=0 on existing key must fail softly: ok=%v err=%v", ok, err)
	}

	rec, err := client.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok, err := client.SetCAS(ctx, "counter", []byte("2"), rec.ModifyIndex+100); err != nil || ok {
		t.Fatalf("stale index must return false: ok=%v err=%v", ok, err)
	}
	if ok, err := client.SetCAS(ctx, "counter", []byte("2"), rec.ModifyIndex); err != nil || !ok {
		t.Fatalf("matching index must succeed: ok=%v err=%v", ok, err)
	}

	rec, err = client.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok, err := client.DeleteCAS(ctx, "counter", rec.ModifyIndex-1); err != nil || ok {
		t.Fatalf("stale delete must return false: ok=%v err=%v", ok, err)
	}
	if ok, err := client.DeleteCAS(ctx, "counter", rec.ModifyIndex); err != nil || !ok {
		t.Fatalf("delete cas: ok=%v err=%v", ok, err)
	}
}

func TestClientLocking(t *testing.T) {
	client := newTestClient(t, mock.New())
	ctx := context.Background()

	if ok, err := client.Lock(ctx, "leader", "session-a"); err != nil || !ok {
		t.Fatalf("Lock a: ok=%v err=%v", ok, err)
	}
	if ok, err := client.Lock(ctx, "leader", "session-b"); err != nil || ok {
		t.Fatalf("Lock b must be refused: ok=%v err=%v", ok, err)
	}
	if err := client.AcquireLock(ctx, "leader", "session-b"); !errors.Is(err, kv.ErrLockFailure) {
		t.Fatalf("expected ErrLockFailure, got %v", err)
	}

	rec, err := client.Get(ctx, "leader")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Session != "session-a" || rec.LockIndex != 1 || !rec.Locked() {
		t.Fatalf("unexpected lock state: %#v", rec)
	}

	if ok, err := client.Unlock(ctx, "leader", "session-b"); err != nil || ok {
		t.Fatalf("foreign unlock must fail: ok=%v err=%v", ok, err)
	}
	if ok, err := client.Unlock(ctx, "leader", "session-a"); err != nil || !ok {
		t.Fatalf("Unlock: ok=%v err=%v", ok, err)
	}
	if err := client.AcquireLock(ctx, "leader", "session-b"); err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
}

func seedTree(t *testing.T, client *kv.Client) {
	t.Helper()
	ctx := context.Background()
	for key, value := range map[string]string{
		"svc/app/DB/Host": "localhost",
		"svc/app/DB/Port": "5432",
		"svc/app/Name":    "billing",
		"svc/other/x":     "1",
	} {
		if _, err := client.Set(ctx, key, []byte(value)); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
	if _, err := client.Set(ctx, "svc/app/empty/", nil); err != nil {
		t.Fatalf("Set folder: %v", err)
	}
}

func TestClientTreeReads(t *testing.T) {
	client := newTestClient(t, mock.New())
	ctx := context.Background()
	seedTree(t, client)

	tree, err := client.GetTree(ctx, "svc/app", kv.WithRecurse(true))
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	want := map[string]any{
		"DB":   map[string]any{"Host": "localhost", "Port": "5432"},
		"Name": "billing",
	}
	if !reflect.DeepEqual(tree, want) {
		t.Fatalf("GetTree mismatch: %#v", tree)
	}

	lowered, err := client.GetTree(ctx, "svc/app/", kv.WithRecurse(true), kv.WithKeyTransform(strings.ToLower))
	if err != nil {
		t.Fatalf("GetTree lower: %v", err)
	}
	if _, ok := kv.Lookup(lowered, "db/host", "/"); !ok {
		t.Fatalf("key transform not applied: %#v", lowered)
	}

	records, err := client.GetRecords(ctx, "svc/")
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	keys, err := client.ListTree(ctx, "svc/app")
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	sort.Strings(keys)
	wantKeys := []string{"svc/app/DB/", "svc/app/Name", "svc/app/empty/"}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Fatalf("ListTree mismatch: %v", keys)
	}

	allKeys, err := client.ListTree(ctx, "svc", kv.WithRecurse(true))
	if err != nil {
		t.Fatalf("ListTree recurse: %v", err)
	}
	if len(allKeys) != 5 {
		t.Fatalf("expected 5 keys, got %v", allKeys)
	}

	if _, err := client.GetTree(ctx, "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing tree, got %v", err)
	}

	if ok, err := client.DeleteTree(ctx, "svc/app/"); err != nil || !ok {
		t.Fatalf("DeleteTree: ok=%v err=%v", ok, err)
	}
	remaining, err := client.ListTree(ctx, "svc", kv.WithRecurse(true))
	if err != nil {
		t.Fatalf("ListTree after delete: %v", err)
	}
	if !reflect.DeepEqual(remaining, []string{"svc/other/x"}) {
		t.Fatalf("unexpected keys after DeleteTree: %v", remaining)
	}
}

func TestClientPrefixedTree(t *testing.T) {
	client := newTestClient(t, mock.New())
	seedTree(t, client)

	scoped := client.Prefixed("svc/")
	tree, err := scoped.GetTree(context.Background(), "app", kv.WithRecurse(true))
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if v, ok := kv.Lookup(tree, "DB/Port", "/"); !ok || v != "5432" {
		t.Fatalf("scoped tree lookup: %v %v (%#v)", v, ok, tree)
	}
	if client.Prefix() != "" {
		t.Fatalf("root prefix changed to %q", client.Prefix())
	}
}

func TestClientWatch(t *testing.T) {
	client := newTestClient(t, mock.New())
	ctx := context.Background()

	if _, err := client.Set(ctx, "feature", []byte("off")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, meta, err := client.GetWithMeta(ctx, "feature")
	if err != nil {
		t.Fatalf("GetWithMeta: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = client.Set(context.Background(), "feature", []byte("on"))
	}()

	rec, next, err := client.Watch(ctx, "feature", meta.Index, 5*time.Second)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	value, _ := rec.Decode()
	if string(value) != "on" {
		t.Fatalf("expected updated value, got %q", value)
	}
	if next.Index <= meta.Index {
		t.Fatalf("index did not advance: %d -> %d", meta.Index, next.Index)
	}
}

func TestClientForbidden(t *testing.T) {
	m := mock.New(mock.WithToken("secret"))

	denied := newTestClient(t, m)
	if _, err := denied.Get(context.Background(), "k"); !errors.Is(err, kv.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	allowed := newTestClient(t, m, httpx.WithToken("secret"))
	if _, err := allowed.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set with token: %v", err)
	}
}

func TestClientServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "leader lost", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := kv.New(srv.URL + "/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Get(context.Background(), "k"); !errors.Is(err, kv.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestClientSendsExpectedWireRequest(t *testing.T) {
	requests := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := kv.New(srv.URL + "/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.GetRecords(context.Background(), "a/b"); err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	got := <-requests
	if got.Method != http.MethodGet || got.URL.Path != "/v1/kv/a/b" {
		t.Fatalf("unexpected request: %s %s", got.Method, got.URL.Path)
	}
	q := got.URL.Query()
	if q.Get("recurse") != "true" || q.Get("separator") != "/" {
		t.Fatalf("unexpected query: %v", q)
	}
}
