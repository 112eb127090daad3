package kv

import (
	"net/http"
	"testing"
	"time"
)

func allOperations() []Operation {
	return []Operation{
		OpGet("a"),
		OpGetRaw("a"),
		OpGetTree("a/b", true, "/"),
		OpGetTree("a/b", false, "/"),
		OpListTree("a/b", false, "/"),
		OpSet("a", []byte("v"), WithFlags(3)),
		OpSetCAS("a", []byte("v"), 9),
		OpLock("a", "session-1"),
		OpUnlock("a", "session-1", WithFlags(1)),
		OpDelete("a"),
		OpDeleteCAS("a", 4),
		OpDeleteTree("a/"),
		OpWatch("a", 12, 10*time.Second),
	}
}

func TestParamsNeverIncludeIdentity(t *testing.T) {
	for _, op := range allOperations() {
		for _, p := range op.Params().List() {
			switch p.Name {
			case "verb", "key", "value":
				t.Fatalf("%s: identity field %q rendered as parameter", op.Verb(), p.Name)
			}
		}
		q := op.Query()
		for _, name := range []string{"verb", "key", "value"} {
			if q.Has(name) {
				t.Fatalf("%s: query contains %q", op.Verb(), name)
			}
		}
	}
}

func TestParamsOnlyPopulatedFields(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want []Param
	}{
		{name: "get", op: OpGet("a"), want: nil},
		{name: "get raw", op: OpGetRaw("a"), want: []Param{{"raw", "true"}}},
		{name: "set without flags", op: OpSet("a", []byte("x")), want: nil},
		{name: "set with flags", op: OpSet("a", []byte("x"), WithFlags(42)), want: []Param{{"flags", "42"}}},
		{name: "cas", op: OpSetCAS("a", []byte("x"), 7, WithFlags(1)), want: []Param{{"flags", "1"}, {"cas", "7"}}},
		{name: "lock", op: OpLock("a", "s1"), want: []Param{{"acquire", "s1"}}},
		{name: "unlock", op: OpUnlock("a", "s1"), want: []Param{{"release", "s1"}}},
		{name: "delete", op: OpDelete("a"), want: nil},
		{name: "delete cas", op: OpDeleteCAS("a", 5), want: []Param{{"cas", "5"}}},
		{name: "delete tree", op: OpDeleteTree("a"), want: []Param{{"recurse", "true"}}},
		{name: "list tree", op: OpListTree("a/", false, "/"), want: []Param{{"separator", "/"}, {"keys", "true"}}},
		{name: "watch", op: OpWatch("a", 3, 1500*time.Millisecond), want: []Param{{"index", "3"}, {"wait", "1500ms"}}},
		{name: "watch default wait", op: OpWatch("a", 3, 0), want: []Param{{"index", "3"}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := tc.op.Params().List()
			if len(got) != len(tc.want) {
				t.Fatalf("params mismatch: got %v want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("param %d mismatch: got %v want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestGetTreeAlwaysRecursesOnTheWire(t *testing.T) {
	for _, recurse := range []bool{true, false} {
		q := OpGetTree("a/b", recurse, "/").Query()
		if got := q.Get("recurse"); got != "true" {
			t.Fatalf("recurse=%v: wire recurse = %q, want true", recurse, got)
		}
		if !q.Has("separator") {
			t.Fatalf("recurse=%v: separator not sent", recurse)
		}
		wantSep := "/"
		if recurse {
			wantSep = ""
		}
		if got := q.Get("separator"); got != wantSep {
			t.Fatalf("recurse=%v: separator = %q, want %q", recurse, got, wantSep)
		}
	}

	q := OpListTree("a/b", true, "/").Query()
	if q.Has("recurse") {
		t.Fatalf("list tree must not send recurse")
	}
	if q.Get("keys") != "true" || q.Get("separator") != "" {
		t.Fatalf("unexpected list tree query: %v", q)
	}
}

func TestOperationMethod(t *testing.T) {
	tests := map[Verb]string{
		VerbGet:        http.MethodGet,
		VerbGetTree:    http.MethodGet,
		VerbWatch:      http.MethodGet,
		VerbSet:        http.MethodPut,
		VerbCAS:        http.MethodPut,
		VerbAcquire:    http.MethodPut,
		VerbRelease:    http.MethodPut,
		VerbLock:       http.MethodPut,
		VerbUnlock:     http.MethodPut,
		VerbDelete:     http.MethodDelete,
		VerbDeleteCAS:  http.MethodDelete,
		VerbDeleteTree: http.MethodDelete,
	}
	for verb, want := range tests {
		op := Operation{verb: verb, key: "k"}
		if got := op.Method(); got != want {
			t.Fatalf("%s: method %s, want %s", verb, got, want)
		}
	}
}

func TestLockStoresSessionAsValue(t *testing.T) {
	op := OpLock("leader", "abc")
	if op.Verb() != VerbAcquire || string(op.Value()) != "abc" {
		t.Fatalf("unexpected lock operation: verb=%s value=%q", op.Verb(), op.Value())
	}
	op = OpUnlock("leader", "abc")
	if op.Verb() != VerbRelease || string(op.Value()) != "abc" {
		t.Fatalf("unexpected unlock operation: verb=%s value=%q", op.Verb(), op.Value())
	}
}

func TestOperationIsImmutable(t *testing.T) {
	payload := []byte("original")
	op := OpSet("k", payload, WithFlags(1))
	payload[0] = 'X'
	if string(op.Value()) != "original" {
		t.Fatalf("operation shares caller buffer: %q", op.Value())
	}

	v := op.Value()
	v[0] = 'Y'
	if string(op.Value()) != "original" {
		t.Fatalf("Value exposes internal buffer")
	}

	p := op.Params()
	*p.Flags = 99
	if *op.Params().Flags != 1 {
		t.Fatalf("Params exposes internal pointers")
	}

	scoped := op.WithKey("svc/k")
	if op.Key() != "k" || scoped.Key() != "svc/k" {
		t.Fatalf("WithKey mutated the original: %q / %q", op.Key(), scoped.Key())
	}
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(OpSet("/config//db", []byte("v")), "svc/")
	if req.Method != http.MethodPut {
		t.Fatalf("method = %s", req.Method)
	}
	if req.Path != "/kv/svc/config/db" {
		t.Fatalf("path = %q", req.Path)
	}
	if string(req.Body) != "v" {
		t.Fatalf("body = %q", req.Body)
	}
	if req.Query != nil {
		t.Fatalf("expected no query, got %v", req.Query)
	}
}
