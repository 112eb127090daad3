package settings_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/cbconsul/consul_sdk_go/internal/devseed"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
	"github.com/cbconsul/consul_sdk_go/pkg/kv/mock"
	"github.com/cbconsul/consul_sdk_go/pkg/settings"
)

type database struct {
	Host    string        `consul:"host"`
	Port    int           `consul:"port"`
	Timeout time.Duration `consul:"timeout,connect_timeout"`
}

type appSettings struct {
	Name     string
	Debug    bool              `consul:"debug"`
	Ratio    float64           `consul:"tuning/ratio"`
	Replicas *uint16           `consul:"replicas"`
	Zones    []string          `consul:"zones"`
	DB       database          `consul:"db"`
	Cache    *database         `consul:"cache"`
	Labels   map[string]string `consul:"labels"`
	Owner    string            `consul:"owner,team/owner"`
	Skipped  string            `consul:"-"`
	internal string
}

func newClient(t *testing.T, entries ...devseed.KVSeedEntry) *kv.Client {
	t.Helper()
	m := mock.New()
	if err := m.Seed(entries); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return kv.NewWithBackend(mock.NewBackend(m, nil))
}

func seed(pairs ...string) []devseed.KVSeedEntry {
	entries := make([]devseed.KVSeedEntry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		entries = append(entries, devseed.KVSeedEntry{Key: pairs[i], Value: pairs[i+1]})
	}
	return entries
}

func TestLoadMergesPathsInOrder(t *testing.T) {
	client := newClient(t, seed(
		"cfg/base/Name", "billing",
		"cfg/base/Debug", "false",
		"cfg/base/DB/Host", "db.base",
		"cfg/base/DB/Port", "5432",
		"cfg/base/DB/connect_timeout", "3s",
		"cfg/base/Labels/tier", "backend",
		"cfg/prod/debug", "true",
		"cfg/prod/db/host", "db.prod",
		"cfg/prod/tuning/ratio", "0.75",
		"cfg/prod/replicas", "3",
		"cfg/prod/zones", "eu-1, eu-2",
		"cfg/prod/cache/host", "redis",
		"cfg/prod/labels/team/name", "payments",
		"cfg/prod/team/owner", "alice",
		"cfg/prod/skipped", "nope",
	)...)

	src := settings.New(client, settings.WithPaths("cfg/base", "cfg/prod/"))
	cfg := appSettings{Skipped: "keep", internal: "keep"}
	if err := src.Load(context.Background(), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	replicas := uint16(3)
	want := appSettings{
		Name:     "billing",
		Debug:    true,
		Ratio:    0.75,
		Replicas: &replicas,
		Zones:    []string{"eu-1", "eu-2"},
		DB:       database{Host: "db.prod", Port: 5432, Timeout: 3 * time.Second},
		Cache:    &database{Host: "redis"},
		Labels:   map[string]string{"tier": "backend", "team/name": "payments"},
		Owner:    "alice",
		Skipped:  "keep",
		internal: "keep",
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Load mismatch:\n got %#v\nwant %#v", cfg, want)
	}
}

func TestTreeSkipsMissingPaths(t *testing.T) {
	client := newClient(t, seed("cfg/a/x", "1")...)
	src := settings.New(client, settings.WithPaths("cfg/missing", "cfg/a"))

	tree, err := src.Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !reflect.DeepEqual(tree, map[string]any{"x": "1"}) {
		t.Fatalf("Tree = %#v", tree)
	}

	empty, err := settings.New(client).Tree(context.Background())
	if err != nil || len(empty) != 0 {
		t.Fatalf("Tree without paths = %#v, %v", empty, err)
	}
}

func TestTreeConflictAcrossPaths(t *testing.T) {
	client := newClient(t, seed("cfg/a/db/host", "h", "cfg/b/db", "flat")...)
	src := settings.New(client, settings.WithPaths("cfg/a", "cfg/b"))
	if _, err := src.Tree(context.Background()); !errors.Is(err, kv.ErrTreeConflict) {
		t.Fatalf("expected ErrTreeConflict, got %v", err)
	}
}

func TestCaseSensitiveLookup(t *testing.T) {
	client := newClient(t, seed("cfg/Name", "upper", "cfg/name", "lower")...)

	var out struct{ Name string }
	if err := settings.New(client, settings.WithPaths("cfg"), settings.WithCaseSensitive(true)).Load(context.Background(), &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Name != "upper" {
		t.Fatalf("Name = %q", out.Name)
	}

	if _, err := settings.New(client, settings.WithPaths("cfg")).Tree(context.Background()); !errors.Is(err, kv.ErrTreeConflict) {
		t.Fatalf("lower-casing colliding keys must fail, got %v", err)
	}
}

func TestPrefixAppendsToPaths(t *testing.T) {
	client := newClient(t, seed("cfg/app/prod/port", "8080", "cfg/app/dev/port", "9090")...)
	src := settings.New(client, settings.WithPaths("cfg/app/"), settings.WithPrefix("prod"))

	if got := src.Paths(); !reflect.DeepEqual(got, []string{"cfg/app/prod"}) {
		t.Fatalf("Paths = %v", got)
	}
	values, err := src.Values(context.Background(), struct {
		Port    int `consul:"port"`
		Missing int
	}{})
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if !reflect.DeepEqual(values, map[string]any{"Port": "8080"}) {
		t.Fatalf("Values = %#v", values)
	}
}

func TestLoadErrors(t *testing.T) {
	client := newClient(t, seed("cfg/port", "eighty", "cfg/wait", "forever", "cfg/sub/x", "1")...)
	src := settings.New(client, settings.WithPaths("cfg"))
	ctx := context.Background()

	var notStruct int
	if err := src.Load(ctx, &notStruct); err == nil {
		t.Fatalf("expected error for non-struct target")
	}
	var byValue struct{ Port int }
	if err := src.Load(ctx, byValue); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}

	tests := []struct {
		name   string
		target any
	}{
		{"bad int", &struct {
			Port int `consul:"port"`
		}{}},
		{"bad duration", &struct {
			Wait time.Duration `consul:"wait"`
		}{}},
		{"subtree into scalar", &struct {
			Sub string `consul:"sub"`
		}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := src.Load(ctx, tt.target); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
