package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cbconsul/consul_sdk_go/internal/devseed"
	"github.com/cbconsul/consul_sdk_go/pkg/kv/mock"
)

type failConfig struct {
	rate float64
	code int
}

func main() {
	addr := flag.String("addr", ":8500", "listen address")
	seed := flag.String("seed", "", "path to JSON seed for the key/value store")
	token := flag.String("token", "", "ACL token required on every request")
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	flag.Parse()

	var opts []mock.Option
	if *token != "" {
		opts = append(opts, mock.WithToken(*token))
	}
	store := mock.New(opts...)
	if *seed != "" {
		entries, err := devseed.LoadKVSeed(*seed)
		if err != nil {
			log.Fatalf("load kv seed: %v", err)
		}
		if err := store.Seed(entries); err != nil {
			log.Fatalf("apply kv seed: %v", err)
		}
		log.Printf("seeded %d keys from %s", len(entries), *seed)
	}

	failCfg, err := parseFailConfig(*fail)
	if err != nil {
		log.Fatalf("parse fail flag: %v", err)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(store, *latency, failCfg, rand.New(rand.NewSource(time.Now().UnixNano()))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("consul-sandbox listening on %s", *addr)
	fmt.Println()
	host := *addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Println("export CONSUL_RUNTIME_MODE=http")
	fmt.Printf("export CONSUL_HTTP_ADDR=http://%s\n", host)
	if *token != "" {
		fmt.Printf("export CONSUL_HTTP_TOKEN=%s\n", *token)
	}
	fmt.Println()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

func newRouter(store *mock.Mock, delay time.Duration, failCfg failConfig, rnd *rand.Rand) http.Handler {
	r := chi.NewRouter()
	r.Use(logRequests)
	r.Use(injectFaults(delay, failCfg, rnd))
	r.Mount("/", mock.NewHandler(store))
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("exec request %s %s", r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

// injectFaults delays every request by delay and fails a fraction of them
// with the configured status.
func injectFaults(delay time.Duration, failCfg failConfig, rnd *rand.Rand) func(http.Handler) http.Handler {
	var mu sync.Mutex
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay > 0 {
				time.Sleep(delay)
			}
			if failCfg.rate > 0 {
				mu.Lock()
				hit := rnd.Float64() < failCfg.rate
				mu.Unlock()
				if hit {
					status := failCfg.code
					if status == 0 {
						status = http.StatusInternalServerError
					}
					http.Error(w, "failure injected", status)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: http.StatusInternalServerError}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return failConfig{}, fmt.Errorf("invalid fail segment %q", part)
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "rate":
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return failConfig{}, err
			}
			if rate < 0 || rate > 1 {
				return failConfig{}, fmt.Errorf("fail rate %v out of range [0,1]", rate)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(val)
			if err != nil {
				return failConfig{}, err
			}
			if code < 400 || code > 599 {
				return failConfig{}, fmt.Errorf("fail code %d is not an error status", code)
			}
			cfg.code = code
		default:
			return failConfig{}, fmt.Errorf("unknown fail key %q", key)
		}
	}
	return cfg, nil
}
