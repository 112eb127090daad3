package consul

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envAddr        = "CONSUL_ADDR"
	envHTTPAddr    = "CONSUL_HTTP_ADDR"
	envScheme      = "CONSUL_SCHEME"
	envHost        = "CONSUL_HOST"
	envPort        = "CONSUL_PORT"
	envToken       = "CONSUL_TOKEN"
	envHTTPToken   = "CONSUL_HTTP_TOKEN"
	envTimeout     = "CONSUL_HTTP_TIMEOUT"
	envBasicAuth   = "CONSUL_HTTP_AUTH"
	envNamespace   = "CONSUL_NAMESPACE"
	envMode        = "CONSUL_RUNTIME_MODE"
	envMockKVSeed  = "CONSUL_MOCK_KV_SEED"
	envHome        = "HOME"
	tokenFileName  = ".consul-token"
	defaultScheme  = "http"
	defaultHost    = "localhost"
	defaultPort    = "8500"
	defaultTimeout = 5 * time.Second
)

// Runtime modes.
const (
	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

// Config holds fully resolved connection settings.
type Config struct {
	// Address of the agent, e.g. "http://localhost:8500". A missing scheme
	// defaults to http.
	Address string
	Token   string
	Timeout time.Duration
	// BasicAuth is "user:password". It is ignored when Token is set.
	BasicAuth string
	Namespace string
	// Prefix scopes every key of the returned KV client.
	Prefix string
	// Mode is ModeHTTP or ModeMock; empty means ModeHTTP.
	Mode     string
	MockSeed string
}

// Env is a snapshot of environment variables.
type Env map[string]string

// OSEnv snapshots the process environment.
func OSEnv() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func (e Env) get(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(e[key]); v != "" {
			return v
		}
	}
	return ""
}

// ResolveConfig builds a Config from env. An unset CONSUL_RUNTIME_MODE
// selects http mode against the resolved address; "auto" selects http only
// when an address variable is present and mock otherwise.
func ResolveConfig(env Env) (Config, error) {
	cfg := Config{
		Address:   env.get(envAddr, envHTTPAddr),
		BasicAuth: env.get(envBasicAuth),
		Namespace: env.get(envNamespace),
		MockSeed:  env.get(envMockKVSeed),
		Timeout:   defaultTimeout,
	}
	explicitAddr := cfg.Address != "" || env.get(envHost) != "" || env.get(envPort) != ""
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf("%s://%s:%s",
			valueOr(env.get(envScheme), defaultScheme),
			valueOr(env.get(envHost), defaultHost),
			valueOr(env.get(envPort), defaultPort))
	}

	if raw := env.get(envTimeout); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			return Config{}, fmt.Errorf("consul: invalid %s value %q", envTimeout, raw)
		}
		if secs > 0 {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}

	token, err := resolveToken(env)
	if err != nil {
		return Config{}, err
	}
	cfg.Token = token

	switch mode := strings.ToLower(env.get(envMode)); mode {
	case "", ModeHTTP:
		cfg.Mode = ModeHTTP
	case ModeMock:
		cfg.Mode = ModeMock
	case ModeAuto:
		cfg.Mode = ModeMock
		if explicitAddr {
			cfg.Mode = ModeHTTP
		}
	default:
		return Config{}, fmt.Errorf("consul: unsupported %s value %q", envMode, mode)
	}
	return cfg, nil
}

func resolveToken(env Env) (string, error) {
	if token := env.get(envToken, envHTTPToken); token != "" {
		return token, nil
	}
	home := env.get(envHome)
	if home == "" {
		return "", nil
	}
	path := filepath.Join(home, tokenFileName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("consul: read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
