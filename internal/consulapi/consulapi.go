// Package consulapi holds wire-level helpers shared by the Consul KV client,
// its in-memory mock and the sandbox server: header names, path joining and
// lenient header parsing.
package consulapi

import (
	"strconv"
	"strings"
)

// Response and request headers used by the Consul HTTP API.
const (
	HeaderIndex              = "X-Consul-Index"
	HeaderKnownLeader        = "X-Consul-KnownLeader"
	HeaderLastContact        = "X-Consul-LastContact"
	HeaderToken              = "X-Consul-Token"
	HeaderTranslateAddresses = "X-Consul-Translate-Addresses"
	HeaderNamespace          = "X-Consul-Namespace"
)

// APIVersionPath is appended to the agent address to form the API base URL.
const APIVersionPath = "/v1"

// KVEndpoint is the first path segment of every key/value request.
const KVEndpoint = "kv"

// JoinPath concatenates parts with "/" and returns a path that starts with a
// slash and has every run of slashes collapsed. A trailing slash on the last
// part is kept since Consul treats "a/" and "a" as distinct keys.
func JoinPath(parts ...string) string {
	return collapseSlashes("/" + strings.Join(parts, "/"))
}

// KVPath returns the request path for key relative to the API base URL.
func KVPath(key string) string {
	return JoinPath(KVEndpoint, key)
}

// NormalizeKey returns key as the agent stores it once sent through KVPath:
// no leading slash and no repeated slashes.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(JoinPath(key), "/")
}

func collapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseIndex parses an X-Consul-Index value. Missing or malformed values map
// to zero.
func ParseIndex(raw string) uint64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// IsJSON reports whether contentType denotes a JSON document.
func IsJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType) == "application/json"
}
