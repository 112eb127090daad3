// Package devseed loads JSON seed files used to pre-populate the in-memory
// Consul KV mock for local development and the sandbox server.
package devseed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// KVSeedEntry describes a single key written before the mock starts serving.
// Value is stored verbatim; Flags is optional.
type KVSeedEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Flags uint64 `json:"flags,omitempty"`
}

// LoadKVSeed reads a JSON array of KVSeedEntry from path.
func LoadKVSeed(path string) ([]KVSeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	return ParseKVSeed(data)
}

// ParseKVSeed decodes seed entries from raw JSON.
func ParseKVSeed(data []byte) ([]KVSeedEntry, error) {
	var entries []KVSeedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("devseed: decode kv seed: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("devseed: entry %d missing key", i)
		}
	}
	return entries, nil
}
