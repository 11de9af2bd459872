// Package toolcache provides keyed, TTL-bound memoization of idempotent tool
// results. Caching is strictly a performance optimization: backend failures
// and corrupt entries degrade to a miss, never to an error.
package toolcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache is the contract consulted by the tool executor before invoking a
// tool and populated only after a successful invocation.
type Cache interface {
	// Get returns the cached value and true on a live hit; (nil, false)
	// on a miss, an expired entry, or any backend trouble.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Put stores value under key for ttl. Errors are swallowed after
	// logging; a failed put simply means a future miss.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Key derives the deterministic cache key for a tool invocation from the
// tool name and its normalized arguments. Normalization sorts map keys and
// round-trips through canonical JSON so argument ordering and irrelevant
// whitespace do not fragment the cache.
func Key(toolName string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(args)))
	return toolName + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

func canonicalJSON(v any) string {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			b.WriteString(canonicalJSON(val[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalJSON(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
