package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching operations
type Cache interface {
	// Get retrieves a value from the cache
	// Returns the value and a boolean indicating whether the key was found
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set adds a value to the cache with the specified expiration
	// If expiration is 0, the item never expires (but may be evicted)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)

	// Delete removes a key from the cache
	Delete(ctx context.Context, key string)

	// DeleteByPrefix removes all keys with the given prefix
	DeleteByPrefix(ctx context.Context, prefix string)

	// Flush removes all items from the cache
	Flush(ctx context.Context)
}

// Cache key prefixes. Only read-only sequence definitions are cached;
// counters are read fresh under the row lock on every allocation.
const (
	PrefixSequenceDefinition = "sequence_def:v1:"
)

// Key builds a tenant-qualified cache key
func Key(prefix string, parts ...string) string {
	return fmt.Sprintf("%s%s", prefix, strings.Join(parts, ":"))
}
