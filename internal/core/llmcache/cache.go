// Package llmcache is the process-wide translation cache sitting in front
// of every LLM call. It collapses concurrent requests for the same
// (sourceText, targetLanguage) pair into a single upstream call — the
// classic single-flight shape, so rather than reimplement the
// Miss/Pending/Hit state machine by hand we build directly on
// golang.org/x/sync/singleflight, which already gives every caller racing
// on the same key the same result and error.
package llmcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TranslateFunc performs the actual (uncached) translation for one
// (sourceText, targetLanguage) pair.
type TranslateFunc func() (string, error)

// Cache is the single named-module exception to constructor-only
// injection: it is process-wide and long-lived, built once at startup and
// shared by every batch, rather than constructed fresh per request.
type Cache struct {
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]string
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

func cacheKey(sourceText, targetLanguage string) string {
	h := sha256.Sum256([]byte(targetLanguage + "\x00" + sourceText))
	return hex.EncodeToString(h[:])
}

// Lookup reports the Hit state: a previously completed translation for
// this pair, without triggering any work.
func (c *Cache) Lookup(sourceText, targetLanguage string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey(sourceText, targetLanguage)]
	return v, ok
}

// Translate resolves sourceText/targetLanguage through the cache. If
// skipTranslationMemory is true the Hit check is bypassed — fn always
// runs — but the result is still registered in the cache and still
// coalesces concurrent callers racing on the same pair, so a later
// non-skipping caller (or a concurrent one in the same moment) benefits
// from it. This realizes "skip TM lookup but still complete the shared
// entry" without a second code path.
func (c *Cache) Translate(sourceText, targetLanguage string, skipTranslationMemory bool, fn TranslateFunc) (text string, shared bool, err error) {
	key := cacheKey(sourceText, targetLanguage)

	if !skipTranslationMemory {
		if v, ok := c.Lookup(sourceText, targetLanguage); ok {
			return v, false, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		result, err := fn()
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.entries[key] = result
		c.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return "", shared, err
	}
	return v.(string), shared, nil
}

// Forget removes a previously cached entry, forcing the next Translate
// call for this pair to run fn again.
func (c *Cache) Forget(sourceText, targetLanguage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(sourceText, targetLanguage))
}

// Len reports how many entries are currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
