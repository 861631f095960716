package llmtranslate

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/llmcache"
)

func newTestCacheManager() *CacheManager {
	return NewCacheManager(llmcache.New(), NewTokenEstimator(), NewRetryHandler(nil), NewErrorRecovery(), nil)
}

func TestResolveDedupsIdenticalSourceText(t *testing.T) {
	m := newTestCacheManager()
	units := []domain.TranslationUnit{
		{ID: "a", SourceText: "Hello"},
		{ID: "b", SourceText: "Hello"},
		{ID: "c", SourceText: "World"},
	}

	var calls int32
	raw := func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[domain.UnitID]string, len(units))
		for _, u := range units {
			out[u.ID] = "t:" + u.SourceText
		}
		return out, nil
	}

	results, err := m.Resolve(context.Background(), "batch-1", units, "pt-br", false, raw)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("len(results) = %d, want 3", len(results))
	}
	if results["a"].TranslatedText != results["b"].TranslatedText {
		t.Error("expected duplicate source text units to share a translation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (both unique source texts translated in one batched call)", calls)
	}
}

func TestResolveUsesExistingCacheEntry(t *testing.T) {
	cache := llmcache.New()
	cache.Translate("Hello", "pt-br", false, func() (string, error) { return "Olá", nil })

	m := NewCacheManager(cache, NewTokenEstimator(), NewRetryHandler(nil), NewErrorRecovery(), nil)
	units := []domain.TranslationUnit{{ID: "a", SourceText: "Hello"}}

	var calls int32
	raw := func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		atomic.AddInt32(&calls, 1)
		return map[domain.UnitID]string{units[0].ID: "should not be used"}, nil
	}

	results, err := m.Resolve(context.Background(), "batch-1", units, "pt-br", false, raw)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if results["a"].TranslatedText != "Olá" {
		t.Errorf("TranslatedText = %q, want Olá (from cache)", results["a"].TranslatedText)
	}
	if results["a"].Source != domain.SourceTmExact {
		t.Errorf("Source = %q, want tmExact", results["a"].Source)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (should not call provider on a cache hit)", calls)
	}
}

func TestResolveMarksLlmSourceForNewTranslations(t *testing.T) {
	m := newTestCacheManager()
	units := []domain.TranslationUnit{{ID: "a", SourceText: "New text"}}

	raw := func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		out := make(map[domain.UnitID]string, len(units))
		for _, u := range units {
			out[u.ID] = "translated"
		}
		return out, nil
	}

	results, err := m.Resolve(context.Background(), "batch-1", units, "pt-br", false, raw)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if results["a"].Source != domain.SourceLlm {
		t.Errorf("Source = %q, want llm", results["a"].Source)
	}
}

func TestResolveSkipTranslationMemoryBypassesHit(t *testing.T) {
	cache := llmcache.New()
	cache.Translate("Hello", "pt-br", false, func() (string, error) { return "stale", nil })

	m := NewCacheManager(cache, NewTokenEstimator(), NewRetryHandler(nil), NewErrorRecovery(), nil)
	units := []domain.TranslationUnit{{ID: "a", SourceText: "Hello"}}

	var calls int32
	raw := func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		atomic.AddInt32(&calls, 1)
		return map[domain.UnitID]string{units[0].ID: "fresh"}, nil
	}

	results, err := m.Resolve(context.Background(), "batch-1", units, "pt-br", true, raw)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (skipTranslationMemory should bypass the Hit)", calls)
	}
	if results["a"].TranslatedText != "fresh" {
		t.Errorf("TranslatedText = %q, want fresh", results["a"].TranslatedText)
	}
}

func TestResolveEmptyUnitsReturnsEmptyMap(t *testing.T) {
	m := newTestCacheManager()
	results, err := m.Resolve(context.Background(), "batch-1", nil, "pt-br", false, func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		t.Fatal("rawTranslate should not be called for an empty batch")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
