package llmtranslate

import (
	"context"
	"runtime"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/llmcache"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
)

// yieldEvery is how often a dedup/cache-probe loop calls runtime.Gosched()
// to give other goroutines (progress consumers, pause/cancel checks) a
// chance to run during a long synchronous scan.
const yieldEvery = 500

// CacheManager sits between tmlookup (which already resolved what it
// could from the translation memory) and the LLM: it deduplicates
// identical source text within a batch, consults the process-wide
// llmcache for cross-batch reuse, and only sends genuinely new text to
// the provider. It holds the estimator, retry handler and recovery
// strategy it needs to build a per-call Splitter rather than receiving
// one ready-made, so callers only need to supply the raw provider call.
type CacheManager struct {
	cache     *llmcache.Cache
	estimator *TokenEstimator
	retry     *RetryHandler
	recovery  *ErrorRecovery
	progress  *orchestrator.ProgressManager
}

// NewCacheManager creates a CacheManager. progress may be nil in tests.
func NewCacheManager(cache *llmcache.Cache, estimator *TokenEstimator, retry *RetryHandler, recovery *ErrorRecovery, progress *orchestrator.ProgressManager) *CacheManager {
	return &CacheManager{cache: cache, estimator: estimator, retry: retry, recovery: recovery, progress: progress}
}

// Resolution is one unit's outcome from CacheManager.Resolve.
type Resolution struct {
	TranslatedText string
	Source         domain.TranslationSource
}

// Resolve translates units, deduplicating by source text and checking the
// process-wide cache before calling rawTranslate (the uncached,
// single-shot provider call wrapped in retry and the split strategy).
// skipTranslationMemory bypasses the cache Hit check but still registers
// the result, so within-batch duplicates of a skipped unit still
// coalesce.
func (m *CacheManager) Resolve(
	ctx context.Context,
	batchID string,
	units []domain.TranslationUnit,
	targetLanguage string,
	skipTranslationMemory bool,
	rawTranslate TranslateFunc,
) (map[domain.UnitID]Resolution, error) {
	groups := make(map[string][]domain.UnitID, len(units))
	order := make([]string, 0, len(units))
	firstUnit := make(map[string]domain.TranslationUnit, len(units))

	for i, u := range units {
		if i > 0 && i%yieldEvery == 0 {
			runtime.Gosched()
		}
		if _, seen := groups[u.SourceText]; !seen {
			order = append(order, u.SourceText)
			firstUnit[u.SourceText] = u
		}
		groups[u.SourceText] = append(groups[u.SourceText], u.ID)
	}

	results := make(map[domain.UnitID]Resolution, len(units))
	misses := make([]domain.TranslationUnit, 0, len(order))

	for i, sourceText := range order {
		if i > 0 && i%yieldEvery == 0 {
			runtime.Gosched()
		}
		if m.progress != nil {
			if err := m.progress.AwaitCheckpoint(ctx, batchID); err != nil {
				return nil, err
			}
		}

		if !skipTranslationMemory {
			if cached, ok := m.cache.Lookup(sourceText, targetLanguage); ok {
				for _, id := range groups[sourceText] {
					results[id] = Resolution{TranslatedText: cached, Source: domain.SourceTmExact}
				}
				continue
			}
		}

		misses = append(misses, firstUnit[sourceText])
	}

	if len(misses) == 0 {
		return results, nil
	}

	// Hand every uncached representative unit to the splitter in one call
	// so LlmTokenEstimator.CalculateOptimalBatchSize and the splitInHalf
	// recovery strategy see the whole set of new text, not one unit at a
	// time.
	processor := NewSingleProcessor(NewSplitter(m.wrapWithRetry(batchID, rawTranslate), m.estimator, m.recovery, m.progress))
	processed, err := processor.Process(ctx, batchID, misses)
	if err != nil {
		return nil, err
	}

	for _, representative := range misses {
		text, ok := processed.Translations[representative.ID]
		if !ok {
			// The representative unit was itself skipped (content
			// filtered); propagate the skip to every unit sharing the
			// source text rather than failing the batch.
			continue
		}
		cached, _, err := m.cache.Translate(representative.SourceText, targetLanguage, skipTranslationMemory, func() (string, error) {
			return text, nil
		})
		if err != nil {
			return nil, err
		}
		for _, id := range groups[representative.SourceText] {
			results[id] = Resolution{TranslatedText: cached, Source: domain.SourceLlm}
		}
	}

	return results, nil
}

// wrapWithRetry adapts rawTranslate into a TranslateFunc whose failures go
// through the retry handler before surfacing to the Splitter.
func (m *CacheManager) wrapWithRetry(batchID string, rawTranslate TranslateFunc) TranslateFunc {
	return func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		var result map[domain.UnitID]string
		err := m.retry.Do(ctx, batchID, func() error {
			var innerErr error
			result, innerErr = rawTranslate(ctx, units, maxTokens)
			return innerErr
		})
		return result, err
	}
}
