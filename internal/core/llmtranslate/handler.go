package llmtranslate

import (
	"context"
	"sync"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

// Handler is the top-level LLM translation stage: it hands a batch's
// units that the translation memory did not resolve to the CacheManager,
// fanning out across tctx.ParallelBatches concurrent chunks when there
// are enough units to make that worthwhile. Successful chunks are unioned
// by unit id, as in ParallelProcessor. One chunk's failure does not cancel
// sibling chunks still in flight, but once every chunk has finished the
// first error is returned with a nil map: the other chunks' translations
// are not returned (those chunks have still registered them in the
// process-wide cache).
type Handler struct {
	cache *CacheManager
}

// NewHandler creates a Handler backed by cache.
func NewHandler(cache *CacheManager) *Handler {
	return &Handler{cache: cache}
}

// Translate resolves units against the process-wide cache and, for
// anything still missing, rawTranslate - itself already wrapped in retry
// and the recursive split strategy by the time it reaches CacheManager.
func (h *Handler) Translate(
	ctx context.Context,
	batchID string,
	units []domain.TranslationUnit,
	tctx domain.TranslationContext,
	rawTranslate TranslateFunc,
) (map[domain.UnitID]Resolution, error) {
	parallelBatches := tctx.ParallelBatches
	if parallelBatches <= 1 || len(units) <= parallelBatches {
		return h.cache.Resolve(ctx, batchID, units, tctx.TargetLanguage, tctx.SkipTranslationMemory, rawTranslate)
	}

	chunks := chunkUnits(units, parallelBatches)

	type chunkOutcome struct {
		result map[domain.UnitID]Resolution
		err    error
	}
	outcomes := make([]chunkOutcome, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.cache.Resolve(ctx, batchID, chunk, tctx.TargetLanguage, tctx.SkipTranslationMemory, rawTranslate)
			outcomes[i] = chunkOutcome{result: result, err: err}
		}()
	}
	wg.Wait()

	merged := make(map[domain.UnitID]Resolution, len(units))
	var firstErr error
	for _, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		for k, v := range o.result {
			merged[k] = v
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return merged, nil
}
