package llmtranslate

import (
	"fmt"

	"context"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
)

// maxSplitDepth bounds the self-healing split recursion. The teacher
// capped this at 3 (50 -> 25 -> 12 -> 6 units); a game-mod glossary batch
// can be far larger, so the budget is generous enough to still halve a
// few-thousand-unit batch down to single units before giving up.
const maxSplitDepth = 25

// TranslateFunc sends units to the provider and returns translations keyed
// by unit id. A returned map shorter than units (without an error) is a
// desync — the provider replied but dropped or miscounted units.
type TranslateFunc func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error)

// Splitter implements the recursive self-healing split strategy: when a
// batch attempt fails or desyncs, it is split in half and each half
// retried independently, down to maxSplitDepth.
type Splitter struct {
	translate TranslateFunc
	estimator *TokenEstimator
	recovery  *ErrorRecovery
	progress  *orchestrator.ProgressManager
}

// NewSplitter creates a Splitter. progress may be nil in tests.
func NewSplitter(translate TranslateFunc, estimator *TokenEstimator, recovery *ErrorRecovery, progress *orchestrator.ProgressManager) *Splitter {
	return &Splitter{translate: translate, estimator: estimator, recovery: recovery, progress: progress}
}

// Split translates units for batchID, splitting and retrying as needed.
// Units that are skipped (provider content filter on a single-unit batch)
// are simply absent from the returned map rather than erroring the whole
// batch.
func (s *Splitter) Split(ctx context.Context, batchID string, units []domain.TranslationUnit, depth int) (map[domain.UnitID]string, error) {
	if s.progress != nil {
		if err := s.progress.AwaitCheckpoint(ctx, batchID); err != nil {
			return nil, err
		}
	}

	if len(units) == 0 {
		return map[domain.UnitID]string{}, nil
	}

	if depth > maxSplitDepth {
		return nil, &orchestrator.OrchestrationError{
			BatchID: batchID,
			Stage:   "llmTranslation",
			Err:     fmt.Errorf("split depth exceeded %d with %d units remaining", maxSplitDepth, len(units)),
		}
	}

	maxTokens := s.estimator.EstimateMaxTokens(units)

	// Pre-emptive split: don't even attempt a batch the estimator thinks
	// won't fit in one request.
	if optimal := s.estimator.CalculateOptimalBatchSize(units, maxTokens); optimal < len(units) && len(units) > 1 {
		return s.splitInHalf(ctx, batchID, units, depth)
	}

	result, err := s.attempt(ctx, units, maxTokens)
	if err == nil {
		return result, nil
	}

	action := s.recovery.Classify(err, len(units))
	switch action {
	case ActionSkipUnit:
		return map[domain.UnitID]string{}, nil

	case ActionRetryWithMoreTokens:
		boosted := clamp(maxTokens*2, minMaxTokens, maxMaxTokens)
		if result, retryErr := s.attempt(ctx, units, boosted); retryErr == nil {
			return result, nil
		}
		if len(units) > 1 && depth < maxSplitDepth {
			return s.splitInHalf(ctx, batchID, units, depth)
		}
		return nil, &orchestrator.OrchestrationError{BatchID: batchID, Stage: "llmTranslation", Err: err}

	case ActionSplit:
		if len(units) > 1 && depth < maxSplitDepth {
			return s.splitInHalf(ctx, batchID, units, depth)
		}
		return nil, &orchestrator.OrchestrationError{BatchID: batchID, Stage: "llmTranslation", Err: err}

	default: // ActionFatal
		return nil, &orchestrator.OrchestrationError{BatchID: batchID, Stage: "llmTranslation", Err: err}
	}
}

// attempt calls translate and turns a short (desynced) response into an
// error the recovery classifier can reason about.
func (s *Splitter) attempt(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
	result, err := s.translate(ctx, units, maxTokens)
	if err != nil {
		return nil, err
	}
	if len(result) != len(units) {
		return nil, fmt.Errorf("desync: expected %d translations, got %d", len(units), len(result))
	}
	return result, nil
}

func (s *Splitter) splitInHalf(ctx context.Context, batchID string, units []domain.TranslationUnit, depth int) (map[domain.UnitID]string, error) {
	mid := len(units) / 2
	first := units[:mid]
	second := units[mid:]

	resultA, err := s.Split(ctx, batchID, first, depth+1)
	if err != nil {
		return nil, err
	}
	resultB, err := s.Split(ctx, batchID, second, depth+1)
	if err != nil {
		return nil, err
	}

	merged := make(map[domain.UnitID]string, len(resultA)+len(resultB))
	for k, v := range resultA {
		merged[k] = v
	}
	for k, v := range resultB {
		merged[k] = v
	}
	return merged, nil
}
