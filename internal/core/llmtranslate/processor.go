package llmtranslate

import (
	"context"
	"sync"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

// ProcessResult is the outcome of translating one chunk of a batch:
// resolved translations plus the units that had to be skipped along the
// way (provider content filter on an isolated unit).
type ProcessResult struct {
	Translations map[domain.UnitID]string
	SkippedUnits []domain.UnitID
}

// SingleProcessor translates one chunk of units through a Splitter,
// applying the recursive split/retry strategy to the whole chunk as one
// unit of work.
type SingleProcessor struct {
	splitter *Splitter
}

// NewSingleProcessor creates a SingleProcessor backed by splitter.
func NewSingleProcessor(splitter *Splitter) *SingleProcessor {
	return &SingleProcessor{splitter: splitter}
}

// Process translates units for batchID and reports which ones, if any,
// were dropped as unrecoverable single-unit skips.
func (p *SingleProcessor) Process(ctx context.Context, batchID string, units []domain.TranslationUnit) (ProcessResult, error) {
	translations, err := p.splitter.Split(ctx, batchID, units, 0)
	if err != nil {
		return ProcessResult{}, err
	}

	skipped := make([]domain.UnitID, 0)
	for _, u := range units {
		if _, ok := translations[u.ID]; !ok {
			skipped = append(skipped, u.ID)
		}
	}

	return ProcessResult{Translations: translations, SkippedUnits: skipped}, nil
}

// ParallelProcessor fans a batch's units out across a fixed number of
// concurrent chunks, each run through its own SingleProcessor so a split
// in one chunk never affects another. Unlike orchestrator.ParallelHandler
// (which schedules whole batches), this fans out *within* one batch.
type ParallelProcessor struct {
	single *SingleProcessor
}

// NewParallelProcessor creates a ParallelProcessor.
func NewParallelProcessor(single *SingleProcessor) *ParallelProcessor {
	return &ParallelProcessor{single: single}
}

// Process splits units into parallelBatches contiguous chunks (clamped to
// at least 1) and translates each chunk concurrently, merging results.
// A chunk's error does not cancel sibling chunks already in flight, but
// is returned once every chunk has finished (first error wins if several
// failed).
func (p *ParallelProcessor) Process(ctx context.Context, batchID string, units []domain.TranslationUnit, parallelBatches int) (ProcessResult, error) {
	if parallelBatches < 1 {
		parallelBatches = 1
	}
	chunks := chunkUnits(units, parallelBatches)

	type chunkOutcome struct {
		result ProcessResult
		err    error
	}
	outcomes := make([]chunkOutcome, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.single.Process(ctx, batchID, chunk)
			outcomes[i] = chunkOutcome{result: result, err: err}
		}()
	}
	wg.Wait()

	merged := ProcessResult{Translations: make(map[domain.UnitID]string, len(units))}
	var firstErr error
	for _, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		for k, v := range o.result.Translations {
			merged.Translations[k] = v
		}
		merged.SkippedUnits = append(merged.SkippedUnits, o.result.SkippedUnits...)
	}
	if firstErr != nil {
		return ProcessResult{}, firstErr
	}
	return merged, nil
}

// chunkUnits splits units into at most n roughly-equal contiguous chunks.
func chunkUnits(units []domain.TranslationUnit, n int) [][]domain.TranslationUnit {
	if len(units) == 0 {
		return nil
	}
	if n > len(units) {
		n = len(units)
	}

	size := (len(units) + n - 1) / n
	chunks := make([][]domain.TranslationUnit, 0, n)
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, units[start:end])
	}
	return chunks
}
