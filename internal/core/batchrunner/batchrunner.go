// Package batchrunner composes the per-batch pipeline stages -
// translation-memory lookup, LLM translation, validation and persistence
// - into the single logical task orchestrator.ParallelHandler schedules
// one goroutine per batch of. It depends concretely on tmlookup,
// llmtranslate and validation rather than through interfaces, since all
// three already depend on orchestrator for progress checkpointing and Go
// forbids the import cycle an interface split would otherwise need here.
package batchrunner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/llmtranslate"
	"github.com/lsilvatti/modtranslate/internal/core/obslog"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
	"github.com/lsilvatti/modtranslate/internal/core/tmlookup"
	"github.com/lsilvatti/modtranslate/internal/core/validation"
)

// placeholderPattern matches a source text that is nothing but a single
// bracketed token, e.g. "[ITEM_NAME]" - a placeholder the game engine
// substitutes at runtime, not translatable prose. Double-bracket markup
// like "[[col:y]]" does not match: its content starts with another
// bracket character, which the inner character class excludes.
var placeholderPattern = regexp.MustCompile(`^\[[^\[\]]+\]$`)

// isPlaceholder reports whether sourceText should be excluded from
// translation entirely rather than routed through TM lookup or the LLM.
func isPlaceholder(sourceText string) bool {
	return placeholderPattern.MatchString(sourceText)
}

// Runner runs the full pipeline for one batch.
type Runner struct {
	tm        *tmlookup.Handler
	llm       *llmtranslate.Handler
	validator *validation.Handler
	progress  *orchestrator.ProgressManager
	log       obslog.LoggingService
}

// New creates a Runner. log may be nil, in which case log events are
// silently dropped.
func New(tm *tmlookup.Handler, llm *llmtranslate.Handler, validator *validation.Handler, progress *orchestrator.ProgressManager, log obslog.LoggingService) *Runner {
	return &Runner{tm: tm, llm: llm, validator: validator, progress: progress, log: log}
}

// Run executes tmLookup -> llmTranslation -> validation for one batch,
// reporting progress through the ProgressManager and returning the
// versions persisted by the validation stage, i.e. one for every unit the
// LLM stage translated or served from the process-wide cache. Units the
// translation memory resolved are persisted by tmlookup and are not in the
// returned slice; when the translation memory resolves every unit, Run
// returns nil.
func (r *Runner) Run(ctx context.Context, batchID string, units []domain.TranslationUnit, tctx domain.TranslationContext, rawTranslate llmtranslate.TranslateFunc) ([]domain.TranslationVersion, error) {
	translatable := make([]domain.TranslationUnit, 0, len(units))
	for _, u := range units {
		if isPlaceholder(u.SourceText) {
			continue
		}
		translatable = append(translatable, u)
	}

	if r.progress != nil {
		r.progress.Start(batchID, len(translatable))
		defer r.progress.Cleanup(batchID)
	}

	resolved, err := r.tm.Run(ctx, batchID, translatable, tctx)
	if err != nil {
		return nil, fmt.Errorf("batch %s: tm lookup: %w", batchID, err)
	}

	remaining := make([]domain.TranslationUnit, 0, len(translatable)-len(resolved))
	byID := make(map[domain.UnitID]domain.TranslationUnit, len(translatable))
	for _, u := range translatable {
		byID[u.ID] = u
		if !resolved[u.ID] {
			remaining = append(remaining, u)
		}
	}

	if r.log != nil {
		r.log.Info("tm lookup resolved units",
			obslog.F("batchId", batchID),
			obslog.F("resolved", len(resolved)),
			obslog.F("remaining", len(remaining)))
	}

	if len(remaining) == 0 {
		if r.progress != nil {
			r.progress.UpdateProgress(batchID, func(p *domain.Progress) { p.CurrentPhase = domain.PhaseCompleted })
		}
		return nil, nil
	}

	resolutions, err := r.llm.Translate(ctx, batchID, remaining, tctx, rawTranslate)
	if err != nil {
		if r.log != nil {
			r.log.Error("llm translation failed", err, obslog.F("batchId", batchID))
		}
		return nil, fmt.Errorf("batch %s: llm translation: %w", batchID, err)
	}

	translations := make([]validation.UnitTranslation, 0, len(resolutions))
	for id, res := range resolutions {
		translations = append(translations, validation.UnitTranslation{
			Unit:           byID[id],
			TranslatedText: res.TranslatedText,
			Source:         res.Source,
		})
	}

	versions, err := r.validator.Run(ctx, batchID, translations, tctx)
	if err != nil {
		return nil, fmt.Errorf("batch %s: validation: %w", batchID, err)
	}

	if r.progress != nil {
		r.progress.UpdateProgress(batchID, func(p *domain.Progress) { p.CurrentPhase = domain.PhaseCompleted })
	}

	return versions, nil
}
