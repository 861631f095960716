// Package validation runs the per-unit validate -> persist -> TM-add ->
// progress-emit sequence over freshly translated units, before they are
// considered durably saved.
package validation

import (
	"context"
	"encoding/json"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
)

// llmConfidenceScore is the confidence recorded for every version this
// handler persists, whatever its validation outcome.
const llmConfidenceScore = 0.8

// Issue is one problem a ValidationService found with a translation.
type Issue struct {
	Severity    string
	IssueType   string
	Content     string
	Suggestion  string
	AutoFixable bool
}

// Result is the outcome of validating one unit's translation.
type Result struct {
	Issues    []Issue
	PassedAll bool
}

// HasHighSeverityIssue reports whether r contains a HIGH-severity issue.
// Handler.Run does not consult it: any issue, whatever its severity,
// gives the unit needsReview status.
func (r Result) HasHighSeverityIssue() bool {
	for _, i := range r.Issues {
		if i.Severity == "HIGH" {
			return true
		}
	}
	return false
}

// ValidationService checks a translated unit for quality problems
// (unbalanced inline tags, leftover source text, glossary mismatches).
type ValidationService interface {
	Check(sourceText, translatedText string, glossary map[string]string) Result
}

// VersionWriter persists a translation version.
type VersionWriter interface {
	SaveVersions(ctx context.Context, versions []domain.TranslationVersion) error
}

// TmEntry is one translation-memory record to add after a unit is
// validated and saved.
type TmEntry struct {
	SourceText     string
	TargetText     string
	TargetLanguage string
	QualityScore   float64
}

// TmWriter adds freshly validated translations to the translation memory.
// Writes here are best-effort: a failure does not fail the unit.
type TmWriter interface {
	SaveEntries(ctx context.Context, entries []TmEntry) error
}

// UnitTranslation is one unit paired with the text the LLM stage
// (llmtranslate.Handler, via its CacheManager) produced for it.
type UnitTranslation struct {
	Unit           domain.TranslationUnit
	TranslatedText string
	Source         domain.TranslationSource
}

// Handler runs validate -> upsert -> TM-add -> progress-emit for a batch
// of freshly translated units.
type Handler struct {
	validator ValidationService
	versions  VersionWriter
	tm        TmWriter
	progress  *orchestrator.ProgressManager
}

// New creates a Handler. progress may be nil in tests.
func New(validator ValidationService, versions VersionWriter, tm TmWriter, progress *orchestrator.ProgressManager) *Handler {
	return &Handler{validator: validator, versions: versions, tm: tm, progress: progress}
}

// Run validates, persists and TM-registers every translation, emitting a
// progress update per unit. TM-memory writes are best-effort: a TM write
// failure is swallowed (after being folded into PhaseDetail) rather than
// failing the unit, since translations have already been durably saved by
// the time the TM write happens.
func (h *Handler) Run(ctx context.Context, batchID string, translations []UnitTranslation, tctx domain.TranslationContext) ([]domain.TranslationVersion, error) {
	versions := make([]domain.TranslationVersion, 0, len(translations))
	tmEntries := make([]TmEntry, 0, len(translations))

	for _, ut := range translations {
		if h.progress != nil {
			if err := h.progress.AwaitCheckpoint(ctx, batchID); err != nil {
				return nil, err
			}
		}

		result := h.validator.Check(ut.Unit.SourceText, ut.TranslatedText, tctx.GlossaryTerms)

		status := domain.StatusTranslated
		if len(result.Issues) > 0 {
			status = domain.StatusNeedsReview
		}

		version := domain.TranslationVersion{
			UnitID:            ut.Unit.ID,
			ProjectLanguageID: tctx.ProjectLanguageID,
			TranslatedText:    ut.TranslatedText,
			Status:            status,
			ConfidenceScore:   llmConfidenceScore,
			Source:            ut.Source,
			ValidationIssues:  serializeIssues(result.Issues),
		}
		versions = append(versions, version)

		if ut.Source == domain.SourceLlm {
			tmEntries = append(tmEntries, TmEntry{
				SourceText:     ut.Unit.SourceText,
				TargetText:     ut.TranslatedText,
				TargetLanguage: tctx.TargetLanguage,
				QualityScore:   llmConfidenceScore,
			})
		}

		if h.progress != nil {
			h.progress.UpdateProgress(batchID, func(p *domain.Progress) {
				p.CurrentPhase = domain.PhaseValidating
				p.ProcessedUnits++
				if status == domain.StatusNeedsReview {
					p.SkippedUnits++
				} else {
					p.SuccessfulUnits++
				}
			})
		}
	}

	if len(versions) > 0 {
		if err := h.versions.SaveVersions(ctx, versions); err != nil {
			return nil, err
		}
	}

	if len(tmEntries) > 0 {
		// best-effort: the failure is recorded on the batch's progress, not returned
		if err := h.tm.SaveEntries(ctx, tmEntries); err != nil && h.progress != nil {
			h.progress.UpdateProgress(batchID, func(p *domain.Progress) {
				p.PhaseDetail = "tm write failed: " + err.Error()
			})
		}
	}

	if h.progress != nil {
		h.progress.UpdateProgress(batchID, func(p *domain.Progress) {
			p.CurrentPhase = domain.PhaseSaving
		})
	}

	return versions, nil
}

// serializeIssues encodes a unit's validation issues for storage in
// TranslationVersion.ValidationIssues. Empty when there is nothing to
// report, so a clean translation's stored field stays empty rather than
// "[]".
func serializeIssues(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	encoded, err := json.Marshal(issues)
	if err != nil {
		return ""
	}
	return string(encoded)
}
