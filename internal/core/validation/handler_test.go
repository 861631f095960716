package validation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

type fakeValidator struct {
	issues map[string][]Issue
}

func (f *fakeValidator) Check(sourceText, translatedText string, glossary map[string]string) Result {
	issues := f.issues[translatedText]
	return Result{Issues: issues, PassedAll: len(issues) == 0}
}

type fakeVersionWriter struct {
	mu    sync.Mutex
	saved []domain.TranslationVersion
	err   error
}

func (f *fakeVersionWriter) SaveVersions(ctx context.Context, versions []domain.TranslationVersion) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, versions...)
	return nil
}

type fakeTmWriter struct {
	mu      sync.Mutex
	entries []TmEntry
	err     error
}

func (f *fakeTmWriter) SaveEntries(ctx context.Context, entries []TmEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return f.err
}

func TestRunCleanTranslationIsTranslatedStatus(t *testing.T) {
	validator := &fakeValidator{}
	versions := &fakeVersionWriter{}
	tm := &fakeTmWriter{}
	h := New(validator, versions, tm, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceLlm},
	}

	got, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{ProjectLanguageID: "pl-1", TargetLanguage: "pt-br"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Status != domain.StatusTranslated {
		t.Errorf("Status = %q, want translated", got[0].Status)
	}
	if got[0].ConfidenceScore != llmConfidenceScore {
		t.Errorf("ConfidenceScore = %f, want %f", got[0].ConfidenceScore, llmConfidenceScore)
	}
	if len(versions.saved) != 1 {
		t.Fatalf("expected 1 saved version, got %d", len(versions.saved))
	}
	if len(tm.entries) != 1 {
		t.Errorf("expected 1 TM entry for an llm-sourced translation, got %d", len(tm.entries))
	}
}

func TestRunHighSeverityIssueForcesNeedsReview(t *testing.T) {
	validator := &fakeValidator{issues: map[string][]Issue{
		"Olá {broken": {{Severity: "HIGH", IssueType: "Broken Inline Tags"}},
	}}
	h := New(validator, &fakeVersionWriter{}, &fakeTmWriter{}, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá {broken", Source: domain.SourceLlm},
	}

	got, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Status != domain.StatusNeedsReview {
		t.Errorf("Status = %q, want needsReview", got[0].Status)
	}
	if got[0].ValidationIssues == "" {
		t.Error("expected ValidationIssues to be populated for a unit with issues")
	}
}

func TestRunAnySeverityIssueForcesNeedsReview(t *testing.T) {
	validator := &fakeValidator{issues: map[string][]Issue{
		"Olá": {{Severity: "LOW", IssueType: "Glossary Mismatch"}},
	}}
	h := New(validator, &fakeVersionWriter{}, &fakeTmWriter{}, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceLlm},
	}

	got, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Status != domain.StatusNeedsReview {
		t.Errorf("Status = %q, want needsReview (any issue, not just HIGH severity, forces review)", got[0].Status)
	}
	if got[0].ValidationIssues == "" {
		t.Error("expected ValidationIssues to be populated")
	}
}

func TestRunCleanTranslationHasEmptyValidationIssues(t *testing.T) {
	h := New(&fakeValidator{}, &fakeVersionWriter{}, &fakeTmWriter{}, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceLlm},
	}

	got, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].ValidationIssues != "" {
		t.Errorf("ValidationIssues = %q, want empty for a clean translation", got[0].ValidationIssues)
	}
}

func TestRunTmExactSourceSkipsTmWrite(t *testing.T) {
	h := New(&fakeValidator{}, &fakeVersionWriter{}, &fakeTmWriter{}, nil)
	tm := h.tm.(*fakeTmWriter)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceTmExact},
	}

	_, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tm.entries) != 0 {
		t.Errorf("expected no TM write for a unit already sourced from TM, got %d", len(tm.entries))
	}
}

func TestRunPropagatesVersionWriterError(t *testing.T) {
	boom := errors.New("disk full")
	h := New(&fakeValidator{}, &fakeVersionWriter{err: boom}, &fakeTmWriter{}, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceLlm},
	}

	_, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRunTmWriteFailureIsBestEffort(t *testing.T) {
	h := New(&fakeValidator{}, &fakeVersionWriter{}, &fakeTmWriter{err: errors.New("tm unavailable")}, nil)

	translations := []UnitTranslation{
		{Unit: domain.TranslationUnit{ID: "a", SourceText: "Hello"}, TranslatedText: "Olá", Source: domain.SourceLlm},
	}

	_, err := h.Run(context.Background(), "batch-1", translations, domain.TranslationContext{})
	if err != nil {
		t.Errorf("expected TM write failure to be swallowed, got %v", err)
	}
}

func TestRunEmptyTranslationsIsNoOp(t *testing.T) {
	versions := &fakeVersionWriter{}
	h := New(&fakeValidator{}, versions, &fakeTmWriter{}, nil)

	got, err := h.Run(context.Background(), "batch-1", nil, domain.TranslationContext{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no versions, got %d", len(got))
	}
	if len(versions.saved) != 0 {
		t.Error("expected SaveVersions not to be called for an empty batch")
	}
}
