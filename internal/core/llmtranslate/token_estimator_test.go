package llmtranslate

import (
	"strings"
	"testing"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

func unitsWithText(texts ...string) []domain.TranslationUnit {
	units := make([]domain.TranslationUnit, len(texts))
	for i, t := range texts {
		units[i] = domain.TranslationUnit{ID: domain.UnitID(t), SourceText: t}
	}
	return units
}

func TestEstimateMaxTokensClampsToMinimum(t *testing.T) {
	e := NewTokenEstimator()
	got := e.EstimateMaxTokens(unitsWithText("hi"))
	if got != minMaxTokens {
		t.Errorf("EstimateMaxTokens = %d, want %d (clamped to minimum)", got, minMaxTokens)
	}
}

func TestEstimateMaxTokensClampsToMaximum(t *testing.T) {
	e := NewTokenEstimator()
	huge := strings.Repeat("a very long sentence with many words indeed ", 10000)
	got := e.EstimateMaxTokens(unitsWithText(huge))
	if got != maxMaxTokens {
		t.Errorf("EstimateMaxTokens = %d, want %d (clamped to maximum)", got, maxMaxTokens)
	}
}

func TestEstimateMaxTokensGrowsWithContent(t *testing.T) {
	e := NewTokenEstimator()
	small := e.EstimateMaxTokens(unitsWithText("hi there"))
	large := e.EstimateMaxTokens(unitsWithText(strings.Repeat("word ", 500)))
	if large <= small {
		t.Errorf("expected larger content to estimate more tokens: small=%d large=%d", small, large)
	}
}

func TestCalculateOptimalBatchSizeEmpty(t *testing.T) {
	e := NewTokenEstimator()
	if got := e.CalculateOptimalBatchSize(nil, 10000); got != 0 {
		t.Errorf("CalculateOptimalBatchSize(nil) = %d, want 0", got)
	}
}

func TestCalculateOptimalBatchSizeNeverExceedsUnitCount(t *testing.T) {
	e := NewTokenEstimator()
	units := unitsWithText("a", "b", "c")
	got := e.CalculateOptimalBatchSize(units, 1000000)
	if got > len(units) {
		t.Errorf("CalculateOptimalBatchSize = %d, want <= %d", got, len(units))
	}
}

func TestCalculateOptimalBatchSizeShrinksWithLargerUnits(t *testing.T) {
	e := NewTokenEstimator()
	shortUnits := unitsWithText("hi", "ok", "no", "yes")
	longText := strings.Repeat("word ", 200)
	longUnits := unitsWithText(longText, longText, longText, longText)

	shortSize := e.CalculateOptimalBatchSize(shortUnits, 5000)
	longSize := e.CalculateOptimalBatchSize(longUnits, 5000)

	if longSize > shortSize {
		t.Errorf("expected longer units to yield a smaller or equal batch size: short=%d long=%d", shortSize, longSize)
	}
}

func TestCalculateOptimalBatchSizeAtLeastOne(t *testing.T) {
	e := NewTokenEstimator()
	longText := strings.Repeat("word ", 5000)
	units := unitsWithText(longText)
	got := e.CalculateOptimalBatchSize(units, minMaxTokens)
	if got < 1 {
		t.Errorf("CalculateOptimalBatchSize = %d, want >= 1", got)
	}
}
