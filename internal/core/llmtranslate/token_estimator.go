package llmtranslate

import (
	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/tokenizer"
)

const (
	minMaxTokens = 1000
	maxMaxTokens = 80000

	// fixedContextTokens approximates the system prompt, glossary and
	// sliding-window context every request pays regardless of batch size.
	fixedContextTokens = 800
	// safetyMargin inflates the per-unit average to leave headroom for
	// the model's own translation overhead (punctuation, expansion
	// between languages, inline tags echoed back).
	safetyMargin = 1.4
	// sampleSize bounds how many units calculateOptimalBatchSize samples
	// to estimate an average per-unit token cost.
	sampleSize = 20
)

// TokenEstimator estimates request token budgets and batch sizing. It
// wraps tokenizer.Estimator — a pure heuristic, no I/O — so every method
// here stays pure and table-testable.
type TokenEstimator struct {
	estimator *tokenizer.Estimator
}

// NewTokenEstimator creates a TokenEstimator with a fresh token heuristic.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{estimator: tokenizer.NewEstimator()}
}

// EstimateMaxTokens returns the max_tokens budget to request from the
// provider for translating units, clamped to [minMaxTokens, maxMaxTokens].
func (e *TokenEstimator) EstimateMaxTokens(units []domain.TranslationUnit) int {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.SourceText
	}
	estimate := int(float64(e.estimator.EstimateBatch(texts)) * safetyMargin)
	return clamp(estimate, minMaxTokens, maxMaxTokens)
}

// CalculateOptimalBatchSize estimates how many units of totalUnits can fit
// in one request given maxTokens, sampling up to sampleSize units to
// approximate an average per-unit token cost and reserving
// fixedContextTokens for the prompt overhead every request pays.
func (e *TokenEstimator) CalculateOptimalBatchSize(units []domain.TranslationUnit, maxTokens int) int {
	if len(units) == 0 {
		return 0
	}

	sample := units
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	total := 0
	for _, u := range sample {
		total += e.estimator.EstimateTokens(u.SourceText)
	}
	avgPerUnit := float64(total) / float64(len(sample)) * safetyMargin
	if avgPerUnit < 1 {
		avgPerUnit = 1
	}

	budget := float64(maxTokens-fixedContextTokens) / avgPerUnit
	size := int(budget)
	if size < 1 {
		size = 1
	}
	if size > len(units) {
		size = len(units)
	}
	return size
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
