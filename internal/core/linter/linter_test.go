package linter

import (
	"testing"
)

// TestSeverityConstants tests Severity constant values
func TestSeverityConstants(t *testing.T) {
	if SeverityHigh != "HIGH" {
		t.Errorf("SeverityHigh = %q, want HIGH", SeverityHigh)
	}

	if SeverityMedium != "MED" {
		t.Errorf("SeverityMedium = %q, want MED", SeverityMedium)
	}

	if SeverityLow != "LOW" {
		t.Errorf("SeverityLow = %q, want LOW", SeverityLow)
	}
}

// TestIssueStruct tests Issue structure
func TestIssueStruct(t *testing.T) {
	issue := Issue{
		LineID:      10,
		Severity:    SeverityHigh,
		IssueType:   "ass_tag_mismatch",
		Content:     "Invalid tag",
		Suggestion:  "Fix the tag",
		AutoFixable: true,
	}

	if issue.LineID != 10 {
		t.Errorf("LineID = %d, want 10", issue.LineID)
	}

	if issue.Severity != SeverityHigh {
		t.Errorf("Severity = %q, want %q", issue.Severity, SeverityHigh)
	}

	if issue.IssueType != "ass_tag_mismatch" {
		t.Errorf("IssueType = %q, want ass_tag_mismatch", issue.IssueType)
	}

	if !issue.AutoFixable {
		t.Error("AutoFixable should be true")
	}
}

// TestResultStruct tests Result structure
func TestResultStruct(t *testing.T) {
	result := Result{
		Issues:    []Issue{},
		PassedAll: true,
	}

	if !result.PassedAll {
		t.Error("PassedAll should be true")
	}

	if len(result.Issues) != 0 {
		t.Error("Issues should be empty")
	}
}

// TestCheckOptionsStruct tests CheckOptions structure
func TestCheckOptionsStruct(t *testing.T) {
	opts := CheckOptions{
		SourceLang: "en",
		TargetLang: "pt-br",
		Glossary: map[string]string{
			"Nakama": "Companheiro",
		},
	}

	if opts.SourceLang != "en" {
		t.Errorf("SourceLang = %q, want en", opts.SourceLang)
	}

	if opts.TargetLang != "pt-br" {
		t.Errorf("TargetLang = %q, want pt-br", opts.TargetLang)
	}

	if opts.Glossary["Nakama"] != "Companheiro" {
		t.Error("Glossary entry not set correctly")
	}
}

// TestCheckSimple tests CheckSimple function
func TestCheckSimple(t *testing.T) {
	// Use non-English text to avoid residue detection
	lines := []string{
		"Olá mundo",
		"Isto é um teste",
	}

	result := CheckSimple(lines, "pt")

	// Should pass with no issues for non-source-lang text
	if !result.PassedAll {
		t.Logf("Issues detected (expected for some implementations): %+v", result.Issues)
	}
}

// TestCheckWithInlineTags tests inline markup tag validation
func TestCheckWithInlineTags(t *testing.T) {
	lines := []string{
		`[[col:y]]Hello world[[/col]]`,
		`Normal line`,
	}

	result := Check(lines, CheckOptions{})

	if !result.PassedAll {
		t.Errorf("expected well-formed [[col:y]]...[[/col]] tags to pass, got issues %+v", result.Issues)
	}
}

func TestCheckWithUnclosedInlineTag(t *testing.T) {
	result := Check([]string{`[[col:y]]Hello world`}, CheckOptions{})
	if result.PassedAll {
		t.Error("expected an unclosed [[col:y]] tag to fail validation")
	}
}

// TestCheckWithBrackets tests bracket matching
func TestCheckWithBrackets(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		shouldPass bool
	}{
		{
			name:       "balanced brackets",
			lines:      []string{"[Music] Hello (world)"},
			shouldPass: true,
		},
		{
			name:       "unbalanced brackets",
			lines:      []string{"[Music Hello (world"},
			shouldPass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Check(tt.lines, CheckOptions{})
			if tt.shouldPass && !result.PassedAll {
				t.Errorf("Expected PassedAll=true for %q", tt.name)
			}
			// Note: Unbalanced brackets might not always trigger an issue
			// depending on implementation
		})
	}
}

// TestCheckWithExcessivePunctuation tests punctuation check
func TestCheckWithExcessivePunctuation(t *testing.T) {
	lines := []string{
		"Hello world!!!!!!!!!!",
		"What???????????????????",
	}

	result := Check(lines, CheckOptions{})

	// Should detect excessive punctuation
	hasIssue := len(result.Issues) > 0
	if !hasIssue {
		t.Log("No punctuation issues detected - implementation may vary")
	}
}

// TestCheckWithGlossary tests glossary mismatch detection
func TestCheckWithGlossary(t *testing.T) {
	lines := []string{
		"The Nakama is strong",
	}

	opts := CheckOptions{
		Glossary: map[string]string{
			"Nakama": "Companheiro",
		},
	}

	result := Check(lines, opts)

	// This tests that the function runs without error
	// The specific behavior depends on implementation
	_ = result
}

// TestAutoFix tests the AutoFix function
func TestAutoFix(t *testing.T) {
	lines := []string{
		"Hello world!!!!!",
		"Test line",
	}

	issues := []Issue{
		{
			LineID:      1,
			IssueType:   "excessive_punctuation",
			AutoFixable: true,
		},
	}

	fixed := AutoFix(lines, issues)

	if len(fixed) != len(lines) {
		t.Errorf("AutoFix returned %d lines, want %d", len(fixed), len(lines))
	}
}

// TestAutoFixNoOp tests AutoFix with non-fixable issues
func TestAutoFixNoOp(t *testing.T) {
	lines := []string{
		"Hello world",
	}

	issues := []Issue{
		{
			LineID:      1,
			IssueType:   "warning",
			AutoFixable: false,
		},
	}

	fixed := AutoFix(lines, issues)

	if fixed[0] != lines[0] {
		t.Errorf("AutoFix modified line when AutoFixable=false")
	}
}

// TestCheckEmptyLines tests Check with empty input
func TestCheckEmptyLines(t *testing.T) {
	result := Check([]string{}, CheckOptions{})

	if !result.PassedAll {
		t.Error("Empty lines should pass")
	}

	if len(result.Issues) != 0 {
		t.Error("Empty lines should have no issues")
	}
}
