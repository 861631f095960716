package validation

import "github.com/lsilvatti/modtranslate/internal/core/linter"

// LinterValidationService is the default ValidationService, adapting the
// single-batch linter.Check call into the one-unit-at-a-time contract
// this package's Handler uses.
type LinterValidationService struct {
	SourceLang string
	TargetLang string
}

// NewLinterValidationService creates a LinterValidationService for the
// given language pair.
func NewLinterValidationService(sourceLang, targetLang string) *LinterValidationService {
	return &LinterValidationService{SourceLang: sourceLang, TargetLang: targetLang}
}

// Check runs the inline-tag, source-residue, punctuation and glossary
// checks on one translated unit.
func (s *LinterValidationService) Check(sourceText, translatedText string, glossary map[string]string) Result {
	opts := linter.CheckOptions{
		SourceLang: s.SourceLang,
		TargetLang: s.TargetLang,
		Glossary:   glossary,
	}
	lr := linter.Check([]string{translatedText}, opts)

	result := Result{PassedAll: lr.PassedAll, Issues: make([]Issue, 0, len(lr.Issues))}
	for _, issue := range lr.Issues {
		result.Issues = append(result.Issues, Issue{
			Severity:    string(issue.Severity),
			IssueType:   issue.IssueType,
			Content:     issue.Content,
			Suggestion:  issue.Suggestion,
			AutoFixable: issue.AutoFixable,
		})
	}
	return result
}
