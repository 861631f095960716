package llmtranslate

import (
	"errors"

	"github.com/lsilvatti/modtranslate/internal/core/llmerrors"
)

// RecoveryAction is what the splitter should do after a batch attempt
// fails or desyncs.
type RecoveryAction string

const (
	// ActionSplit means the batch should be split in half and each half
	// retried independently.
	ActionSplit RecoveryAction = "split"
	// ActionRetryWithMoreTokens means the same batch should be retried
	// once more with a larger max_tokens budget.
	ActionRetryWithMoreTokens RecoveryAction = "retryWithMoreTokens"
	// ActionSkipUnit means a single unit was filtered by the provider and
	// should be recorded as skipped rather than retried.
	ActionSkipUnit RecoveryAction = "skipUnit"
	// ActionFatal means recovery is exhausted; the batch fails outright.
	ActionFatal RecoveryAction = "fatal"
)

// ErrorRecovery classifies a failed translation attempt into the action
// the splitter should take next.
type ErrorRecovery struct{}

// NewErrorRecovery creates an ErrorRecovery classifier.
func NewErrorRecovery() *ErrorRecovery {
	return &ErrorRecovery{}
}

// Classify decides the recovery action for err, given how many units were
// in the attempted batch.
func (r *ErrorRecovery) Classify(err error, unitCount int) RecoveryAction {
	if err == nil {
		return ActionFatal
	}

	if unitCount == 1 {
		if llmerrors.IsContentFiltered(err) {
			return ActionSkipUnit
		}
		if llmerrors.IsTokenLimit(err) {
			return ActionRetryWithMoreTokens
		}
		return ActionFatal
	}

	var se *llmerrors.ServiceError
	if errors.As(err, &se) {
		switch se.Kind {
		case llmerrors.KindTokenLimit:
			return ActionSplit
		case llmerrors.KindParse:
			return ActionSplit
		case llmerrors.KindContentFiltered:
			return ActionSplit
		case llmerrors.KindServer, llmerrors.KindRateLimit, llmerrors.KindNetwork:
			return ActionRetryWithMoreTokens
		}
	}

	// Desync (unit count mismatch reported by the caller as a plain
	// error) and anything unclassified: splitting isolates the bad unit.
	return ActionSplit
}
