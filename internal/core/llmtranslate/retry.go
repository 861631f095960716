package llmtranslate

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lsilvatti/modtranslate/internal/core/llmerrors"
	"github.com/lsilvatti/modtranslate/internal/core/obslog"
)

const (
	maxRetries          = 3
	baseBackoffSeconds  = 2
	backoffExponentBase = 2.0
)

// RetryHandler retries a failed LLM call according to the error kind:
// server errors, rate limits and network errors are retried up to
// maxRetries times with exponential backoff (2^attempt*2s), honoring a
// provider's Retry-After hint over the computed delay when present.
// The delay schedule comes from cenkalti/backoff/v4's ExponentialBackOff
// rather than a hand-computed 2^attempt; the wait itself is a
// context-aware select, the same exponential-with-cap shape the teacher's
// connection retry uses.
type RetryHandler struct {
	log       obslog.LoggingService
	baseDelay time.Duration
}

// NewRetryHandler creates a RetryHandler using the standard 2s base delay.
// log may be nil to suppress logging (tests).
func NewRetryHandler(log obslog.LoggingService) *RetryHandler {
	return &RetryHandler{log: log, baseDelay: baseBackoffSeconds * time.Second}
}

// NewRetryHandlerWithBaseDelay creates a RetryHandler with a custom base
// delay, mainly so tests can exercise the full retry budget without
// waiting out real exponential backoff.
func NewRetryHandlerWithBaseDelay(log obslog.LoggingService, baseDelay time.Duration) *RetryHandler {
	return &RetryHandler{log: log, baseDelay: baseDelay}
}

// Do calls fn, retrying it per the rules above. batchID is attached to log
// lines only; cancellation is driven entirely by ctx.
func (h *RetryHandler) Do(ctx context.Context, batchID string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var se *llmerrors.ServiceError
		if !errors.As(lastErr, &se) || !se.IsRetryable() {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		delay := h.delayFor(se, attempt)
		if h.log != nil {
			h.log.Warning("retrying LLM call",
				obslog.F("batchId", batchID),
				obslog.F("attempt", attempt+1),
				obslog.F("kind", string(se.Kind)),
				obslog.F("delay", delay.String()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// delayFor computes the wait before the next attempt: the provider's
// Retry-After hint when given, otherwise 2^attempt * 2s via an
// exponential backoff.Backoff.
func (h *RetryHandler) delayFor(se *llmerrors.ServiceError, attempt int) time.Duration {
	if se.Kind == llmerrors.KindRateLimit && se.RetryAfterSeconds > 0 {
		return time.Duration(se.RetryAfterSeconds) * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.baseDelay
	b.Multiplier = backoffExponentBase
	b.RandomizationFactor = 0
	b.MaxInterval = 60 * time.Second
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
