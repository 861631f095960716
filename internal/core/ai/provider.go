// Package ai adapts third-party LLM HTTP APIs to the LlmProvider contract
// the orchestration core depends on. Each concrete adapter owns its own
// wire format and translates provider-specific failures into the shared
// llmerrors taxonomy so retry and split logic never has to know which
// provider is underneath.
package ai

import (
	"context"
	"fmt"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/llmerrors"
)

// LlmRequest is one call's worth of work handed to a provider: a batch of
// units keyed by id so responses can be matched back up regardless of the
// order the provider returns them in.
type LlmRequest struct {
	RequestID      string
	Texts          map[domain.UnitID]string
	TargetLanguage string
	SystemPrompt   string
	ModelName      string
	ProviderCode   string
	GameContext    string
	GlossaryTerms  map[string]string
	MaxTokens      int
}

// LlmResponse is a provider's reply to an LlmRequest.
type LlmResponse struct {
	Translations     map[domain.UnitID]string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	ProviderCode     string
	ModelName        string
	ProcessingTimeMs int64
}

// LlmProvider is the interface every concrete adapter implements.
type LlmProvider interface {
	// Translate sends req's units for translation and returns them keyed
	// by the same UnitID the caller supplied.
	Translate(ctx context.Context, req LlmRequest) (*LlmResponse, error)

	// ValidateKey checks if the configured API key/endpoint is usable.
	ValidateKey(ctx context.Context) bool

	// ListModels returns the models available for this provider.
	ListModels(ctx context.Context) ([]string, error)
}

// ProviderInfo describes a provider for display/configuration purposes.
type ProviderInfo struct {
	Name        string
	Type        string // cloud or local
	RequiresKey bool
	Endpoint    string
}

// ProviderError is the transport-level error a concrete adapter raises.
// Adapters set Code to a provider-specific string; Classify maps it to the
// shared llmerrors.ErrorKind taxonomy the retry handler and splitter use.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Retry    bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// Classify converts a ProviderError into a *llmerrors.ServiceError.
func (e *ProviderError) Classify() *llmerrors.ServiceError {
	kind := llmerrors.KindServer
	switch e.Code {
	case "rate_limit":
		kind = llmerrors.KindRateLimit
	case "network_error":
		kind = llmerrors.KindNetwork
	case "invalid_key", "unauthorized":
		kind = llmerrors.KindServer
	case "token_limit", "context_length_exceeded":
		kind = llmerrors.KindTokenLimit
	case "content_filtered", "content_policy":
		kind = llmerrors.KindContentFiltered
	case "parse_error":
		kind = llmerrors.KindParse
	}
	if e.Retry && kind != llmerrors.KindTokenLimit && kind != llmerrors.KindContentFiltered && kind != llmerrors.KindParse {
		if kind != llmerrors.KindRateLimit && kind != llmerrors.KindNetwork {
			kind = llmerrors.KindServer
		}
	}
	return &llmerrors.ServiceError{
		Kind:     kind,
		Provider: e.Provider,
		Message:  e.Message,
	}
}

// IsRateLimitError reports whether err is a rate-limit ProviderError.
func IsRateLimitError(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Code == "rate_limit"
	}
	return false
}

// IsAuthError reports whether err is an authentication ProviderError.
func IsAuthError(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Code == "invalid_key" || provErr.Code == "unauthorized"
	}
	return false
}
