package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalLLMAdapter implements LlmProvider for local LLM servers (Ollama, LMStudio).
type LocalLLMAdapter struct {
	endpoint    string
	model       string
	client      *http.Client
	temperature float64
}

// NewLocalLLMAdapter creates a new local LLM adapter.
func NewLocalLLMAdapter(endpoint, model string, temperature float64) *LocalLLMAdapter {
	return &LocalLLMAdapter{
		endpoint:    endpoint,
		model:       model,
		client:      &http.Client{Timeout: 300 * time.Second},
		temperature: temperature,
	}
}

type localLLMRequest struct {
	Model       string            `json:"model"`
	Messages    []localLLMMessage `json:"messages"`
	Stream      bool              `json:"stream"`
	Temperature float64           `json:"temperature"`
}

type localLLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localLLMResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Translate sends req's units to the local inference server.
func (l *LocalLLMAdapter) Translate(ctx context.Context, req LlmRequest) (*LlmResponse, error) {
	started := time.Now()

	payloadJSON, err := encodeUnits(req.Texts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	messages := []localLLMMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: string(payloadJSON)},
	}

	reqBody := localLLMRequest{
		Model:       l.model,
		Messages:    messages,
		Stream:      false,
		Temperature: l.temperature,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := l.endpoint + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "local", Code: "network_error", Message: fmt.Sprintf("failed to connect to %s: %v", l.endpoint, err), Retry: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp localLLMResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != "" {
		return nil, &ProviderError{Provider: "local", Code: "inference_error", Message: apiResp.Error}
	}

	translations, err := decodeUnits(apiResp.Message.Content)
	if err != nil {
		return nil, &ProviderError{Provider: "local", Code: "parse_error", Message: err.Error()}
	}

	return &LlmResponse{
		Translations:     translations,
		InputTokens:      apiResp.PromptEvalCount,
		OutputTokens:     apiResp.EvalCount,
		TotalTokens:      apiResp.PromptEvalCount + apiResp.EvalCount,
		ProviderCode:     "local",
		ModelName:        l.model,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// ValidateKey checks if the local server is reachable.
func (l *LocalLLMAdapter) ValidateKey(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", l.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ListModels returns available models from the local server.
func (l *LocalLLMAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", l.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "local", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]string, len(tagsResp.Models))
	for i, m := range tagsResp.Models {
		models[i] = m.Name
	}
	return models, nil
}
