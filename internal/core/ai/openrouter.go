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

// OpenRouterAdapter implements LlmProvider for the OpenRouter API.
type OpenRouterAdapter struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	temperature float64
}

// NewOpenRouterAdapter creates a new OpenRouter adapter.
func NewOpenRouterAdapter(apiKey, model string, temperature float64) *OpenRouterAdapter {
	return &OpenRouterAdapter{
		apiKey:      apiKey,
		model:       model,
		baseURL:     "https://openrouter.ai/api/v1",
		client:      &http.Client{Timeout: 120 * time.Second},
		temperature: temperature,
	}
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Translate sends req's units to OpenRouter and returns the translated texts.
func (o *OpenRouterAdapter) Translate(ctx context.Context, req LlmRequest) (*LlmResponse, error) {
	started := time.Now()

	payloadJSON, err := encodeUnits(req.Texts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	messages := []openRouterMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: string(payloadJSON)},
	}

	reqBody := openRouterRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temperature,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/lsilvatti/modtranslate")
	httpReq.Header.Set("X-Title", "modtranslate")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "openrouter", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp openRouterResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		code := apiResp.Error.Code
		if code == "" {
			code = "unknown"
		}
		retry := code == "rate_limit" || code == "timeout" || resp.StatusCode >= 500
		return nil, &ProviderError{Provider: "openrouter", Code: code, Message: apiResp.Error.Message, Retry: retry}
	}

	if len(apiResp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openrouter", Code: "parse_error", Message: "no choices in response"}
	}

	translations, err := decodeUnits(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, &ProviderError{Provider: "openrouter", Code: "parse_error", Message: err.Error()}
	}

	return &LlmResponse{
		Translations:     translations,
		InputTokens:      apiResp.Usage.PromptTokens,
		OutputTokens:     apiResp.Usage.CompletionTokens,
		TotalTokens:      apiResp.Usage.PromptTokens + apiResp.Usage.CompletionTokens,
		ProviderCode:     "openrouter",
		ModelName:        o.model,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// ValidateKey checks if the API key is valid.
func (o *OpenRouterAdapter) ValidateKey(ctx context.Context) bool {
	models, err := o.ListModels(ctx)
	return err == nil && len(models) > 0
}

// ListModels returns available models from OpenRouter.
func (o *OpenRouterAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "openrouter", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var modelsResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]string, len(modelsResp.Data))
	for i, m := range modelsResp.Data {
		models[i] = m.ID
	}
	return models, nil
}
