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

// OpenAIAdapter implements LlmProvider for the OpenAI chat completions API.
type OpenAIAdapter struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	temperature float64
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey, model string, temperature float64) *OpenAIAdapter {
	return &OpenAIAdapter{
		apiKey:      apiKey,
		model:       model,
		baseURL:     "https://api.openai.com/v1",
		client:      &http.Client{Timeout: 120 * time.Second},
		temperature: temperature,
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
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
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Translate sends req's units to OpenAI and returns the translated texts.
func (o *OpenAIAdapter) Translate(ctx context.Context, req LlmRequest) (*LlmResponse, error) {
	started := time.Now()

	payloadJSON, err := encodeUnits(req.Texts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	messages := []openAIMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: string(payloadJSON)},
	}

	reqBody := openAIRequest{
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

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		code := "unknown"
		retry := false
		if apiResp.Error.Type == "insufficient_quota" || apiResp.Error.Code == "rate_limit_exceeded" {
			code = "rate_limit"
			retry = true
		} else if apiResp.Error.Type == "invalid_request_error" && apiResp.Error.Code == "invalid_api_key" {
			code = "invalid_key"
		} else if apiResp.Error.Code == "context_length_exceeded" {
			code = "token_limit"
		} else if apiResp.Error.Code == "content_policy_violation" {
			code = "content_filtered"
		}
		return nil, &ProviderError{Provider: "openai", Code: code, Message: apiResp.Error.Message, Retry: retry}
	}

	if len(apiResp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Code: "parse_error", Message: "no choices in response"}
	}

	translations, err := decodeUnits(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Code: "parse_error", Message: err.Error()}
	}

	return &LlmResponse{
		Translations:     translations,
		InputTokens:      apiResp.Usage.PromptTokens,
		OutputTokens:     apiResp.Usage.CompletionTokens,
		TotalTokens:      apiResp.Usage.PromptTokens + apiResp.Usage.CompletionTokens,
		ProviderCode:     "openai",
		ModelName:        o.model,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// ValidateKey checks if the API key is valid by making a simple API request.
func (o *OpenAIAdapter) ValidateKey(ctx context.Context) bool {
	models, err := o.ListModels(ctx)
	return err == nil && len(models) > 0
}

// ListModels returns available models from OpenAI.
func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: "openai", Code: "invalid_key", Message: fmt.Sprintf("invalid API key: %s", string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: "openai", Code: "http_error", Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), Retry: resp.StatusCode >= 500}
	}

	var modelsResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	var models []string
	for _, m := range modelsResp.Data {
		if len(m.ID) >= 3 && m.ID[:3] == "gpt" {
			models = append(models, m.ID)
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no compatible GPT models found")
	}
	return models, nil
}

// Close is a no-op for the HTTP-based implementation.
func (o *OpenAIAdapter) Close() error {
	return nil
}
