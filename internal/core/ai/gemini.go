package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiAdapter implements LlmProvider for the Google Gemini REST API.
type GeminiAdapter struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	temperature float64
}

// NewGeminiAdapter creates a new Gemini adapter.
func NewGeminiAdapter(ctx context.Context, apiKey, model string, temperature float64) (*GeminiAdapter, error) {
	return &GeminiAdapter{
		apiKey:      apiKey,
		model:       model,
		baseURL:     "https://generativelanguage.googleapis.com/v1beta",
		client:      &http.Client{Timeout: 120 * time.Second},
		temperature: temperature,
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Translate sends req's units to Gemini and returns the translated texts.
func (g *GeminiAdapter) Translate(ctx context.Context, req LlmRequest) (*LlmResponse, error) {
	started := time.Now()

	payloadJSON, err := encodeUnits(req.Texts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	fullPrompt := req.SystemPrompt + "\n\n" + string(payloadJSON)
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: fullPrompt}}}},
		GenerationConfig: geminiGenConfig{
			Temperature: g.temperature,
		},
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		code := "unknown"
		if apiResp.Error.Code == 429 {
			code = "rate_limit"
		} else if apiResp.Error.Code == 401 || apiResp.Error.Code == 403 {
			code = "invalid_key"
		} else if apiResp.Error.Status == "RESOURCE_EXHAUSTED" {
			code = "token_limit"
		}
		retry := apiResp.Error.Code == 429 || apiResp.Error.Code >= 500
		return nil, &ProviderError{Provider: "gemini", Code: code, Message: apiResp.Error.Message, Retry: retry}
	}

	if len(apiResp.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Code: "content_filtered", Message: "no candidates in response"}
	}

	var content string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		content += part.Text
	}
	if content == "" {
		return nil, &ProviderError{Provider: "gemini", Code: "parse_error", Message: "no text content in response"}
	}

	translations, err := decodeUnits(content)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Code: "parse_error", Message: err.Error()}
	}

	return &LlmResponse{
		Translations:     translations,
		InputTokens:      apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens:     apiResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      apiResp.UsageMetadata.PromptTokenCount + apiResp.UsageMetadata.CandidatesTokenCount,
		ProviderCode:     "gemini",
		ModelName:        g.model,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// ValidateKey checks if the API key is valid.
func (g *GeminiAdapter) ValidateKey(ctx context.Context) bool {
	models, err := g.ListModels(ctx)
	return err == nil && len(models) > 0
}

// ListModels returns available Gemini models.
func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", g.baseURL, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: "gemini", Code: "invalid_key", Message: fmt.Sprintf("invalid API key: %s", string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: "gemini", Code: "http_error", Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), Retry: resp.StatusCode >= 500}
	}

	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	var models []string
	for _, m := range modelsResp.Models {
		if strings.Contains(m.Name, "gemini") {
			models = append(models, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no compatible models found")
	}
	return models, nil
}

// Close is a no-op for the HTTP-based implementation.
func (g *GeminiAdapter) Close() error {
	return nil
}
