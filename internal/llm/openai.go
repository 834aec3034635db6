package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// OpenAIProvider calls the Chat Completions API.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewOpenAIProvider(model, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com",
		client:  newHTTPClient(),
	}
}

func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != "" && o.Model != ""
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !o.IsConfigured() {
		return "", ErrNotConfigured
	}

	req := openAIRequest{
		Model:       o.Model,
		Messages:    userMessage(prompt),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}

	var resp openAIResponse
	if err := postJSON(ctx, o.client, o.BaseURL+"/v1/chat/completions", headers, req, &resp); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
