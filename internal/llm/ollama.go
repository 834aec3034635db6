package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsConfigured asks the server whether the model has been pulled. An
// untagged model name matches any tag of that model.
func (o *OllamaProvider) IsConfigured() bool {
	if o.BaseURL == "" || o.Model == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var tags ollamaTags
	if err := getJSON(ctx, o.client, o.BaseURL+"/api/tags", &tags); err != nil {
		return false
	}

	for _, m := range tags.Models {
		if m.Name == o.Model {
			return true
		}
		if !strings.Contains(o.Model, ":") && strings.HasPrefix(m.Name, o.Model+":") {
			return true
		}
	}
	return false
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		NumPredict  int     `json:"num_predict"`
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := ollamaChatRequest{Model: o.Model, Messages: userMessage(prompt)}
	req.Options.NumPredict = maxTokens
	req.Options.Temperature = temperature

	var resp struct {
		Message chatMessage `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return resp.Message.Content, nil
}
