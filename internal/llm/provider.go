// Package llm wraps the text-generation services used for digest insights.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by Generate on a provider without credentials.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Options selects and configures a provider.
type Options struct {
	Provider        string // anthropic | openai | ollama
	AnthropicModel  string
	AnthropicAPIKey string
	OpenAIModel     string
	OpenAIAPIKey    string
	OllamaModel     string
	OllamaURL       string
}

// CreateProvider returns the configured provider, falling back to whichever
// other hosted provider has a key. It returns nil when none is usable.
func CreateProvider(opts Options, log zerolog.Logger) Provider {
	anthropic := NewAnthropicProvider(opts.AnthropicModel, opts.AnthropicAPIKey)
	openai := NewOpenAIProvider(opts.OpenAIModel, opts.OpenAIAPIKey)

	var order []Provider
	switch strings.ToLower(opts.Provider) {
	case "ollama":
		order = []Provider{NewOllamaProvider(opts.OllamaModel, opts.OllamaURL), anthropic, openai}
	case "openai":
		order = []Provider{openai, anthropic}
	default:
		order = []Provider{anthropic, openai}
	}

	for _, p := range order {
		if p.IsConfigured() {
			log.Info().Str("provider", providerName(p)).Msg("using LLM provider")
			return p
		}
	}

	log.Warn().Msg("no LLM provider available; set ANTHROPIC_API_KEY or OPENAI_API_KEY, or run Ollama")
	return nil
}

func providerName(p Provider) string {
	switch v := p.(type) {
	case *AnthropicProvider:
		return "anthropic/" + v.Model
	case *OpenAIProvider:
		return "openai/" + v.Model
	case *OllamaProvider:
		return "ollama/" + v.Model
	}
	return fmt.Sprintf("%T", p)
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getJSON decodes a 200 response from url into out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func userMessage(prompt string) []chatMessage {
	return []chatMessage{{Role: "user", Content: prompt}}
}

// Sampling temperature for the chat-style providers.
const temperature = 0.3

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
