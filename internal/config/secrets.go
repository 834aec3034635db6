package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets are credentials taken from the environment (optionally seeded from
// a .env file). They are passed explicitly into the clients that need them.
type Secrets struct {
	YouTubeAPIKey   string `envconfig:"YOUTUBE_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	SMTPUsername    string `envconfig:"SMTP_USERNAME"`
	SMTPPassword    string `envconfig:"SMTP_PASSWORD"`

	// RecipientsJSON maps digest id to recipient list, e.g.
	// {"ai-weekly": ["a@example.com"]}. It takes priority over the config file.
	RecipientsJSON string `envconfig:"DIGEST_RECIPIENTS"`
}

// LoadSecrets reads envFile (if present) into the process environment and
// then processes the environment into Secrets. Variables already set in the
// environment win over the file.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("processing environment: %w", err)
	}
	return s, nil
}

// RecipientOverrides decodes RecipientsJSON. An empty value yields nil.
func (s Secrets) RecipientOverrides() (map[string][]string, error) {
	if s.RecipientsJSON == "" {
		return nil, nil
	}
	var m map[string][]string
	if err := json.Unmarshal([]byte(s.RecipientsJSON), &m); err != nil {
		return nil, fmt.Errorf("parsing DIGEST_RECIPIENTS: %w", err)
	}
	return m, nil
}
