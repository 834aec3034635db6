package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Digests       []Digest      `yaml:"digests"`
	Sources       Sources       `yaml:"sources"`
	Summarization Summarization `yaml:"summarization"`
	Mail          Mail          `yaml:"mail"`
	Pipeline      Pipeline      `yaml:"pipeline"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
	Metrics       Metrics       `yaml:"metrics"`

	// Secrets are never read from YAML; see LoadSecrets.
	Secrets Secrets `yaml:"-"`
}

// Digest is one monitoring target: a channel set, its subscribers and a cadence.
type Digest struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Channels   []string  `yaml:"channels"`
	Recipients []string  `yaml:"recipients"`
	Frequency  Frequency `yaml:"frequency"`
}

// Frequency is how often a digest is sent.
type Frequency string

const (
	Daily    Frequency = "daily"
	Biweekly Frequency = "biweekly"
	Weekly   Frequency = "weekly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Biweekly, Weekly:
		return true
	}
	return false
}

// Period is both the minimum interval between runs and the publish-time
// lookback window of a run. Biweekly means twice a week.
func (f Frequency) Period() time.Duration {
	switch f {
	case Biweekly:
		return 3 * 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type Sources struct {
	YouTube YouTube `yaml:"youtube"`
}

type YouTube struct {
	APIBaseURL      string `yaml:"api_base_url"`
	WebBaseURL      string `yaml:"web_base_url"`
	MaxComments     int    `yaml:"max_comments"`
	FetchCaptions   bool   `yaml:"fetch_captions"`
	CaptionLanguage string `yaml:"caption_language"`
}

type Summarization struct {
	Provider       string `yaml:"provider"`
	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	ThemeMaxTokens int    `yaml:"theme_max_tokens"`
	ItemMaxTokens  int    `yaml:"item_max_tokens"`
}

type Mail struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	SSL            bool   `yaml:"ssl"`
	From           string `yaml:"from"`
	UnsubscribeURL string `yaml:"unsubscribe_url"`
}

type Pipeline struct {
	Concurrency int      `yaml:"concurrency"`
	Timeouts    Timeouts `yaml:"timeouts"`
}

type Timeouts struct {
	Source   time.Duration `yaml:"source"`
	Generate time.Duration `yaml:"generate"`
	Deliver  time.Duration `yaml:"deliver"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

// ConfigDir returns the XDG config directory for ytdigest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "ytdigest")
}

// DataDir returns the XDG data directory for ytdigest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "ytdigest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/ytdigest/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'ytdigest init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			YouTube: YouTube{
				APIBaseURL:      "https://www.googleapis.com",
				WebBaseURL:      "https://www.youtube.com",
				MaxComments:     20,
				CaptionLanguage: "en",
			},
		},
		Summarization: Summarization{
			Provider:       "anthropic",
			AnthropicModel: "claude-sonnet-4-20250514",
			OpenAIModel:    "gpt-4o-mini",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			ThemeMaxTokens: 500,
			ItemMaxTokens:  300,
		},
		Mail: Mail{
			Host: "smtp.gmail.com",
			Port: 465,
			SSL:  true,
		},
		Pipeline: Pipeline{
			Concurrency: 4,
			Timeouts: Timeouts{
				Source:   15 * time.Second,
				Generate: 60 * time.Second,
				Deliver:  30 * time.Second,
			},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Digests {
		d := &cfg.Digests[i]
		if d.ID == "" {
			d.ID = d.Name
		}
		d.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(d.Frequency))))
		if d.Frequency == "" {
			d.Frequency = Daily
		}
	}

	return cfg, nil
}

// FindDigest looks a digest up by id first, then by display name.
func (c *Config) FindDigest(ref string) (Digest, bool) {
	for _, d := range c.Digests {
		if d.ID == ref {
			return d, true
		}
	}
	for _, d := range c.Digests {
		if strings.EqualFold(d.Name, ref) {
			return d, true
		}
	}
	return Digest{}, false
}

// ApplyRecipientOverrides replaces configured recipients with the secret
// mapping for every digest id present in overrides.
func (c *Config) ApplyRecipientOverrides(overrides map[string][]string) {
	for i := range c.Digests {
		if rcpts, ok := overrides[c.Digests[i].ID]; ok {
			c.Digests[i].Recipients = rcpts
		}
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
