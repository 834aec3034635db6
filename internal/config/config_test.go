package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Digests) == 0 {
		t.Fatal("expected digests to be populated")
	}
	d := cfg.Digests[0]
	if d.ID != "ai-podcasts" {
		t.Errorf("expected id 'ai-podcasts', got %q", d.ID)
	}
	if d.Frequency != Weekly {
		t.Errorf("expected weekly frequency, got %q", d.Frequency)
	}
	if len(d.Channels) == 0 {
		t.Error("expected channels to be populated")
	}

	if cfg.Summarization.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.Summarization.Provider)
	}
	if cfg.Pipeline.Timeouts.Source != 15*time.Second {
		t.Errorf("expected 15s source timeout, got %v", cfg.Pipeline.Timeouts.Source)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
digests:
  - name: Tech News
    frequency: BiWeekly
    channels: [https://www.youtube.com/@verge]
  - name: Daily Stuff
summarization:
  provider: openai
pipeline:
  timeouts:
    generate: 90s
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Digests[0].ID != "Tech News" {
		t.Errorf("expected id to default to name, got %q", cfg.Digests[0].ID)
	}
	if cfg.Digests[0].Frequency != Biweekly {
		t.Errorf("expected normalized biweekly, got %q", cfg.Digests[0].Frequency)
	}
	if cfg.Digests[1].Frequency != Daily {
		t.Errorf("expected missing frequency to default to daily, got %q", cfg.Digests[1].Frequency)
	}
	if cfg.Summarization.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Summarization.Provider)
	}
	if cfg.Pipeline.Timeouts.Generate != 90*time.Second {
		t.Errorf("expected 90s generate timeout, got %v", cfg.Pipeline.Timeouts.Generate)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Pipeline.Timeouts.Deliver != 30*time.Second {
		t.Errorf("expected default deliver timeout, got %v", cfg.Pipeline.Timeouts.Deliver)
	}
	if cfg.Sources.YouTube.MaxComments != 20 {
		t.Errorf("expected default max_comments 20, got %d", cfg.Sources.YouTube.MaxComments)
	}
}

func TestFrequencyPeriod(t *testing.T) {
	if Daily.Period() != 24*time.Hour {
		t.Errorf("daily: got %v", Daily.Period())
	}
	if Biweekly.Period() != 72*time.Hour {
		t.Errorf("biweekly: got %v", Biweekly.Period())
	}
	if Weekly.Period() != 168*time.Hour {
		t.Errorf("weekly: got %v", Weekly.Period())
	}
	if Frequency("hourly").Valid() {
		t.Error("expected hourly to be invalid")
	}
}

func TestFindDigest(t *testing.T) {
	cfg := &Config{Digests: []Digest{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
	}}

	if d, ok := cfg.FindDigest("b"); !ok || d.Name != "Beta" {
		t.Errorf("expected lookup by id, got %+v %v", d, ok)
	}
	if d, ok := cfg.FindDigest("alpha"); !ok || d.ID != "a" {
		t.Errorf("expected lookup by name, got %+v %v", d, ok)
	}
	if _, ok := cfg.FindDigest("gamma"); ok {
		t.Error("expected unknown digest to be absent")
	}
}

func TestRecipientOverrides(t *testing.T) {
	s := Secrets{RecipientsJSON: `{"a": ["secret@example.com"]}`}
	overrides, err := s.RecipientOverrides()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := &Config{Digests: []Digest{
		{ID: "a", Recipients: []string{"public@example.com"}},
		{ID: "b", Recipients: []string{"kept@example.com"}},
	}}
	cfg.ApplyRecipientOverrides(overrides)

	if got := cfg.Digests[0].Recipients; len(got) != 1 || got[0] != "secret@example.com" {
		t.Errorf("expected override to win, got %v", got)
	}
	if got := cfg.Digests[1].Recipients; len(got) != 1 || got[0] != "kept@example.com" {
		t.Errorf("expected untouched recipients, got %v", got)
	}

	if _, err := (Secrets{RecipientsJSON: "{nope"}).RecipientOverrides(); err == nil {
		t.Error("expected error for malformed DIGEST_RECIPIENTS")
	}
}

func TestLoadSecretsFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("YOUTUBE_API_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("YOUTUBE_API_KEY", "")
	os.Unsetenv("YOUTUBE_API_KEY")
	t.Setenv("SMTP_USERNAME", "bot@example.com")

	s, err := LoadSecrets(envFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.YouTubeAPIKey != "from-file" {
		t.Errorf("expected key from .env, got %q", s.YouTubeAPIKey)
	}
	if s.SMTPUsername != "bot@example.com" {
		t.Errorf("expected SMTP username from environment, got %q", s.SMTPUsername)
	}

	if _, err := LoadSecrets(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should not be an error, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Digests) == 0 {
		t.Error("expected digests to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
