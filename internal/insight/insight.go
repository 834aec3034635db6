// Package insight derives a digest-wide theme summary and per-video
// analyses from a text-generation provider. Every failure degrades to a
// placeholder; nothing here aborts a digest.
package insight

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ytdigest/internal/llm"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

// Placeholder themes.
const (
	ThemeUnavailable = "Theme analysis unavailable"
	ThemeNoProvider  = "AI analysis unavailable (no provider configured)"
)

const (
	maxTopics             = 5
	themeDescriptionChars = 500
	themeComments         = 5
	itemDescriptionChars  = 1500
	itemCaptionChars      = 2000
	itemComments          = 10
)

// Options tunes generation.
type Options struct {
	Concurrency    int
	Timeout        time.Duration // per call
	ThemeMaxTokens int
	ItemMaxTokens  int
}

// Result is the output of one Analyze call. PerItem has an entry for every
// input video.
type Result struct {
	Theme    string
	PerItem  map[string]video.Analysis
	Failures int
}

// Generator produces insights. A nil provider is valid and yields placeholders.
type Generator struct {
	provider llm.Provider
	opts     Options
	log      zerolog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, opts Options, log zerolog.Logger) *Generator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.ThemeMaxTokens <= 0 {
		opts.ThemeMaxTokens = 500
	}
	if opts.ItemMaxTokens <= 0 {
		opts.ItemMaxTokens = 300
	}
	return &Generator{provider: provider, opts: opts, log: log}
}

// Analyze generates the theme summary and one analysis per video.
func (g *Generator) Analyze(ctx context.Context, videos []video.Video, digestName string) Result {
	res := Result{PerItem: make(map[string]video.Analysis, len(videos))}
	for _, v := range videos {
		res.PerItem[v.ID] = video.DefaultAnalysis()
	}

	if g.provider == nil {
		res.Theme = ThemeNoProvider
		return res
	}
	if len(videos) == 0 {
		res.Theme = ThemeUnavailable
		return res
	}

	var failures atomic.Int64
	analyses := make([]video.Analysis, len(videos))

	eg := new(errgroup.Group)
	eg.SetLimit(g.opts.Concurrency)

	eg.Go(func() error {
		theme, err := g.theme(ctx, videos, digestName)
		if err != nil {
			g.log.Warn().Err(err).Str("digest", digestName).Msg("theme analysis failed")
			failures.Add(1)
			theme = ThemeUnavailable
		}
		res.Theme = theme
		return nil
	})

	for i, v := range videos {
		eg.Go(func() error {
			a, err := g.analyzeVideo(ctx, v)
			if err != nil {
				g.log.Warn().Err(err).Str("video", v.ID).Msg("video analysis failed")
				failures.Add(1)
				a = video.DefaultAnalysis()
			}
			analyses[i] = a
			return nil
		})
	}
	eg.Wait()

	for i, v := range videos {
		res.PerItem[v.ID] = analyses[i]
	}
	res.Failures = int(failures.Load())
	return res
}

func (g *Generator) theme(ctx context.Context, videos []video.Video, digestName string) (string, error) {
	var sb strings.Builder
	for _, v := range videos {
		fmt.Fprintf(&sb, "\nVideo: %s\nChannel: %s\nViews: %s\nLikes: %s\nComments count: %s\nDescription excerpt: %s\nSample comments: %s\n",
			v.Title, v.ChannelTitle,
			video.FormatCount(v.Views), video.FormatCount(v.Likes), video.FormatCount(v.CommentCount),
			truncate(v.Description, themeDescriptionChars),
			joinFirst(v.SampleComments, themeComments))
	}

	prompt := fmt.Sprintf(themePrompt, digestName, sb.String())

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Generate(callCtx, prompt, g.opts.ThemeMaxTokens)
	metrics.ObserveExternalCall("llm", "theme", start, err)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty theme response")
	}
	return text, nil
}

type rawAnalysis struct {
	Guests    []string `json:"guests"`
	Topics    []string `json:"topics"`
	Sentiment string   `json:"sentiment"`
	Category  string   `json:"category"`
	Summary   string   `json:"summary"`
}

func (g *Generator) analyzeVideo(ctx context.Context, v video.Video) (video.Analysis, error) {
	categories := make([]string, len(video.Categories))
	for i, c := range video.Categories {
		categories[i] = string(c)
	}

	prompt := fmt.Sprintf(videoPrompt,
		v.Title, v.ChannelTitle,
		truncate(v.Description, itemDescriptionChars),
		orNone(truncate(v.Captions, itemCaptionChars)),
		orNone(joinFirst(v.SampleComments, itemComments)),
		strings.Join(categories, ", "))

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Generate(callCtx, prompt, g.opts.ItemMaxTokens)
	metrics.ObserveExternalCall("llm", "video", start, err)
	if err != nil {
		return video.Analysis{}, err
	}

	var raw rawAnalysis
	if err := llm.ExtractJSONObject(text, &raw); err != nil {
		return video.Analysis{}, err
	}
	return normalize(raw), nil
}

func normalize(raw rawAnalysis) video.Analysis {
	return video.Analysis{
		Topics:    cleanList(raw.Topics, maxTopics),
		Guests:    cleanList(raw.Guests, 0),
		Sentiment: video.ParseSentiment(raw.Sentiment),
		Category:  video.ParseCategory(raw.Category),
		Summary:   strings.TrimSpace(raw.Summary),
	}
}

// cleanList trims entries, drops blanks and caps the length when limit > 0.
func cleanList(in []string, limit int) []string {
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinFirst(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, "; ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
