// Package enrich attaches engagement and content metadata to selected
// videos and filters out short-form uploads.
package enrich

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/source"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

// Source is the subset of the YouTube client used for enrichment.
type Source interface {
	HasAPIKey() bool
	VideoDetails(ctx context.Context, ids []string) (map[string]source.Details, error)
	Comments(ctx context.Context, videoID string, max int) ([]string, error)
	Captions(ctx context.Context, videoID, lang string) (string, error)
	PageDescription(ctx context.Context, videoID string) (string, error)
}

// Options controls what is fetched and how.
type Options struct {
	MaxComments     int
	Captions        bool
	CaptionLanguage string
	Concurrency     int
	Timeout         time.Duration // per external call
}

// Stats counts the enrichment calls that failed. Failures never abort
// enrichment; the affected fields are left at their zero values.
type Stats struct {
	Details  int
	Comments int
	Captions int
	Pages    int
}

// Total returns the number of failed calls.
func (s Stats) Total() int {
	return s.Details + s.Comments + s.Captions + s.Pages
}

// Enricher fills in video details, sample comments and captions.
type Enricher struct {
	src  Source
	opts Options
	log  zerolog.Logger
}

// New creates an Enricher.
func New(src Source, opts Options, log zerolog.Logger) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Enricher{src: src, opts: opts, log: log}
}

// Enrich returns a copy of videos with metadata attached, in the same order.
func (e *Enricher) Enrich(ctx context.Context, videos []video.Video) ([]video.Video, Stats) {
	out := make([]video.Video, len(videos))
	copy(out, videos)
	if len(out) == 0 {
		return out, Stats{}
	}

	var stats Stats
	hasKey := e.src.HasAPIKey()
	if hasKey {
		stats.Details = e.attachDetails(ctx, out)
	}

	var comments, captions, pages atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Concurrency)

	for i := range out {
		v := &out[i]
		g.Go(func() error {
			if !hasKey {
				if !e.attachPageDescription(ctx, v) {
					pages.Add(1)
				}
			}
			if hasKey && e.opts.MaxComments > 0 {
				if !e.attachComments(ctx, v) {
					comments.Add(1)
				}
			}
			if e.opts.Captions {
				if !e.attachCaptions(ctx, v) {
					captions.Add(1)
				}
			}
			v.IsShort = IsShortDuration(v.Duration)
			return nil
		})
	}
	g.Wait()

	stats.Comments = int(comments.Load())
	stats.Captions = int(captions.Load())
	stats.Pages = int(pages.Load())
	return out, stats
}

// attachDetails returns the number of videos left without details.
func (e *Enricher) attachDetails(ctx context.Context, videos []video.Video) int {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	details, err := e.src.VideoDetails(callCtx, ids)
	metrics.ObserveExternalCall("youtube", "details", start, err)
	if err != nil {
		e.log.Warn().Err(err).Int("videos", len(ids)).Msg("video details failed")
	}

	missing := 0
	for i := range videos {
		d, ok := details[videos[i].ID]
		if !ok {
			missing++
			continue
		}
		v := &videos[i]
		v.Views = d.Views
		v.Likes = d.Likes
		v.CommentCount = d.CommentCount
		v.Description = d.Description
		v.Tags = d.Tags
		v.Duration = d.Duration
		if v.Title == "" {
			v.Title = d.Title
		}
	}
	return missing
}

func (e *Enricher) attachComments(ctx context.Context, v *video.Video) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	comments, err := e.src.Comments(callCtx, v.ID, e.opts.MaxComments)
	metrics.ObserveExternalCall("youtube", "comments", start, err)
	if err != nil {
		e.log.Debug().Err(err).Str("video", v.ID).Msg("comments unavailable")
		return false
	}
	v.SampleComments = comments
	return true
}

func (e *Enricher) attachCaptions(ctx context.Context, v *video.Video) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := e.src.Captions(callCtx, v.ID, e.opts.CaptionLanguage)
	metrics.ObserveExternalCall("youtube", "captions", start, err)
	if err != nil {
		e.log.Debug().Err(err).Str("video", v.ID).Msg("captions unavailable")
		return false
	}
	v.Captions = text
	return true
}

func (e *Enricher) attachPageDescription(ctx context.Context, v *video.Video) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	desc, err := e.src.PageDescription(callCtx, v.ID)
	metrics.ObserveExternalCall("youtube", "watch_page", start, err)
	if err != nil {
		e.log.Debug().Err(err).Str("video", v.ID).Msg("watch page unavailable")
		return false
	}
	v.Description = desc
	return true
}

// Exclude drops short-form videos: those flagged IsShort and those whose URL
// is a /shorts/ link. It returns the kept videos and the number dropped.
func Exclude(videos []video.Video) ([]video.Video, int) {
	kept := make([]video.Video, 0, len(videos))
	for _, v := range videos {
		if v.IsShort || strings.Contains(v.URL, "/shorts/") {
			continue
		}
		kept = append(kept, v)
	}
	return kept, len(videos) - len(kept)
}
