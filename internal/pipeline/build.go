package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/enrich"
	"github.com/TobiSchelling/ytdigest/internal/insight"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/rank"
	"github.com/TobiSchelling/ytdigest/internal/render"
	"github.com/TobiSchelling/ytdigest/internal/selector"
	"github.com/TobiSchelling/ytdigest/internal/state"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

// built is a digest ready to render.
type built struct {
	start, end  time.Time
	generatedAt time.Time
	selectedIDs []string // pre-exclusion, committed on success
	kept        []video.Video
	insight     insight.Result
	ranking     rank.Result
}

func (b *built) renderInput(d config.Digest, recipient, unsubscribeTemplate string) render.Input {
	return render.Input{
		DigestID:            d.ID,
		DigestName:          d.Name,
		Recipient:           recipient,
		WindowStart:         b.start,
		WindowEnd:           b.end,
		Ranking:             b.ranking,
		Analyses:            b.insight.PerItem,
		Theme:               b.insight.Theme,
		GeneratedAt:         b.generatedAt,
		UnsubscribeTemplate: unsubscribeTemplate,
	}
}

// build runs fetch through rank. It returns nil when nothing is left to send,
// either because no new video was selected or because exclusion removed all.
func (r *Runner) build(ctx context.Context, d config.Digest, st *state.DigestState, now time.Time, res *DigestResult) *built {
	log := r.log.With().Str("digest", d.ID).Logger()
	b := &built{generatedAt: now}
	b.start, b.end = selector.Window(now, d.Frequency.Period())

	fetched, channels := r.fetch(ctx, log, d)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("%d video(s) from %d/%d channel(s)", len(fetched), channels, len(d.Channels)),
	})

	selected := selector.Select(fetched, st.SeenSet(), b.start, b.end)
	res.Selected = len(selected)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Select",
		Summary: fmt.Sprintf("%d new video(s) since %s", len(selected), b.start.Format(time.RFC3339)),
	})
	if len(selected) == 0 {
		return nil
	}
	b.selectedIDs = selector.IDs(selected)

	enriched, stats := r.deps.Enricher.Enrich(ctx, selected)
	kept, excluded := enrich.Exclude(enriched)
	res.Excluded = excluded
	res.Steps = append(res.Steps, StepResult{
		Name:    "Enrich",
		Summary: fmt.Sprintf("%d kept, %d short-form excluded, %d failed call(s)", len(kept), excluded, stats.Total()),
	})
	if len(kept) == 0 {
		log.Info().Int("excluded", excluded).Msg("all selected videos were short-form")
		return nil
	}
	b.kept = kept

	b.insight = r.deps.Analyzer.Analyze(ctx, kept, d.Name)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Analyze",
		Summary: fmt.Sprintf("%d video(s) analyzed, %d failed call(s)", len(kept), b.insight.Failures),
	})

	b.ranking = rank.RankAndGroup(kept, b.insight.PerItem)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Rank",
		Summary: fmt.Sprintf("%d group(s), %d standout", len(b.ranking.Groups), len(b.ranking.Standout)),
	})
	return b
}

// fetch resolves every channel and reads its feed. Failing channels are
// logged and skipped. It returns the videos and the number of channels read.
func (r *Runner) fetch(ctx context.Context, log zerolog.Logger, d config.Digest) ([]video.Video, int) {
	timeout := r.cfg.Pipeline.Timeouts.Source
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var all []video.Video
	ok := 0
	for _, ref := range d.Channels {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		id, err := r.deps.Source.ResolveChannel(callCtx, ref)
		metrics.ObserveExternalCall("youtube", "resolve", start, err)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("channel", ref).Msg("could not resolve channel")
			continue
		}

		callCtx, cancel = context.WithTimeout(ctx, timeout)
		start = time.Now()
		videos, err := r.deps.Source.RecentVideos(callCtx, id)
		metrics.ObserveExternalCall("youtube", "feed", start, err)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("channel", id).Msg("could not read channel feed")
			continue
		}

		log.Debug().Str("channel", id).Int("videos", len(videos)).Msg("fetched feed")
		all = append(all, videos...)
		ok++
	}
	return all, ok
}
