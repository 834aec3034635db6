// Package pipeline schedules digests and runs each one end to end:
// fetch, select, enrich, analyze, rank, render, deliver, commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/enrich"
	"github.com/TobiSchelling/ytdigest/internal/insight"
	"github.com/TobiSchelling/ytdigest/internal/mail"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/render"
	"github.com/TobiSchelling/ytdigest/internal/state"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

// Configuration errors. A digest failing one of these is skipped without
// touching its state.
var (
	ErrNoRecipients  = errors.New("digest has no recipients")
	ErrNoChannels    = errors.New("digest has no channels")
	ErrUnknownDigest = errors.New("unknown digest")

	ErrInvalidFrequency = errors.New("digest frequency must be daily, biweekly or weekly")
)

// OutcomeNotDue is reported for digests skipped by the schedule. It is never
// persisted.
const OutcomeNotDue state.Outcome = "not_due"

// Source fetches channel uploads.
type Source interface {
	ResolveChannel(ctx context.Context, ref string) (string, error)
	RecentVideos(ctx context.Context, channelID string) ([]video.Video, error)
}

// Enricher attaches metadata to selected videos.
type Enricher interface {
	Enrich(ctx context.Context, videos []video.Video) ([]video.Video, enrich.Stats)
}

// Analyzer produces the theme summary and per-video analyses.
type Analyzer interface {
	Analyze(ctx context.Context, videos []video.Video, digestName string) insight.Result
}

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, m mail.Message) error
}

// Store persists digest state and run history.
type Store interface {
	LoadState(digestID string) (*state.DigestState, error)
	CommitState(digestID string, lastRun time.Time, newIDs []string) error
	InsertRun(r state.Run) error
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Store    Store
	Source   Source
	Enricher Enricher
	Analyzer Analyzer
	Sender   Sender
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// DigestResult describes what happened to one digest in one invocation.
type DigestResult struct {
	DigestID  string
	Name      string
	RunID     string
	Outcome   state.Outcome
	Selected  int
	Excluded  int
	Delivered int
	Failed    int
	Steps     []StepResult
	Err       error

	// Document is the recipient-neutral rendering, set whenever a digest
	// was rendered.
	Document *render.Document
}

// Runner executes digests.
type Runner struct {
	cfg  *config.Config
	deps Deps
	log  zerolog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
	// DryRun renders digests without delivering them or committing state.
	DryRun bool
}

// New creates a Runner.
func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:  cfg,
		deps: deps,
		log:  log,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

// Due reports whether a digest should run: when forced, when it has never
// run, or when at least one frequency period has elapsed since lastRun.
func Due(freq config.Frequency, lastRun *time.Time, now time.Time, forced bool) bool {
	if forced || lastRun == nil {
		return true
	}
	return now.Sub(*lastRun) >= freq.Period()
}

// RunAll runs every configured digest that is due, in configuration order.
// A failing digest never prevents the others from running.
func (r *Runner) RunAll(ctx context.Context) []DigestResult {
	results := make([]DigestResult, 0, len(r.cfg.Digests))
	for _, d := range r.cfg.Digests {
		results = append(results, r.run(ctx, d, false))
	}
	return results
}

// RunOne runs the digest matching ref (id, then name) regardless of schedule.
func (r *Runner) RunOne(ctx context.Context, ref string) (DigestResult, error) {
	d, ok := r.cfg.FindDigest(ref)
	if !ok {
		return DigestResult{}, fmt.Errorf("%w: %s", ErrUnknownDigest, ref)
	}
	return r.run(ctx, d, true), nil
}

// Preview builds and renders the digest matching ref for recipient without
// delivering it or touching state.
func (r *Runner) Preview(ctx context.Context, ref, recipient string) (render.Document, DigestResult, error) {
	d, ok := r.cfg.FindDigest(ref)
	if !ok {
		return render.Document{}, DigestResult{}, fmt.Errorf("%w: %s", ErrUnknownDigest, ref)
	}
	if !d.Frequency.Valid() {
		return render.Document{}, DigestResult{}, fmt.Errorf("%w: got %q", ErrInvalidFrequency, d.Frequency)
	}
	if len(d.Channels) == 0 {
		return render.Document{}, DigestResult{}, ErrNoChannels
	}

	res := DigestResult{DigestID: d.ID, Name: d.Name, Outcome: state.OutcomeDryRun}
	st, err := r.deps.Store.LoadState(d.ID)
	if err != nil {
		return render.Document{}, res, fmt.Errorf("loading state: %w", err)
	}

	b := r.build(ctx, d, st, r.Now(), &res)
	if b == nil {
		res.Outcome = state.OutcomeNoItems
		return render.Document{}, res, nil
	}
	if recipient == "" && len(d.Recipients) > 0 {
		recipient = d.Recipients[0]
	}
	doc, err := render.Render(b.renderInput(d, recipient, r.cfg.Mail.UnsubscribeURL))
	if err != nil {
		return render.Document{}, res, err
	}
	return doc, res, nil
}

func (r *Runner) run(ctx context.Context, d config.Digest, forced bool) DigestResult {
	log := r.log.With().Str("digest", d.ID).Logger()
	res := DigestResult{DigestID: d.ID, Name: d.Name, RunID: uuid.NewString()}
	started := r.Now()

	if err := validate(d); err != nil {
		log.Warn().Err(err).Msg("skipping digest")
		res.Outcome = state.OutcomeSkipped
		res.Err = err
		r.record(log, res, started)
		return res
	}

	st, err := r.deps.Store.LoadState(d.ID)
	if err != nil {
		log.Error().Err(err).Msg("loading state failed")
		res.Outcome = state.OutcomeError
		res.Err = fmt.Errorf("loading state: %w", err)
		r.record(log, res, started)
		return res
	}

	now := r.Now()
	if !Due(d.Frequency, st.LastRun, now, forced) {
		log.Info().Time("last_run", *st.LastRun).Str("frequency", string(d.Frequency)).Msg("not scheduled")
		res.Outcome = OutcomeNotDue
		return res
	}

	b := r.build(ctx, d, st, now, &res)
	if b == nil {
		log.Info().Msg("no new videos")
		res.Outcome = state.OutcomeNoItems
		if !r.DryRun {
			r.record(log, res, started)
		}
		return res
	}

	archive, err := render.Render(b.renderInput(d, "", ""))
	if err != nil {
		log.Error().Err(err).Msg("rendering failed")
		res.Outcome = state.OutcomeError
		res.Err = err
		r.record(log, res, started)
		return res
	}
	res.Document = &archive
	metrics.ObserveBuild(d.ID, r.Now().Sub(now))

	if r.DryRun {
		res.Outcome = state.OutcomeDryRun
		res.Steps = append(res.Steps, StepResult{
			Name:    "Deliver",
			Summary: fmt.Sprintf("[dry-run] would send to %d recipient(s)", len(d.Recipients)),
		})
		return res
	}

	r.deliver(ctx, log, d, b, &res)

	if res.Delivered == 0 {
		res.Outcome = state.OutcomeDeliveryFailed
		res.Err = fmt.Errorf("all %d deliveries failed", res.Failed)
		log.Error().Int("failed", res.Failed).Msg("no recipient received the digest")
		r.record(log, res, started)
		return res
	}

	if err := r.deps.Store.CommitState(d.ID, now, b.selectedIDs); err != nil {
		log.Error().Err(err).Msg("committing state failed")
		res.Outcome = state.OutcomeError
		res.Err = fmt.Errorf("committing state: %w", err)
		res.Steps = append(res.Steps, StepResult{Name: "Commit", Err: err})
		r.record(log, res, started)
		return res
	}
	res.Steps = append(res.Steps, StepResult{
		Name:    "Commit",
		Summary: fmt.Sprintf("%d video id(s) marked as seen", len(b.selectedIDs)),
	})

	res.Outcome = state.OutcomeDelivered
	metrics.MarkSuccess(d.ID, now)
	r.record(log, res, started)
	log.Info().Int("delivered", res.Delivered).Int("failed", res.Failed).Int("videos", len(b.kept)).Msg("digest delivered")
	return res
}

func validate(d config.Digest) error {
	if !d.Frequency.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidFrequency, d.Frequency)
	}
	if len(d.Recipients) == 0 {
		return ErrNoRecipients
	}
	if len(d.Channels) == 0 {
		return ErrNoChannels
	}
	return nil
}

func (r *Runner) observe(res DigestResult) {
	metrics.ObserveRun(res.DigestID, string(res.Outcome))
	metrics.ObserveVideos(res.DigestID, "selected", res.Selected)
	metrics.ObserveVideos(res.DigestID, "excluded", res.Excluded)
}

// record persists the run and updates run metrics.
func (r *Runner) record(log zerolog.Logger, res DigestResult, started time.Time) {
	r.observe(res)
	run := state.Run{
		ID:         res.RunID,
		DigestID:   res.DigestID,
		StartedAt:  started,
		FinishedAt: r.Now(),
		Outcome:    res.Outcome,
		Selected:   res.Selected,
		Excluded:   res.Excluded,
		Delivered:  res.Delivered,
		Failed:     res.Failed,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if res.Document != nil && res.Outcome == state.OutcomeDelivered {
		run.Subject = res.Document.Subject
		run.HTML = res.Document.HTML
	}
	if err := r.deps.Store.InsertRun(run); err != nil {
		log.Warn().Err(err).Msg("recording run failed")
	}
}
