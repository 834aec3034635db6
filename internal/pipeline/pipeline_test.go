package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/enrich"
	"github.com/TobiSchelling/ytdigest/internal/insight"
	"github.com/TobiSchelling/ytdigest/internal/mail"
	"github.com/TobiSchelling/ytdigest/internal/state"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	videos map[string][]video.Video // by channel id
}

func (m *mockSource) ResolveChannel(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "bad") {
		return "", errors.New("unresolvable")
	}
	return strings.TrimPrefix(ref, "https://www.youtube.com/channel/"), nil
}

func (m *mockSource) RecentVideos(ctx context.Context, channelID string) ([]video.Video, error) {
	v, ok := m.videos[channelID]
	if !ok {
		return nil, errors.New("feed unavailable")
	}
	return v, nil
}

// mockEnricher attaches durations by id.
type mockEnricher struct {
	durations map[string]string
}

func (m *mockEnricher) Enrich(ctx context.Context, videos []video.Video) ([]video.Video, enrich.Stats) {
	out := make([]video.Video, len(videos))
	for i, v := range videos {
		v.Views = 1000
		v.Likes = int64(10 * (i + 1))
		v.Duration = m.durations[v.ID]
		if v.Duration == "" {
			v.Duration = "PT10M"
		}
		v.IsShort = enrich.IsShortDuration(v.Duration)
		out[i] = v
	}
	return out, enrich.Stats{}
}

type failingProvider struct{}

func (failingProvider) IsConfigured() bool { return true }
func (failingProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", errors.New("service unavailable")
}

type mockSender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []mail.Message
}

func (m *mockSender) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

// countingStore counts commits on top of a real database.
type countingStore struct {
	*state.DB
	commits int
}

func (s *countingStore) CommitState(id string, lastRun time.Time, ids []string) error {
	s.commits++
	return s.DB.CommitState(id, lastRun, ids)
}

type fixture struct {
	runner *Runner
	store  *countingStore
	sender *mockSender
	source *mockSource
	cfg    *config.Config
}

func newFixture(t *testing.T, digests ...config.Digest) *fixture {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Digests: digests}
	cfg.Mail.UnsubscribeURL = "https://example.com/unsub?d={digest_id}&e={email}"

	f := &fixture{
		store:  &countingStore{DB: db},
		sender: &mockSender{fail: map[string]bool{}},
		source: &mockSource{videos: map[string][]video.Video{
			"chan1": {
				{ID: "v-new", Title: "Fresh upload", URL: "https://www.youtube.com/watch?v=v-new", PublishedAt: testNow.Add(-23 * time.Hour), ChannelTitle: "Chan One"},
				{ID: "v-old", Title: "Stale upload", URL: "https://www.youtube.com/watch?v=v-old", PublishedAt: testNow.Add(-25 * time.Hour), ChannelTitle: "Chan One"},
			},
			"chan2": {
				{ID: "v-two", Title: "Second channel", URL: "https://www.youtube.com/watch?v=v-two", PublishedAt: testNow.Add(-2 * time.Hour), ChannelTitle: "Chan Two"},
			},
		}},
		cfg: cfg,
	}

	deps := Deps{
		Store:    f.store,
		Source:   f.source,
		Enricher: &mockEnricher{durations: map[string]string{}},
		Analyzer: insight.NewGenerator(nil, insight.Options{}, zerolog.Nop()),
		Sender:   f.sender,
	}
	f.runner = New(cfg, deps, zerolog.Nop())
	f.runner.Now = func() time.Time { return testNow }
	return f
}

func dailyDigest(recipients ...string) config.Digest {
	return config.Digest{
		ID:         "daily",
		Name:       "Daily Digest",
		Frequency:  config.Daily,
		Channels:   []string{"chan1", "https://www.youtube.com/channel/chan2"},
		Recipients: recipients,
	}
}

func TestDue(t *testing.T) {
	last := testNow.Add(-23 * time.Hour)
	if Due(config.Daily, &last, testNow, false) {
		t.Error("expected daily digest run 23h ago to be not due")
	}
	if !Due(config.Daily, &last, testNow, true) {
		t.Error("expected forced run to be due")
	}
	if !Due(config.Weekly, nil, testNow, false) {
		t.Error("expected never-run digest to be due")
	}
	exact := testNow.Add(-72 * time.Hour)
	if !Due(config.Biweekly, &exact, testNow, false) {
		t.Error("expected biweekly digest to be due after exactly 3 days")
	}
}

func TestRunDeliversAndCommits(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))

	results := f.runner.RunAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Outcome != state.OutcomeDelivered {
		t.Fatalf("expected delivered, got %s (%v)", res.Outcome, res.Err)
	}
	if res.Selected != 2 || res.Delivered != 1 {
		t.Errorf("unexpected counts %+v", res)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if !strings.Contains(msg.HTML, "Fresh upload") || strings.Contains(msg.HTML, "Stale upload") {
		t.Error("expected the 23h-old video included and the 25h-old video excluded")
	}
	if !strings.Contains(msg.ListUnsubscribe, "e=a%40example.com") {
		t.Errorf("expected personalised unsubscribe link, got %q", msg.ListUnsubscribe)
	}
	if msg.Text == "" || strings.Contains(msg.Text, "<p") {
		t.Error("expected a plain-text alternative")
	}

	st, _ := f.store.LoadState("daily")
	if st.LastRun == nil || !st.LastRun.Equal(testNow) {
		t.Errorf("expected last run %v, got %v", testNow, st.LastRun)
	}
	if strings.Join(st.SeenIDs, ",") != "v-new,v-two" {
		t.Errorf("unexpected seen ids %v", st.SeenIDs)
	}

	runs, _ := f.store.GetRecentRuns(10)
	if len(runs) != 1 || runs[0].Outcome != state.OutcomeDelivered {
		t.Errorf("expected one delivered run recorded, got %+v", runs)
	}
	archived, _ := f.store.GetRun(runs[0].ID)
	if archived == nil || !strings.Contains(archived.HTML, "Fresh upload") {
		t.Error("expected rendered html archived")
	}
	if strings.Contains(archived.HTML, "a@example.com") || strings.Contains(archived.HTML, "a%40example.com") {
		t.Error("expected archived html to carry no recipient address")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	ctx := context.Background()

	first, err := f.runner.RunOne(ctx, "daily")
	if err != nil || first.Outcome != state.OutcomeDelivered {
		t.Fatalf("first run: %+v %v", first, err)
	}

	second, err := f.runner.RunOne(ctx, "Daily Digest")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Selected != 0 || second.Outcome != state.OutcomeNoItems {
		t.Errorf("expected zero new videos on the second run, got %+v", second)
	}
	if len(f.sender.sent) != 1 {
		t.Errorf("expected no second email, got %d", len(f.sender.sent))
	}
}

func TestRunAllRespectsSchedule(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	ctx := context.Background()

	f.runner.RunAll(ctx)
	runsBefore, _ := f.store.GetRecentRuns(10)

	res := f.runner.RunAll(ctx)
	if res[0].Outcome != OutcomeNotDue {
		t.Errorf("expected not due, got %s", res[0].Outcome)
	}
	runsAfter, _ := f.store.GetRecentRuns(10)
	if len(runsAfter) != len(runsBefore) {
		t.Error("expected a not-due digest to leave no run record")
	}
	if f.store.commits != 1 {
		t.Errorf("expected a single commit, got %d", f.store.commits)
	}
}

func TestGracefulDegradation(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	f.runner.deps.Analyzer = insight.NewGenerator(failingProvider{}, insight.Options{}, zerolog.Nop())

	res, err := f.runner.RunOne(context.Background(), "daily")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != state.OutcomeDelivered {
		t.Fatalf("expected delivery to proceed, got %s (%v)", res.Outcome, res.Err)
	}

	html := f.sender.sent[0].HTML
	if !strings.Contains(html, insight.ThemeUnavailable) {
		t.Error("expected the unavailable theme placeholder")
	}
	if !strings.Contains(html, "Other (2)") {
		t.Error("expected every video filed under Other")
	}
	if strings.Contains(html, "Sentiment:") {
		t.Error("expected unknown sentiment to be omitted")
	}
}

func TestPartialDelivery(t *testing.T) {
	f := newFixture(t, dailyDigest("ok@example.com", "bad1@example.com", "bad2@example.com"))
	f.sender.fail["bad1@example.com"] = true
	f.sender.fail["bad2@example.com"] = true

	res, _ := f.runner.RunOne(context.Background(), "daily")

	if res.Outcome != state.OutcomeDelivered {
		t.Fatalf("expected success with 1 of 3 delivered, got %s", res.Outcome)
	}
	if res.Delivered != 1 || res.Failed != 2 {
		t.Errorf("unexpected counts delivered=%d failed=%d", res.Delivered, res.Failed)
	}
	if f.store.commits != 1 {
		t.Errorf("expected state committed exactly once, got %d", f.store.commits)
	}
}

func TestAllDeliveriesFail(t *testing.T) {
	f := newFixture(t, dailyDigest("bad@example.com"))
	f.sender.fail["bad@example.com"] = true

	res, _ := f.runner.RunOne(context.Background(), "daily")

	if res.Outcome != state.OutcomeDeliveryFailed || res.Err == nil {
		t.Errorf("expected delivery failure, got %s", res.Outcome)
	}
	if f.store.commits != 0 {
		t.Error("expected no commit")
	}
	st, _ := f.store.LoadState("daily")
	if st.LastRun != nil {
		t.Error("expected last run unchanged")
	}
}

func TestConfigurationErrorsSkip(t *testing.T) {
	noRecipients := dailyDigest()
	noChannels := dailyDigest("a@example.com")
	noChannels.ID = "empty"
	noChannels.Channels = nil
	f := newFixture(t, noRecipients, noChannels)

	results := f.runner.RunAll(context.Background())

	if !errors.Is(results[0].Err, ErrNoRecipients) || results[0].Outcome != state.OutcomeSkipped {
		t.Errorf("expected ErrNoRecipients, got %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrNoChannels) {
		t.Errorf("expected ErrNoChannels, got %+v", results[1])
	}
	if f.store.commits != 0 || len(f.sender.sent) != 0 {
		t.Error("expected no side effects for misconfigured digests")
	}
}

func TestUnknownFrequencySkipsWithoutStateChange(t *testing.T) {
	monthly := dailyDigest("a@example.com")
	monthly.Frequency = config.Frequency("monthly")
	f := newFixture(t, monthly)

	last := testNow.Add(-48 * time.Hour)
	if err := f.store.DB.CommitState("daily", last, []string{"v-seed"}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	results := f.runner.RunAll(context.Background())

	if !errors.Is(results[0].Err, ErrInvalidFrequency) || results[0].Outcome != state.OutcomeSkipped {
		t.Errorf("expected ErrInvalidFrequency and skipped outcome, got %+v", results[0])
	}
	if f.store.commits != 0 || len(f.sender.sent) != 0 {
		t.Error("expected no side effects for a digest with an unknown frequency")
	}
	st, _ := f.store.LoadState("daily")
	if st.LastRun == nil || !st.LastRun.Equal(last) || len(st.SeenIDs) != 1 {
		t.Errorf("expected state untouched, got %+v", st)
	}

	if _, _, err := f.runner.Preview(context.Background(), "daily", ""); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("expected preview to reject unknown frequency, got %v", err)
	}
}

func TestShortsOnlyEndsEarly(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	f.runner.deps.Enricher = &mockEnricher{durations: map[string]string{"v-new": "PT59S", "v-two": "PT30S"}}

	res, _ := f.runner.RunOne(context.Background(), "daily")

	if res.Outcome != state.OutcomeNoItems || res.Excluded != 2 {
		t.Errorf("expected no items after exclusion, got %+v", res)
	}
	if f.store.commits != 0 || len(f.sender.sent) != 0 {
		t.Error("expected no email and no state change")
	}
}

func TestExcludedVideosAreStillMarkedSeen(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	f.runner.deps.Enricher = &mockEnricher{durations: map[string]string{"v-two": "PT59S"}}

	res, _ := f.runner.RunOne(context.Background(), "daily")
	if res.Outcome != state.OutcomeDelivered || res.Excluded != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	st, _ := f.store.LoadState("daily")
	if len(st.SeenIDs) != 2 {
		t.Errorf("expected both selected ids committed, got %v", st.SeenIDs)
	}
}

func TestChannelFailuresAreSkipped(t *testing.T) {
	d := dailyDigest("a@example.com")
	d.Channels = []string{"bad-ref", "missing-feed", "chan1"}
	f := newFixture(t, d)

	res, _ := f.runner.RunOne(context.Background(), "daily")

	if res.Outcome != state.OutcomeDelivered || res.Selected != 1 {
		t.Errorf("expected the healthy channel to be delivered, got %+v", res)
	}
	if res.Steps[0].Summary != "2 video(s) from 1/3 channel(s)" {
		t.Errorf("unexpected fetch summary %q", res.Steps[0].Summary)
	}
}

func TestDryRun(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	f.runner.DryRun = true

	res, _ := f.runner.RunOne(context.Background(), "daily")

	if res.Outcome != state.OutcomeDryRun || res.Document == nil {
		t.Fatalf("expected a rendered dry run, got %+v", res)
	}
	if len(f.sender.sent) != 0 || f.store.commits != 0 {
		t.Error("expected no delivery and no commit")
	}
	runs, _ := f.store.GetRecentRuns(10)
	if len(runs) != 0 {
		t.Error("expected dry run to leave no run record")
	}
}

func TestRunOneUnknown(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))
	if _, err := f.runner.RunOne(context.Background(), "nope"); !errors.Is(err, ErrUnknownDigest) {
		t.Errorf("expected ErrUnknownDigest, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, dailyDigest("a@example.com"))

	doc, res, err := f.runner.Preview(context.Background(), "daily", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Selected != 2 {
		t.Errorf("expected 2 selected, got %d", res.Selected)
	}
	wantSubject := fmt.Sprintf("Daily Digest - %s to %s", testNow.Add(-24*time.Hour).Format("January 02"), testNow.Format("January 02, 2006"))
	if doc.Subject != wantSubject {
		t.Errorf("expected subject %q, got %q", wantSubject, doc.Subject)
	}
	if !strings.Contains(doc.UnsubscribeURL, "a%40example.com") {
		t.Errorf("expected preview for the first recipient, got %q", doc.UnsubscribeURL)
	}
	if len(f.sender.sent) != 0 || f.store.commits != 0 {
		t.Error("expected preview to have no side effects")
	}
}
