package selector

import (
	"testing"
	"time"

	"github.com/TobiSchelling/ytdigest/internal/video"
)

func TestSelectDailyWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start, end := Window(now, 24*time.Hour)

	items := []video.Video{
		{ID: "recent", PublishedAt: now.Add(-23 * time.Hour)},
		{ID: "old", PublishedAt: now.Add(-25 * time.Hour)},
	}

	got := Select(items, nil, start, end)
	if len(got) != 1 || got[0].ID != "recent" {
		t.Errorf("expected only the 23h-old video, got %v", IDs(got))
	}
}

func TestSelectBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start, end := Window(now, time.Hour)

	items := []video.Video{
		{ID: "at-start", PublishedAt: start},
		{ID: "at-end", PublishedAt: end},
	}

	got := Select(items, map[string]struct{}{}, start, end)
	if len(got) != 1 || got[0].ID != "at-start" {
		t.Errorf("expected start inclusive and end exclusive, got %v", IDs(got))
	}
}

func TestSelectSkipsSeenAndKeepsOrder(t *testing.T) {
	now := time.Now()
	start, end := Window(now, 24*time.Hour)
	pub := now.Add(-time.Hour)

	items := []video.Video{
		{ID: "c", PublishedAt: pub},
		{ID: "a", PublishedAt: pub},
		{ID: "seen", PublishedAt: pub},
		{ID: "b", PublishedAt: pub},
		{ID: "a", PublishedAt: pub},
	}
	seen := map[string]struct{}{"seen": {}}

	got := IDs(Select(items, seen, start, end))
	want := []string{"c", "a", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
