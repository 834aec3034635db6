package render

import (
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/ytdigest/internal/rank"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

func testInput() Input {
	videos := []video.Video{
		{ID: "a", Title: "Scaling <laws>", URL: "https://www.youtube.com/watch?v=a", ChannelTitle: "Lab", Views: 1234567, Likes: 90000},
		{ID: "b", Title: "News roundup", URL: "https://www.youtube.com/watch?v=b", ChannelTitle: "Wire", Views: 0},
	}
	analyses := map[string]video.Analysis{
		"a": {Category: video.CategoryInterview, Sentiment: video.SentimentPositive, Topics: []string{"scaling", "data"}, Guests: []string{"Jane Doe"}, Summary: "A *long* chat."},
		"b": {Category: video.CategoryNews, Sentiment: video.SentimentUnknown, Topics: []string{}, Guests: []string{}},
	}
	return Input{
		DigestID:            "ai-weekly",
		DigestName:          "AI Weekly",
		Recipient:           "reader+test@example.com",
		WindowStart:         time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		WindowEnd:           time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
		Ranking:             rank.RankAndGroup(videos, analyses),
		Analyses:            analyses,
		Theme:               "Agents everywhere. <script>alert(1)</script>",
		GeneratedAt:         time.Date(2026, 3, 9, 8, 0, 5, 0, time.UTC),
		UnsubscribeTemplate: "https://example.com/unsubscribe?d={digest_id}&e={email}",
	}
}

func TestRender(t *testing.T) {
	doc, err := Render(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Subject != "AI Weekly - March 02 to March 09, 2026" {
		t.Errorf("unexpected subject %q", doc.Subject)
	}

	checks := []string{
		"March 02 - March 09, 2026",
		"New Uploads (2)",
		"1,234,567 views",
		"N/A views",
		"Standout",
		"<em>long</em>",
		"Jane Doe",
		"scaling, data",
		"\U0001F44D",
		"Scaling &lt;laws&gt;",
		"Generated 2026-03-09 08:00:05 UTC",
		"https://example.com/unsubscribe?d=ai-weekly&amp;e=reader%2Btest%40example.com",
	}
	for _, c := range checks {
		if !strings.Contains(doc.HTML, c) {
			t.Errorf("expected HTML to contain %q", c)
		}
	}
	if strings.Contains(doc.HTML, "<script>") {
		t.Error("expected raw HTML in generated text to be dropped")
	}
	if strings.Contains(doc.HTML, "Sentiment:</strong> unknown") {
		t.Error("expected unknown sentiment to be hidden")
	}
}

func TestRenderPlainText(t *testing.T) {
	doc, err := Render(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(doc.Text, "<") && strings.Contains(doc.Text, "</") {
		t.Errorf("expected tags stripped, got %q", doc.Text)
	}
	if strings.Contains(doc.Text, "  ") || strings.Contains(doc.Text, "\n\n") {
		t.Error("expected whitespace collapsed")
	}
	if !strings.Contains(doc.Text, "\n") {
		t.Error("expected block elements on separate lines")
	}
	if !strings.Contains(doc.Text, "This Week's Themes") {
		t.Errorf("expected entity-decoded heading in text, got %q", doc.Text)
	}
	if strings.Contains(doc.Text, "AI Weekly - March 02 to") {
		t.Error("expected document head to be excluded from text")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	a, _ := Render(testInput())
	b, _ := Render(testInput())
	if a.HTML != b.HTML || a.Text != b.Text {
		t.Error("expected identical output for identical input")
	}
}

func TestUnsubscribeLink(t *testing.T) {
	if got := UnsubscribeLink("", "d", "e@x.com"); got != "" {
		t.Errorf("expected empty link without template, got %q", got)
	}
	got := UnsubscribeLink("mailto:admin@example.com?subject=unsub%20{digest_id}&body={email}", "my digest", "a@b.c")
	if got != "mailto:admin@example.com?subject=unsub%20my+digest&body=a%40b.c" {
		t.Errorf("unexpected link %q", got)
	}
}

func TestThemeHeading(t *testing.T) {
	if themeHeading(24*time.Hour) != "Today's Themes" {
		t.Error("daily heading")
	}
	if themeHeading(72*time.Hour) != "Recent Themes" {
		t.Error("biweekly heading")
	}
	if themeHeading(7*24*time.Hour) != "This Week's Themes" {
		t.Error("weekly heading")
	}
}
