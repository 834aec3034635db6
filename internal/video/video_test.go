package video

import "testing"

func TestEngagementRatio(t *testing.T) {
	v := Video{Views: 200, Likes: 10}
	if got := v.EngagementRatio(); got != 0.05 {
		t.Errorf("expected 0.05, got %v", got)
	}

	zero := Video{Views: 0, Likes: 10}
	if got := zero.EngagementRatio(); got != 0 {
		t.Errorf("expected 0 for zero views, got %v", got)
	}
}

func TestParseSentiment(t *testing.T) {
	cases := map[string]Sentiment{
		"positive":  SentimentPositive,
		" Negative": SentimentNegative,
		"MIXED":     SentimentMixed,
		"ecstatic":  SentimentUnknown,
		"":          SentimentUnknown,
	}
	for in, want := range cases {
		if got := ParseSentiment(in); got != want {
			t.Errorf("ParseSentiment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if got := ParseCategory("interview"); got != CategoryInterview {
		t.Errorf("expected Interview, got %q", got)
	}
	if got := ParseCategory("Podcast"); got != CategoryOther {
		t.Errorf("expected Other for unknown category, got %q", got)
	}
}

func TestDefaultAnalysis(t *testing.T) {
	a := DefaultAnalysis()
	if a.Sentiment != SentimentUnknown || a.Category != CategoryOther {
		t.Errorf("unexpected defaults: %+v", a)
	}
	if a.Topics == nil || a.Guests == nil || len(a.Topics) != 0 || len(a.Guests) != 0 {
		t.Error("expected empty, non-nil topic and guest lists")
	}
}

func TestFormatCount(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-45000:   "-45,000",
		12345678: "12,345,678",
	}
	for in, want := range cases {
		if got := FormatCount(in); got != want {
			t.Errorf("FormatCount(%d) = %q, want %q", in, got, want)
		}
	}
}
