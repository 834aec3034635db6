// Package video holds the domain types shared by the digest pipeline.
package video

import (
	"strconv"
	"strings"
	"time"
)

// Video is one upload from a monitored channel, plus whatever enrichment the
// pipeline managed to attach to it. ID is the dedup key.
type Video struct {
	ID           string
	Title        string
	URL          string
	PublishedAt  time.Time
	ChannelID    string
	ChannelTitle string

	Views          int64
	Likes          int64
	CommentCount   int64
	Description    string
	Tags           []string
	Duration       string // ISO 8601 token as returned by the Data API, e.g. PT12M3S
	Captions       string
	SampleComments []string
	IsShort        bool
}

// EngagementRatio returns likes per view, or 0 when the video has no views.
func (v Video) EngagementRatio() float64 {
	if v.Views <= 0 {
		return 0
	}
	return float64(v.Likes) / float64(v.Views)
}

// Sentiment is the audience reaction derived from sample comments.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
	SentimentUnknown  Sentiment = "unknown"
)

// ParseSentiment maps free text onto the closed sentiment set.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentMixed:
		return SentimentMixed
	}
	return SentimentUnknown
}

// Category is the presentation group a video is filed under.
type Category string

const (
	CategoryInterview     Category = "Interview"
	CategoryNews          Category = "News"
	CategoryTutorial      Category = "Tutorial"
	CategoryAnalysis      Category = "Analysis"
	CategoryReview        Category = "Review"
	CategoryCommentary    Category = "Commentary"
	CategoryEntertainment Category = "Entertainment"
	CategoryOther         Category = "Other"
)

// Categories is the closed set of categories, in prompt order.
var Categories = []Category{
	CategoryInterview,
	CategoryNews,
	CategoryTutorial,
	CategoryAnalysis,
	CategoryReview,
	CategoryCommentary,
	CategoryEntertainment,
	CategoryOther,
}

// ParseCategory matches s case-insensitively against the closed set.
// Anything unrecognised becomes CategoryOther.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Analysis is the structured per-video record produced by the insight step.
type Analysis struct {
	Topics    []string
	Sentiment Sentiment
	Category  Category
	Guests    []string
	Summary   string
}

// DefaultAnalysis is used whenever generation fails or is unavailable.
func DefaultAnalysis() Analysis {
	return Analysis{
		Topics:    []string{},
		Sentiment: SentimentUnknown,
		Category:  CategoryOther,
		Guests:    []string{},
	}
}

// FormatCount renders n with comma thousands separators.
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}
