// Package render turns a ranked digest into an email document.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/ytdigest/internal/rank"
	"github.com/TobiSchelling/ytdigest/internal/video"
)

//go:embed templates/digest.html
var templateFS embed.FS

var (
	md   = goldmark.New()
	page = template.Must(template.New("digest.html").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
		"join":     func(s []string) string { return strings.Join(s, ", ") },
	}).ParseFS(templateFS, "templates/digest.html"))
)

// Input is everything one rendered digest depends on. Render is a pure
// function of it.
type Input struct {
	DigestID    string
	DigestName  string
	Recipient   string
	WindowStart time.Time
	WindowEnd   time.Time
	Ranking     rank.Result
	Analyses    map[string]video.Analysis
	Theme       string
	GeneratedAt time.Time

	// UnsubscribeTemplate may contain {digest_id} and {email}.
	UnsubscribeTemplate string
}

// Document is a rendered digest.
type Document struct {
	Subject        string
	HTML           string
	Text           string
	UnsubscribeURL string
}

type pageData struct {
	Subject        string
	DigestName     string
	DateRange      string
	ThemeHeading   string
	Theme          string
	Total          int
	Groups         []groupData
	Generated      string
	UnsubscribeURL string
}

type groupData struct {
	Category video.Category
	Items    []itemData
}

type itemData struct {
	Video          video.Video
	Analysis       video.Analysis
	Standout       bool
	Views          string
	ShowSentiment  bool
	SentimentEmoji string
}

// Render produces the subject, HTML body and plain-text alternative.
func Render(in Input) (Document, error) {
	doc := Document{
		Subject:        Subject(in.DigestName, in.WindowStart, in.WindowEnd),
		UnsubscribeURL: UnsubscribeLink(in.UnsubscribeTemplate, in.DigestID, in.Recipient),
	}

	data := pageData{
		Subject:        doc.Subject,
		DigestName:     in.DigestName,
		DateRange:      DateRange(in.WindowStart, in.WindowEnd),
		ThemeHeading:   themeHeading(in.WindowEnd.Sub(in.WindowStart)),
		Theme:          in.Theme,
		Generated:      in.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		UnsubscribeURL: doc.UnsubscribeURL,
	}
	if data.Theme == "" {
		data.Theme = "No themes available."
	}

	for _, g := range in.Ranking.Groups {
		gd := groupData{Category: g.Category}
		for _, v := range g.Videos {
			a, ok := in.Analyses[v.ID]
			if !ok {
				a = video.DefaultAnalysis()
			}
			gd.Items = append(gd.Items, itemData{
				Video:          v,
				Analysis:       a,
				Standout:       in.Ranking.IsStandout(v.ID),
				Views:          formatViews(v.Views),
				ShowSentiment:  a.Sentiment != "" && a.Sentiment != video.SentimentUnknown,
				SentimentEmoji: sentimentEmoji(a.Sentiment),
			})
		}
		data.Total += len(gd.Items)
		data.Groups = append(data.Groups, gd)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return Document{}, fmt.Errorf("rendering digest: %w", err)
	}
	doc.HTML = buf.String()

	text, err := PlainText(doc.HTML)
	if err != nil {
		return Document{}, err
	}
	doc.Text = text
	return doc, nil
}

// Subject formats e.g. "AI Weekly - March 02 to March 09, 2026".
func Subject(name string, start, end time.Time) string {
	return fmt.Sprintf("%s - %s to %s", name, start.Format("January 02"), end.Format("January 02, 2006"))
}

// DateRange formats e.g. "March 02 - March 09, 2026".
func DateRange(start, end time.Time) string {
	return start.Format("January 02") + " - " + end.Format("January 02, 2006")
}

// UnsubscribeLink fills the {digest_id} and {email} placeholders of tmpl
// with query-escaped values. An empty template yields "".
func UnsubscribeLink(tmpl, digestID, email string) string {
	if tmpl == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{digest_id}", url.QueryEscape(digestID),
		"{email}", url.QueryEscape(email),
	)
	return r.Replace(tmpl)
}

const blockElements = "p, div, h1, h2, h3, h4, li, tr, br, hr"

// PlainText strips tags from an HTML document. Block elements end a line;
// whitespace inside a line is collapsed and blank lines are dropped.
func PlainText(htmlDoc string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return "", fmt.Errorf("parsing rendered html: %w", err)
	}
	doc.Find("head, style, script").Remove()
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func formatViews(n int64) string {
	if n <= 0 {
		return "N/A"
	}
	return video.FormatCount(n)
}

func sentimentEmoji(s video.Sentiment) string {
	switch s {
	case video.SentimentPositive:
		return "\U0001F44D"
	case video.SentimentNegative:
		return "\U0001F44E"
	case video.SentimentMixed:
		return "\U0001F914"
	}
	return ""
}

func themeHeading(window time.Duration) string {
	switch {
	case window >= 7*24*time.Hour:
		return "This Week's Themes"
	case window <= 24*time.Hour:
		return "Today's Themes"
	default:
		return "Recent Themes"
	}
}
