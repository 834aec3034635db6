package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Captions returns the plain transcript of a video in the given language,
// or "" when none is published.
func (c *Client) Captions(ctx context.Context, videoID, lang string) (string, error) {
	if lang == "" {
		lang = "en"
	}
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)

	body, err := c.doRequest(ctx, "timedtext", c.webBaseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	var doc struct {
		Lines []string `xml:"text"`
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse captions: %w", err)
	}

	parts := make([]string, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		line = strings.TrimSpace(html.UnescapeString(line))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

// PageDescription reads the public watch page and returns its description
// excerpt. It serves as the keyless fallback for VideoDetails.
func (c *Client) PageDescription(ctx context.Context, videoID string) (string, error) {
	pageURL := c.webBaseURL + "/watch?v=" + url.QueryEscape(videoID)
	body, err := c.doRequest(ctx, "watch page", pageURL)
	if err != nil {
		return "", err
	}

	parsed, _ := url.Parse(pageURL)
	if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		if excerpt := strings.TrimSpace(article.Excerpt); excerpt != "" {
			return excerpt, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse watch page: %w", err)
	}
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}
