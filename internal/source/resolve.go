package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	channelIDPattern   = regexp.MustCompile(`^UC[\w-]{22}$`)
	channelPathPattern = regexp.MustCompile(`^/channel/(UC[\w-]{22})`)
	namedPathPattern   = regexp.MustCompile(`^/(@[^/?#]+|c/[^/?#]+|user/[^/?#]+)`)
	embeddedIDPattern  = regexp.MustCompile(`"(?:channelId|externalId|browseId)":"(UC[\w-]{22})"`)
)

// ResolveChannel turns a channel reference into a channel id. Accepted forms
// are a bare UC... id, a /channel/ URL, and /@handle, /c/ and /user/ URLs
// (or a bare @handle), the latter resolved by reading the channel page.
func (c *Client) ResolveChannel(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty channel reference")
	}
	if channelIDPattern.MatchString(ref) {
		return ref, nil
	}

	path := ref
	if strings.HasPrefix(ref, "@") {
		path = "/" + ref
	} else if u, err := url.Parse(ref); err == nil && u.Host != "" {
		path = u.Path
	}

	if m := channelPathPattern.FindStringSubmatch(path); m != nil {
		return m[1], nil
	}

	m := namedPathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", fmt.Errorf("unrecognized channel reference %q", ref)
	}

	body, err := c.doRequest(ctx, "channel page", c.webBaseURL+"/"+m[1])
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}

	if id := channelIDFromPage(body); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("resolving %s: no channel id on page", ref)
}

func channelIDFromPage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		for _, sel := range []string{`meta[itemprop="channelId"]`, `meta[itemprop="identifier"]`} {
			if v, ok := doc.Find(sel).First().Attr("content"); ok && channelIDPattern.MatchString(v) {
				return v
			}
		}
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
			if u, err := url.Parse(href); err == nil {
				if m := channelPathPattern.FindStringSubmatch(u.Path); m != nil {
					return m[1]
				}
			}
		}
	}

	if m := embeddedIDPattern.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}
