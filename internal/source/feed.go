package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/TobiSchelling/ytdigest/internal/video"
)

// RecentVideos reads the channel's public upload feed. Items come back in
// feed order; entries without a parseable publish time or video id are skipped.
func (c *Client) RecentVideos(ctx context.Context, channelID string) ([]video.Video, error) {
	feedURL := fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", c.webBaseURL, url.QueryEscape(channelID))

	parser := gofeed.NewParser()
	parser.Client = c.httpClient
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed for %s: %w", channelID, err)
	}

	videos := make([]video.Video, 0, len(feed.Items))
	for _, item := range feed.Items {
		v, ok := itemToVideo(item, channelID, feed.Title)
		if ok {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func itemToVideo(item *gofeed.Item, channelID, channelTitle string) (video.Video, bool) {
	id := extensionValue(item.Extensions, "yt", "videoId")
	if id == "" {
		id = videoIDFromURL(item.Link)
	}
	if id == "" || item.PublishedParsed == nil {
		return video.Video{}, false
	}

	if cid := extensionValue(item.Extensions, "yt", "channelId"); cid != "" {
		channelID = cid
	}
	if item.Author != nil && item.Author.Name != "" {
		channelTitle = item.Author.Name
	}

	link := item.Link
	if link == "" {
		link = "https://www.youtube.com/watch?v=" + id
	}

	return video.Video{
		ID:           id,
		Title:        strings.TrimSpace(item.Title),
		URL:          link,
		PublishedAt:  item.PublishedParsed.UTC(),
		ChannelID:    channelID,
		ChannelTitle: channelTitle,
	}, true
}

func extensionValue(exts ext.Extensions, ns, name string) string {
	if exts == nil {
		return ""
	}
	values := exts[ns][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func videoIDFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
		return strings.Trim(rest, "/")
	}
	return ""
}
