package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// detailsBatchSize is the Data API limit on ids per videos.list call.
const detailsBatchSize = 50

// Details are the Data API fields used for enrichment.
type Details struct {
	Title        string
	Description  string
	Tags         []string
	Duration     string // ISO 8601, e.g. PT1H2M3S
	Views        int64
	Likes        int64
	CommentCount int64
}

// VideoDetails fetches statistics and metadata for ids in batches of 50.
// Ids the API does not return are absent from the map. A failing batch
// aborts the call; details from earlier batches are still returned.
func (c *Client) VideoDetails(ctx context.Context, ids []string) (map[string]Details, error) {
	if !c.HasAPIKey() {
		return nil, ErrNoAPIKey
	}

	out := make(map[string]Details, len(ids))
	for start := 0; start < len(ids); start += detailsBatchSize {
		end := min(start+detailsBatchSize, len(ids))

		q := url.Values{}
		q.Set("part", "snippet,statistics,contentDetails")
		q.Set("id", strings.Join(ids[start:end], ","))
		q.Set("key", c.apiKey)

		body, err := c.doRequest(ctx, "videos", c.apiBaseURL+"/youtube/v3/videos?"+q.Encode())
		if err != nil {
			return out, err
		}

		var resp videosResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return out, fmt.Errorf("failed to parse videos response: %w", err)
		}

		for _, item := range resp.Items {
			out[item.ID] = Details{
				Title:        item.Snippet.Title,
				Description:  item.Snippet.Description,
				Tags:         item.Snippet.Tags,
				Duration:     item.ContentDetails.Duration,
				Views:        parseCount(item.Statistics.ViewCount),
				Likes:        parseCount(item.Statistics.LikeCount),
				CommentCount: parseCount(item.Statistics.CommentCount),
			}
		}
	}
	return out, nil
}

// Comments returns up to max top-level comment texts, most relevant first.
func (c *Client) Comments(ctx context.Context, videoID string, max int) ([]string, error) {
	if !c.HasAPIKey() {
		return nil, ErrNoAPIKey
	}
	if max <= 0 {
		return nil, nil
	}
	if max > 100 {
		max = 100
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("videoId", videoID)
	q.Set("maxResults", strconv.Itoa(max))
	q.Set("order", "relevance")
	q.Set("textFormat", "plainText")
	q.Set("key", c.apiKey)

	body, err := c.doRequest(ctx, "commentThreads", c.apiBaseURL+"/youtube/v3/commentThreads?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp commentThreadsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse comments response: %w", err)
	}

	comments := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		text := strings.TrimSpace(item.Snippet.TopLevelComment.Snippet.TextDisplay)
		if text != "" {
			comments = append(comments, text)
		}
	}
	return comments, nil
}

// Counts arrive as decimal strings and are omitted when hidden.
func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// API response types

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Tags        []string `json:"tags"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type commentThreadsResponse struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string `json:"textDisplay"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}
