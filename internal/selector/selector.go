// Package selector decides which fetched videos belong in a digest run.
package selector

import (
	"time"

	"github.com/TobiSchelling/ytdigest/internal/video"
)

// Window returns the half-open publish window [now-lookback, now).
// The window is anchored on now, not on the digest's last run, so a run that
// is delayed longer than the lookback leaves a gap.
func Window(now time.Time, lookback time.Duration) (start, end time.Time) {
	return now.Add(-lookback), now
}

// Select keeps videos published in [start, end) whose id is not in seen.
// Input order is preserved and duplicates within items are not collapsed.
func Select(items []video.Video, seen map[string]struct{}, start, end time.Time) []video.Video {
	var out []video.Video
	for _, v := range items {
		if v.PublishedAt.Before(start) || !v.PublishedAt.Before(end) {
			continue
		}
		if _, ok := seen[v.ID]; ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// IDs returns the ids of videos in order.
func IDs(videos []video.Video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	return ids
}
