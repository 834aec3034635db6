// Package rank orders enriched videos by engagement and groups them by
// category for presentation.
package rank

import (
	"sort"

	"github.com/TobiSchelling/ytdigest/internal/video"
)

// Group is one category section of a digest.
type Group struct {
	Category video.Category
	Videos   []video.Video
}

// Result is the presentation order of a digest.
type Result struct {
	Groups   []Group
	Standout map[string]bool
}

// IsStandout reports whether the video is in the top engagement tier.
func (r Result) IsStandout(id string) bool {
	return r.Standout[id]
}

// StandoutCount returns how many of n videos are flagged standout:
// the top fifth, rounded up, and at least one when n > 0.
func StandoutCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 4) / 5
}

// RankAndGroup sorts videos by likes per view (stable, descending), flags
// the top StandoutCount as standout, and groups them by the category in
// analyses. Groups are ordered by size, ties by first appearance in the
// input. Videos inside a group keep their input order.
func RankAndGroup(videos []video.Video, analyses map[string]video.Analysis) Result {
	res := Result{Standout: make(map[string]bool)}
	if len(videos) == 0 {
		return res
	}

	ranked := make([]video.Video, len(videos))
	copy(ranked, videos)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EngagementRatio() > ranked[j].EngagementRatio()
	})
	for _, v := range ranked[:StandoutCount(len(ranked))] {
		res.Standout[v.ID] = true
	}

	index := make(map[video.Category]int)
	for _, v := range videos {
		cat := video.CategoryOther
		if a, ok := analyses[v.ID]; ok && a.Category != "" {
			cat = a.Category
		}
		i, ok := index[cat]
		if !ok {
			i = len(res.Groups)
			index[cat] = i
			res.Groups = append(res.Groups, Group{Category: cat})
		}
		res.Groups[i].Videos = append(res.Groups[i].Videos, v)
	}

	sort.SliceStable(res.Groups, func(i, j int) bool {
		return len(res.Groups[i].Videos) > len(res.Groups[j].Videos)
	})
	return res
}
