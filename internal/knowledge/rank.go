package knowledge

import "sort"

// SortHits orders hits by ascending distance, breaking ties by ascending
// issue number.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Record.IssueNumber < hits[j].Record.IssueNumber
	})
}

// topHits sorts hits and keeps at most k.
func topHits(hits []Hit, k int) []Hit {
	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
