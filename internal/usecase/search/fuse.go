package search

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/partsearch/internal/domain/search/match"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
)

// fuse merges weighted matches into a ranked list.
// Matches are sorted by score descending; equal scores keep input order.
// The first occurrence of each product name wins, so a product keeps its best score.
func fuse(matches []match.Match, limit int, images ImageLocator) []result.Result {
	sorted := slices.Clone(matches)
	slices.SortStableFunc(sorted, func(a, b match.Match) int {
		return cmp.Compare(b.Score(), a.Score())
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]result.Result, 0, min(limit, len(sorted)))

	for i := range sorted {
		if len(out) >= limit {
			break
		}
		p := sorted[i].Product()
		if _, dup := seen[p.Name()]; dup {
			continue
		}
		seen[p.Name()] = struct{}{}

		var imagePath string
		if images != nil && p.HasImage() {
			imagePath = images.Resolve(p.Image())
		}

		out = append(out, result.New(
			p.Name(), p.Description(), p.Category(), p.Application(),
			imagePath, sorted[i].Score(), sorted[i].Modality(),
		))
	}
	return out
}
