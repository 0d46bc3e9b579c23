package feed

import (
	"slices"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/samber/lo"
)

// Aggregate collapses every qualifying repost of one post.
type Aggregate struct {
	PostID    string
	Latest    time.Time
	Reposters []string

	seen map[string]struct{}
}

// AggregateReposts folds repost records made by reposters into one Aggregate
// per reposted post id. Records by anyone outside reposters are ignored.
//
// Records are folded in (Created, ID) order, so Reposters lists users by
// their first repost of the post no matter how the store ordered them.
func AggregateReposts(reposters []string, reposts []models.Repost) map[string]*Aggregate {
	allowed := lo.SliceToMap(reposters, func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	ordered := lo.Filter(reposts, func(r models.Repost, _ int) bool {
		_, ok := allowed[r.ReposterID]
		return ok
	})
	slices.SortStableFunc(ordered, func(a, b models.Repost) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	out := make(map[string]*Aggregate)
	for _, r := range ordered {
		agg, ok := out[r.PostID]
		if !ok {
			agg = &Aggregate{
				PostID: r.PostID,
				Latest: r.Created,
				seen:   make(map[string]struct{}),
			}
			out[r.PostID] = agg
		}
		if r.Created.After(agg.Latest) {
			agg.Latest = r.Created
		}
		if _, dup := agg.seen[r.ReposterID]; !dup {
			agg.seen[r.ReposterID] = struct{}{}
			agg.Reposters = append(agg.Reposters, r.ReposterID)
		}
	}
	return out
}
