package feed

import "sort"

// Less orders entries by EffectiveDate, newest first. Equal dates fall back
// to ascending post id so that the order never depends on fetch order.
func Less(a, b Entry) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	return a.Post.ID < b.Post.ID
}

// Rank sorts entries in place.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}
