package feed

import (
	"reflect"
	"testing"

	"example.com/socialfeed/internal/models"
)

func TestAggregateReposts_MaxDateAndReposters(t *testing.T) {
	reposts := []models.Repost{
		{ID: "r3", ReposterID: "c", PostID: "p1", Created: day(7)},
		{ID: "r2", ReposterID: "b", PostID: "p1", Created: day(4)},
		{ID: "r1", ReposterID: "c", PostID: "p2", Created: day(5)},
		{ID: "r4", ReposterID: "b", PostID: "p1", Created: day(6)},
	}

	got := AggregateReposts([]string{"b", "c"}, reposts)

	if len(got) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(got))
	}
	p1 := got["p1"]
	if !p1.Latest.Equal(day(7)) {
		t.Fatalf("p1 latest = %s, want %s", p1.Latest, day(7))
	}
	if !reflect.DeepEqual(p1.Reposters, []string{"b", "c"}) {
		t.Fatalf("p1 reposters = %v, want [b c]", p1.Reposters)
	}
	if !got["p2"].Latest.Equal(day(5)) {
		t.Fatalf("p2 latest = %s, want %s", got["p2"].Latest, day(5))
	}
}

func TestAggregateReposts_IgnoresOutsideReposters(t *testing.T) {
	reposts := []models.Repost{
		{ID: "r1", ReposterID: "b", PostID: "p1", Created: day(1)},
		{ID: "r2", ReposterID: "d", PostID: "p1", Created: day(9)},
		{ID: "r3", ReposterID: "d", PostID: "p2", Created: day(2)},
	}

	got := AggregateReposts([]string{"b"}, reposts)

	if _, ok := got["p2"]; ok {
		t.Fatal("post reposted only by outsiders must be absent")
	}
	if !got["p1"].Latest.Equal(day(1)) {
		t.Fatalf("outsider repost moved the date to %s", got["p1"].Latest)
	}
	if !reflect.DeepEqual(got["p1"].Reposters, []string{"b"}) {
		t.Fatalf("unexpected reposters %v", got["p1"].Reposters)
	}
}

func TestAggregateReposts_Empty(t *testing.T) {
	if got := AggregateReposts(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestAggregateReposts_DoesNotReorderInput(t *testing.T) {
	reposts := []models.Repost{
		{ID: "r2", ReposterID: "b", PostID: "p1", Created: day(2)},
		{ID: "r1", ReposterID: "b", PostID: "p1", Created: day(1)},
	}
	AggregateReposts([]string{"b"}, reposts)
	if reposts[0].ID != "r2" {
		t.Fatal("input slice was reordered")
	}
}

func TestRank(t *testing.T) {
	entries := []Entry{
		{Post: models.Post{ID: "b"}, EffectiveDate: day(1)},
		{Post: models.Post{ID: "c"}, EffectiveDate: day(3)},
		{Post: models.Post{ID: "a"}, EffectiveDate: day(1)},
	}

	Rank(entries)

	if got := ids(entries); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("Rank order = %v", got)
	}
	if Less(entries[1], entries[1]) {
		t.Fatal("Less must be irreflexive")
	}
}
