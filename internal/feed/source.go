package feed

import (
	"context"

	"example.com/socialfeed/internal/models"
)

// FollowGraph answers "who does this user follow". Edges are directed and an
// unknown user has no followees.
type FollowGraph interface {
	Followees(ctx context.Context, userID string) ([]string, error)
}

// PostStore resolves posts and repost records by author, reposter or id.
type PostStore interface {
	PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
	RepostsByReposters(ctx context.Context, reposterIDs []string) ([]models.Repost, error)
	PostsByIDs(ctx context.Context, postIDs []string) ([]models.Post, error)
}

// Source is everything the engine reads from.
type Source interface {
	FollowGraph
	PostStore
}
