package store

import (
	"context"
	"errors"
	"fmt"

	"example.com/socialfeed/internal/feed"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
)

var logg = logger.New()

var (
	ErrNotFound   = errors.New("store: not found")
	ErrSelfFollow = errors.New("store: user cannot follow themselves")
)

// StoreInterface is the full persistence surface. It satisfies feed.Source,
// so any implementation can back the feed engine directly.
type StoreInterface interface {
	feed.Source

	CreateUser(ctx context.Context, username string) (string, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserIDByUsername(ctx context.Context, username string) (string, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	CreateFollow(ctx context.Context, userID, followeeID string) error
	DeleteFollow(ctx context.Context, userID, followeeID string) error
	GetFollowers(ctx context.Context, userID string) ([]string, error)

	AddPost(ctx context.Context, post models.Post) error
	GetPost(ctx context.Context, postID string) (models.Post, error)
	AddRepost(ctx context.Context, repost models.Repost) error

	Close()
}

// New opens the backend selected by cfg.StoreDriver and applies its migrations.
func New(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "", "cassandra":
		return NewCassandra(cfg)
	case "postgres":
		return NewPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*PostgresStore)(nil)
	_ StoreInterface = (*MockStore)(nil)
	_ StoreInterface = (*MockStoreFail)(nil)
)
