package store

import (
	"context"
	"errors"
	"fmt"

	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the relational backend. Every feed read is a single
// `= ANY($1)` query, the same shape the Cassandra backend issues with IN.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgres runs the migrations and opens a connection pool.
func NewPostgres(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	if err := runPostgresMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.PostgresMaxConns > 0 {
		pcfg.MaxConns = int32(cfg.PostgresMaxConns)
	}
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logg.Info("store", "Connected to Postgres (dsn anonymized)")
	return &PostgresStore{DB: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.DB != nil {
		s.DB.Close()
		logg.Info("store", "Postgres pool closed")
	}
}

// --- User operations ---

func (s *PostgresStore) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `SELECT user_id FROM users WHERE username = $1`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		logg.Error("store", "Failed to query user by username", err)
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		INSERT INTO users (user_id, username) VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
		RETURNING user_id`,
		uuid.NewString(), username,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// username already taken; hand back the existing id
		return s.GetUserIDByUsername(ctx, username)
	}
	if err != nil {
		logg.Error("store", "Failed to create user", err)
		return "", err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return id, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	u := models.User{ID: userID}
	err := s.DB.QueryRow(ctx, `SELECT username FROM users WHERE user_id = $1`, userID).Scan(&u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to get user", err)
		return models.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.DB.Query(ctx, `SELECT user_id, username FROM users ORDER BY username`)
	if err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}
	defer rows.Close()

	res := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- Follow operations ---

func (s *PostgresStore) CreateFollow(ctx context.Context, userID, followeeID string) error {
	if userID == followeeID {
		return ErrSelfFollow
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO follows (user_id, followee_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		userID, followeeID,
	)
	if err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}
	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return nil
}

func (s *PostgresStore) DeleteFollow(ctx context.Context, userID, followeeID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM follows WHERE user_id = $1 AND followee_id = $2`, userID, followeeID)
	if err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}
	logg.Info("store", "Follow relationship removed (user IDs anonymized)")
	return nil
}

func (s *PostgresStore) Followees(ctx context.Context, userID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT followee_id FROM follows WHERE user_id = $1`, userID)
}

func (s *PostgresStore) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM follows WHERE followee_id = $1`, userID)
}

func (s *PostgresStore) queryIDs(ctx context.Context, q, userID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, q, userID)
	if err != nil {
		logg.Error("store", "Failed to read follow edges", err)
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan follow edges: %w", err)
	}
	return ids, nil
}

// --- Post operations ---

func (s *PostgresStore) AddPost(ctx context.Context, post models.Post) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO posts (post_id, author_id, body, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		post.ID, post.AuthorID, post.Body, post.ReplyTo, post.Created,
	)
	if err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}
	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (models.Post, error) {
	posts, err := s.PostsByIDs(ctx, []string{postID})
	if err != nil {
		return models.Post{}, err
	}
	if len(posts) == 0 {
		return models.Post{}, ErrNotFound
	}
	return posts[0], nil
}

func (s *PostgresStore) PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	const q = `
	SELECT post_id, author_id, body, reply_to, created_at
	FROM posts
	WHERE author_id = ANY($1)
	ORDER BY created_at DESC;
	`
	return s.queryPosts(ctx, q, authorIDs)
}

func (s *PostgresStore) PostsByIDs(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	const q = `
	SELECT post_id, author_id, body, reply_to, created_at
	FROM posts
	WHERE post_id = ANY($1);
	`
	return s.queryPosts(ctx, q, postIDs)
}

func (s *PostgresStore) queryPosts(ctx context.Context, q string, ids []string) ([]models.Post, error) {
	rows, err := s.DB.Query(ctx, q, ids)
	if err != nil {
		logg.Error("store", "Failed to query posts", err)
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var res []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Body, &p.ReplyTo, &p.Created); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- Repost operations ---

func (s *PostgresStore) AddRepost(ctx context.Context, repost models.Repost) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reposts (repost_id, reposter_id, post_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		repost.ID, repost.ReposterID, repost.PostID, repost.Created,
	)
	if err != nil {
		logg.Error("store", "Failed to add repost", err)
		return err
	}
	logg.Info("store", "Repost added (IDs anonymized)")
	return nil
}

func (s *PostgresStore) RepostsByReposters(ctx context.Context, reposterIDs []string) ([]models.Repost, error) {
	if len(reposterIDs) == 0 {
		return nil, nil
	}
	const q = `
	SELECT repost_id, reposter_id, post_id, created_at
	FROM reposts
	WHERE reposter_id = ANY($1)
	ORDER BY created_at DESC;
	`
	rows, err := s.DB.Query(ctx, q, reposterIDs)
	if err != nil {
		logg.Error("store", "Failed to read reposts", err)
		return nil, fmt.Errorf("query reposts: %w", err)
	}
	defer rows.Close()

	var res []models.Repost
	for rows.Next() {
		var r models.Repost
		if err := rows.Scan(&r.ID, &r.ReposterID, &r.PostID, &r.Created); err != nil {
			return nil, fmt.Errorf("scan repost: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
