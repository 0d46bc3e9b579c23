package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- User operations ---

// GetUserIDByUsername returns the existing user_id by username.
// If the user does not exist, it returns empty string without an error.
func (s *Store) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", nil
		}
		logg.Error("store", "Failed to query user by username", err)
		return "", err
	}
	return id, nil
}

// CreateUser creates a new user if the username does not exist.
// Returns the existing user_id if username already exists.
func (s *Store) CreateUser(ctx context.Context, username string) (string, error) {
	existingID, err := s.GetUserIDByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if existingID != "" {
		return existingID, nil
	}

	id := gocql.TimeUUID().String()

	// Insert into users_by_username table using CAS
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return "", err
	}

	if !applied {
		// Another process already created this user
		return s.GetUserIDByUsername(ctx, username)
	}

	err = s.Session.Query(`
		INSERT INTO users (user_id, username)
		VALUES (?, ?)`,
		id, username,
	).WithContext(ctx).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		return "", err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	u := models.User{ID: userID}
	err := s.Session.Query(
		`SELECT username FROM users WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Scan(&u.Username)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to get user", err)
		return models.User{}, err
	}
	return u, nil
}

// ListUsers scans the users table and orders the result by username.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.Session.Query(`SELECT user_id, username FROM users`).WithContext(ctx).Iter()

	var id, name string
	res := []models.User{}
	for iter.Scan(&id, &name) {
		res = append(res, models.User{ID: id, Username: name})
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

// --- Follow operations ---

func (s *Store) CreateFollow(ctx context.Context, userID, followeeID string) error {
	if userID == followeeID {
		return ErrSelfFollow
	}
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO follows (user_id, followee_id) VALUES (?, ?)`, userID, followeeID)
	batch.Query(`INSERT INTO followers_by_followee (followee_id, user_id) VALUES (?, ?)`, followeeID, userID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return nil
}

func (s *Store) DeleteFollow(ctx context.Context, userID, followeeID string) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM follows WHERE user_id = ? AND followee_id = ?`, userID, followeeID)
	batch.Query(`DELETE FROM followers_by_followee WHERE followee_id = ? AND user_id = ?`, followeeID, userID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship removed (user IDs anonymized)")
	return nil
}

func (s *Store) Followees(ctx context.Context, userID string) ([]string, error) {
	return s.scanIDs(ctx, `SELECT followee_id FROM follows WHERE user_id = ?`, userID)
}

func (s *Store) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	return s.scanIDs(ctx, `SELECT user_id FROM followers_by_followee WHERE followee_id = ?`, userID)
}

func (s *Store) scanIDs(ctx context.Context, stmt, userID string) ([]string, error) {
	iter := s.Session.Query(stmt, userID).WithContext(ctx).Iter()

	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read follow edges", err)
		return nil, err
	}
	return res, nil
}

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts (post_id, author_id, body, reply_to, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Body, post.ReplyTo, post.Created,
	)
	batch.Query(`
		INSERT INTO posts_by_author (author_id, created_at, post_id, body, reply_to)
		VALUES (?, ?, ?, ?, ?)`,
		post.AuthorID, post.Created, post.ID, post.Body, post.ReplyTo,
	)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, postID string) (models.Post, error) {
	posts, err := s.PostsByIDs(ctx, []string{postID})
	if err != nil {
		return models.Post{}, err
	}
	if len(posts) == 0 {
		return models.Post{}, ErrNotFound
	}
	return posts[0], nil
}

func (s *Store) PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	iter := s.Session.Query(`
		SELECT post_id, author_id, body, reply_to, created_at
		FROM posts_by_author WHERE author_id IN ?`,
		authorIDs,
	).WithContext(ctx).Iter()

	res, err := scanPosts(iter)
	if err != nil {
		logg.Error("store", "Failed to read posts by authors", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) PostsByIDs(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	iter := s.Session.Query(`
		SELECT post_id, author_id, body, reply_to, created_at
		FROM posts WHERE post_id IN ?`,
		postIDs,
	).WithContext(ctx).Iter()

	res, err := scanPosts(iter)
	if err != nil {
		logg.Error("store", "Failed to read posts by ids", err)
		return nil, err
	}
	return res, nil
}

func scanPosts(iter *gocql.Iter) ([]models.Post, error) {
	var res []models.Post
	var pid, aid, body string
	var replyTo *string
	var created time.Time

	for iter.Scan(&pid, &aid, &body, &replyTo, &created) {
		res = append(res, models.Post{
			ID:       pid,
			AuthorID: aid,
			Body:     body,
			ReplyTo:  replyTo,
			Created:  created,
		})
		replyTo = nil
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- Repost operations ---

func (s *Store) AddRepost(ctx context.Context, repost models.Repost) error {
	if err := s.Session.Query(`
		INSERT INTO reposts_by_reposter (reposter_id, created_at, repost_id, post_id)
		VALUES (?, ?, ?, ?)`,
		repost.ReposterID, repost.Created, repost.ID, repost.PostID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add repost", err)
		return err
	}

	logg.Info("store", "Repost added (IDs anonymized)")
	return nil
}

func (s *Store) RepostsByReposters(ctx context.Context, reposterIDs []string) ([]models.Repost, error) {
	if len(reposterIDs) == 0 {
		return nil, nil
	}
	iter := s.Session.Query(`
		SELECT repost_id, reposter_id, post_id, created_at
		FROM reposts_by_reposter WHERE reposter_id IN ?`,
		reposterIDs,
	).WithContext(ctx).Iter()

	var res []models.Repost
	var rid, uid, pid string
	var created time.Time
	for iter.Scan(&rid, &uid, &pid, &created) {
		res = append(res, models.Repost{
			ID:         rid,
			ReposterID: uid,
			PostID:     pid,
			Created:    created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read reposts", err)
		return nil, err
	}
	return res, nil
}
