package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"example.com/socialfeed/internal/models"
	"github.com/samber/lo"
)

// MockStore simulates the store in memory for tests and local runs.
// It is safe for concurrent use; the feed engine reads it from several goroutines.
type MockStore struct {
	mu sync.RWMutex

	Users      map[string]string
	Follows    map[string][]string // follower -> followees
	Followers  map[string][]string // followee -> followers
	Posts      map[string]models.Post
	PostOrder  []string
	Reposts    []models.Repost
	ShouldFail bool // flag to simulate failures

	userCounter int
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:     make(map[string]string),
		Follows:   make(map[string][]string),
		Followers: make(map[string][]string),
		Posts:     make(map[string]models.Post),
	}
}

func (m *MockStore) Close() {}

// CreateUser simulates creating a new user; an existing username returns its id.
func (m *MockStore) CreateUser(ctx context.Context, username string) (string, error) {
	if m.ShouldFail {
		return "", errors.New("mock: create user failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.Users {
		if u == username {
			return id, nil
		}
	}
	m.userCounter++
	id := fmt.Sprintf("user_%d", m.userCounter)
	m.Users[id] = username
	return id, nil
}

func (m *MockStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	if m.ShouldFail {
		return models.User{}, errors.New("mock: get user failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.Users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return models.User{ID: userID, Username: name}, nil
}

// GetUserIDByUsername returns the user ID for a given username
func (m *MockStore) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	if m.ShouldFail {
		return "", errors.New("mock: get user by username failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, u := range m.Users {
		if u == username {
			return id, nil
		}
	}
	return "", nil
}

func (m *MockStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: list users failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := lo.MapToSlice(m.Users, func(id, name string) models.User {
		return models.User{ID: id, Username: name}
	})
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

// CreateFollow simulates creating a follow relationship
func (m *MockStore) CreateFollow(ctx context.Context, followerID, followeeID string) error {
	if m.ShouldFail {
		return errors.New("mock: follow failed")
	}
	if followerID == followeeID {
		return ErrSelfFollow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lo.Contains(m.Follows[followerID], followeeID) {
		return nil
	}
	m.Follows[followerID] = append(m.Follows[followerID], followeeID)
	m.Followers[followeeID] = append(m.Followers[followeeID], followerID)
	return nil
}

func (m *MockStore) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	if m.ShouldFail {
		return errors.New("mock: unfollow failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Follows[followerID] = lo.Without(m.Follows[followerID], followeeID)
	m.Followers[followeeID] = lo.Without(m.Followers[followeeID], followerID)
	return nil
}

func (m *MockStore) Followees(ctx context.Context, userID string) ([]string, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get followees failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Follows[userID]...), nil
}

// GetFollowers returns all followers of a given user
func (m *MockStore) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get followers failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Followers[userID]...), nil
}

// AddPost simulates adding a post
func (m *MockStore) AddPost(ctx context.Context, post models.Post) error {
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Posts[post.ID]; !ok {
		m.PostOrder = append(m.PostOrder, post.ID)
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MockStore) GetPost(ctx context.Context, postID string) (models.Post, error) {
	if m.ShouldFail {
		return models.Post{}, errors.New("mock: get post failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.Posts[postID]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return p, nil
}

func (m *MockStore) PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: posts by authors failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.Post
	for _, id := range m.PostOrder {
		p := m.Posts[id]
		if lo.Contains(authorIDs, p.AuthorID) {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MockStore) PostsByIDs(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: posts by ids failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []models.Post
	for _, id := range lo.Uniq(postIDs) {
		if p, ok := m.Posts[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MockStore) AddRepost(ctx context.Context, repost models.Repost) error {
	if m.ShouldFail {
		return errors.New("mock: add repost failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reposts = append(m.Reposts, repost)
	return nil
}

func (m *MockStore) RepostsByReposters(ctx context.Context, reposterIDs []string) ([]models.Repost, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: reposts by reposters failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Filter(m.Reposts, func(r models.Repost, _ int) bool {
		return lo.Contains(reposterIDs, r.ReposterID)
	}), nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, username string) (string, error) {
	return "", errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUser(ctx context.Context, userID string) (models.User, error) {
	return models.User{}, errors.New("mock store get user failed")
}

func (m *MockStoreFail) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	return "", errors.New("mock store get user by username failed")
}

func (m *MockStoreFail) ListUsers(ctx context.Context) ([]models.User, error) {
	return nil, errors.New("mock store list users failed")
}

func (m *MockStoreFail) CreateFollow(ctx context.Context, followerID, followeeID string) error {
	return errors.New("mock store create follow failed")
}

func (m *MockStoreFail) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	return errors.New("mock store delete follow failed")
}

func (m *MockStoreFail) Followees(ctx context.Context, userID string) ([]string, error) {
	return nil, errors.New("mock store get followees failed")
}

func (m *MockStoreFail) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	return nil, errors.New("mock store get followers failed")
}

func (m *MockStoreFail) AddPost(ctx context.Context, post models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) GetPost(ctx context.Context, postID string) (models.Post, error) {
	return models.Post{}, errors.New("mock store get post failed")
}

func (m *MockStoreFail) PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	return nil, errors.New("mock store posts by authors failed")
}

func (m *MockStoreFail) PostsByIDs(ctx context.Context, postIDs []string) ([]models.Post, error) {
	return nil, errors.New("mock store posts by ids failed")
}

func (m *MockStoreFail) AddRepost(ctx context.Context, repost models.Repost) error {
	return errors.New("mock store add repost failed")
}

func (m *MockStoreFail) RepostsByReposters(ctx context.Context, reposterIDs []string) ([]models.Repost, error) {
	return nil, errors.New("mock store reposts by reposters failed")
}
