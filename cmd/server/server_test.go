package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/cache"
	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/metrics"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

var testSecret = []byte("test-secret")

//
// --- Setup test server ---
//

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.MockStore
	kafka *appkafka.MockKafka
	cache *cache.MockCache
	reg   *prometheus.Registry
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMock()
	return setupTestServerWithStore(t, ms, ms)
}

// setupTestServerWithStore serves from st, which must be backed by ms.
func setupTestServerWithStore(t *testing.T, st store.StoreInterface, ms *store.MockStore) *testEnv {
	t.Helper()
	env := &testEnv{
		store: ms,
		kafka: &appkafka.MockKafka{},
		cache: cache.NewMock(),
		reg:   prometheus.NewRegistry(),
	}
	env.srv = New(Deps{
		Store:     st,
		Writer:    env.kafka,
		Cache:     env.cache,
		Metrics:   metrics.NewCollector(env.reg),
		Gatherer:  env.reg,
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	})
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

//
// --- Helpers ---
//

// generate JWT token for test user
func makeTestJWT(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return token
}

// send a JSON request and check the status code
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) []byte {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, expectedStatus, resp.StatusCode, string(out))
	}
	return out
}

func (e *testEnv) user(t *testing.T, name string) (string, string) {
	t.Helper()
	id, err := e.store.CreateUser(t.Context(), name)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return id, makeTestJWT(t, id)
}

func (e *testEnv) post(t *testing.T, token, body string) models.Post {
	t.Helper()
	var p models.Post
	out := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts", map[string]any{"body": body}, token, http.StatusOK)
	if err := json.Unmarshal(out, &p); err != nil {
		t.Fatalf("decode post failed: %v", err)
	}
	return p
}

func (e *testEnv) feed(t *testing.T, token string) []feed.Entry {
	t.Helper()
	var entries []feed.Entry
	out := sendJSONRequest(t, http.MethodGet, e.ts.URL+"/feed", nil, token, http.StatusOK)
	if err := json.Unmarshal(out, &entries); err != nil {
		t.Fatalf("decode feed failed: %v (%s)", err, out)
	}
	return entries
}

func eventKinds(msgs []kafka.Message) []string {
	kinds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		kinds = append(kinds, string(m.Key))
	}
	return kinds
}

//
// --- Tests ---
//

func TestCreateUser_IssuesTokenAndIsIdempotent(t *testing.T) {
	env := setupTestServer(t)

	var first, second map[string]string
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": "almaz"}, "", http.StatusOK), &first)
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": "almaz"}, "", http.StatusOK), &second)

	if first["user_id"] == "" || first["token"] == "" {
		t.Fatalf("expected user_id and token, got %v", first)
	}
	if first["user_id"] != second["user_id"] {
		t.Fatalf("same username produced different ids: %q vs %q", first["user_id"], second["user_id"])
	}

	// the issued token authenticates
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, first["token"], http.StatusOK)
}

func TestCreateUser_InvalidInput(t *testing.T) {
	env := setupTestServer(t)

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", `{"username":123}`, "", http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": ""}, "", http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": strings.Repeat("x", 51)}, "", http.StatusBadRequest)
}

func TestListUsers_OrderedByUsername(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "nur")
	env.user(t, "almaz")

	var users []models.User
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users", nil, "", http.StatusOK), &users)
	if len(users) != 2 || users[0].Username != "almaz" || users[1].Username != "nur" {
		t.Fatalf("unexpected users %+v", users)
	}
}

// full flow: follow -> post -> feed
func TestFollowAndFeedFlow(t *testing.T) {
	env := setupTestServer(t)
	almazID, almazToken := env.user(t, "almaz")
	nurID, nurToken := env.user(t, "nur")

	var edge models.Follow
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": nurID}, almazToken, http.StatusOK), &edge)
	if edge.UserID != almazID || edge.FolloweeID != nurID {
		t.Fatalf("unexpected follow edge %+v", edge)
	}
	p := env.post(t, nurToken, "Hello from Nur!")

	entries := env.feed(t, almazToken)
	if len(entries) != 1 || entries[0].Post.ID != p.ID || len(entries[0].Reposters) != 0 {
		t.Fatalf("unexpected feed %+v", entries)
	}

	// nur does not follow almaz back
	own := env.post(t, almazToken, "Almaz here")
	if got := env.feed(t, nurToken); len(got) != 1 || got[0].Post.ID != p.ID {
		t.Fatalf("follow must be directed, nur sees %+v", got)
	}
	if got := env.feed(t, almazToken); len(got) != 2 || got[0].Post.ID != own.ID {
		t.Fatalf("expected own newest post first, got %+v", got)
	}

	if kinds := eventKinds(env.kafka.Written()); strings.Join(kinds, ",") != "follow_created,post_created,post_created" {
		t.Fatalf("unexpected published events %v", kinds)
	}
}

func TestRepostFlow(t *testing.T) {
	env := setupTestServer(t)
	viewerID, viewerToken := env.user(t, "viewer")
	bobID, bobToken := env.user(t, "bob")
	_, carolToken := env.user(t, "carol")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": bobID}, viewerToken, http.StatusOK)
	p := env.post(t, carolToken, "carol's post")

	if got := env.feed(t, viewerToken); len(got) != 0 {
		t.Fatalf("non-followee post leaked into feed: %+v", got)
	}

	var rp models.Repost
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/reposts", map[string]any{"post_id": p.ID}, bobToken, http.StatusOK), &rp)
	if rp.ReposterID != bobID || rp.PostID != p.ID {
		t.Fatalf("unexpected repost %+v", rp)
	}

	// the viewer's feed was cached above; the worker would drop it on repost_created
	_ = env.cache.Invalidate(t.Context(), viewerID)

	entries := env.feed(t, viewerToken)
	if len(entries) != 1 || entries[0].Post.ID != p.ID {
		t.Fatalf("expected reposted post, got %+v", entries)
	}
	if len(entries[0].Reposters) != 1 || entries[0].Reposters[0] != bobID {
		t.Fatalf("unexpected reposters %v", entries[0].Reposters)
	}
	if !entries[0].EffectiveDate.Equal(rp.Created) {
		t.Fatalf("effective date %s, want repost time %s", entries[0].EffectiveDate, rp.Created)
	}
}

func TestRepost_UnknownPost(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "bob")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/reposts", map[string]any{"post_id": "missing"}, token, http.StatusNotFound)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/reposts", map[string]any{}, token, http.StatusBadRequest)
}

func TestFollow_Errors(t *testing.T) {
	env := setupTestServer(t)
	almazID, token := env.user(t, "almaz")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", `{"followee_id":1}`, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": almazID}, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": "ghost"}, token, http.StatusNotFound)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": almazID}, "", http.StatusUnauthorized)
}

func TestUnfollow_RemovesPostsFromFeed(t *testing.T) {
	env := setupTestServer(t)
	almazID, almazToken := env.user(t, "almaz")
	nurID, nurToken := env.user(t, "nur")

	var edge models.Follow
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow", map[string]any{"followee_id": nurID}, almazToken, http.StatusOK), &edge)
	if edge.UserID != almazID || edge.FolloweeID != nurID {
		t.Fatalf("unexpected follow edge %+v", edge)
	}
	env.post(t, nurToken, "hi")
	if got := env.feed(t, almazToken); len(got) != 1 {
		t.Fatalf("expected 1 entry before unfollow, got %d", len(got))
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/unfollow", map[string]any{"followee_id": nurID}, almazToken, http.StatusOK)
	if got := env.feed(t, almazToken); len(got) != 0 {
		t.Fatalf("expected empty feed after unfollow, got %+v", got)
	}
}

func TestCreatePost_Validation(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "almaz")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": ""}, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": strings.Repeat("a", 171)}, token, http.StatusBadRequest)
	// limit counts characters, not bytes
	env.post(t, token, strings.Repeat("ы", 170))

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": "re", "reply_to": "missing"}, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": "x"}, "", http.StatusUnauthorized)
}

func TestCreatePost_Reply(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "almaz")
	parent := env.post(t, token, "parent")

	var reply models.Post
	_ = json.Unmarshal(sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": "child", "reply_to": parent.ID}, token, http.StatusOK), &reply)
	if reply.ReplyTo == nil || *reply.ReplyTo != parent.ID {
		t.Fatalf("expected reply_to %q, got %v", parent.ID, reply.ReplyTo)
	}
}

func TestGetFeed_Anonymous(t *testing.T) {
	env := setupTestServer(t)
	out := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, "", http.StatusOK)
	if strings.TrimSpace(string(out)) != "[]" {
		t.Fatalf("expected [], got %s", out)
	}
}

func TestGetFeed_InvalidTokenIsAnonymous(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "viewer")
	env.post(t, token, "mine")

	otherSecret, _ := middleware.IssueToken([]byte("other-secret"), "viewer", time.Hour)
	for _, bad := range []string{"garbage", otherSecret} {
		out := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, bad, http.StatusOK)
		if strings.TrimSpace(string(out)) != "[]" {
			t.Fatalf("expected [] for token %q, got %s", bad, out)
		}
	}
}

func TestGetFeed_ServedFromCache(t *testing.T) {
	env := setupTestServer(t)
	viewerID, token := env.user(t, "viewer")
	env.post(t, token, "mine")

	env.feed(t, token)
	if _, ok := env.cache.Feeds[viewerID]; !ok {
		t.Fatal("expected computed feed to be cached")
	}

	// a write that bypasses the server is invisible until invalidation
	_ = env.store.AddPost(t.Context(), models.Post{ID: "direct", AuthorID: viewerID, Body: "x", Created: time.Now()})
	if got := env.feed(t, token); len(got) != 1 {
		t.Fatalf("expected cached feed of 1 entry, got %d", len(got))
	}
	_ = env.cache.Invalidate(t.Context(), viewerID)
	if got := env.feed(t, token); len(got) != 2 {
		t.Fatalf("expected recomputed feed of 2 entries, got %d", len(got))
	}

	body := string(sendJSONRequest(t, http.MethodGet, env.ts.URL+"/metrics", nil, "", http.StatusOK))
	if !strings.Contains(body, `socialfeed_feed_cache_lookups_total{result="hit"} 1`) {
		t.Fatalf("expected one cache hit in metrics:\n%s", body)
	}
}

// pausingStore holds the first PostsByAuthors call after its read until
// resume is closed, so a write can land while a feed is being computed.
type pausingStore struct {
	*store.MockStore
	once   sync.Once
	paused chan struct{}
	resume chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		MockStore: store.NewMock(),
		paused:    make(chan struct{}),
		resume:    make(chan struct{}),
	}
}

func (p *pausingStore) PostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	posts, err := p.MockStore.PostsByAuthors(ctx, authorIDs)
	p.once.Do(func() {
		close(p.paused)
		<-p.resume
	})
	return posts, err
}

func TestGetFeed_OwnPostDuringComputeIsNotHiddenByCache(t *testing.T) {
	ps := newPausingStore()
	env := setupTestServerWithStore(t, ps, ps.MockStore)
	_, token := env.user(t, "viewer")

	type result struct {
		status int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/feed", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- result{err: err}
			return
		}
		resp.Body.Close()
		done <- result{status: resp.StatusCode}
	}()

	select {
	case <-ps.paused:
	case <-time.After(5 * time.Second):
		t.Fatal("feed computation never reached the store")
	}

	p := env.post(t, token, "written mid-compute")
	close(ps.resume)

	res := <-done
	if res.err != nil || res.status != http.StatusOK {
		t.Fatalf("first feed request: status=%d err=%v", res.status, res.err)
	}

	entries := env.feed(t, token)
	if len(entries) != 1 || entries[0].Post.ID != p.ID {
		t.Fatalf("expected own post %q in feed, got %+v", p.ID, entries)
	}
}

func TestGetFeed_CacheFailureFallsBackToEngine(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "viewer")
	env.post(t, token, "mine")

	env.cache.ShouldFail = true
	if got := env.feed(t, token); len(got) != 1 {
		t.Fatalf("expected feed despite cache failure, got %+v", got)
	}
}

func TestGetFeed_StoreFailure(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "viewer")
	env.store.ShouldFail = true

	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, token, http.StatusInternalServerError)
}

// a broker outage does not fail writes that are already stored
func TestKafkaWriteError_DoesNotFailPost(t *testing.T) {
	env := setupTestServer(t)
	env.srv.kafkaWriter = &appkafka.MockKafkaFail{}
	userID, token := env.user(t, "almaz")

	p := env.post(t, token, "still stored")
	if _, err := env.store.GetPost(t.Context(), p.ID); err != nil {
		t.Fatalf("post not stored: %v", err)
	}
	if len(env.store.PostOrder) != 1 || env.store.Posts[p.ID].AuthorID != userID {
		t.Fatalf("unexpected store state %+v", env.store.Posts)
	}
}

func TestStoreCreateUserFail(t *testing.T) {
	env := setupTestServer(t)
	env.srv.store = &store.MockStoreFail{}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": "almaz"}, "", http.StatusInternalServerError)
}
