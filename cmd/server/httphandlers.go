package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"example.com/socialfeed/internal/cache"
	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/google/uuid"
)

const (
	maxUsernameLen = 50
	maxPostLen     = 170
)

// --- HTTP Handlers ---

// createUserHandler registers a username, or returns the existing id for it.
// Expects JSON body: {"username": "example"}
// Returns JSON response: {"user_id": <id>, "token": <jwt>}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/users", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body.Username) == 0 || len(body.Username) > maxUsernameLen {
		logg.Info("http/users", "Invalid username length")
		http.Error(w, "username must be 1-50 characters", http.StatusBadRequest)
		return
	}

	userID, err := s.store.GetUserIDByUsername(r.Context(), body.Username)
	if err != nil {
		logg.Error("http/users", "Failed to query existing username", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if userID == "" {
		userID, err = s.store.CreateUser(r.Context(), body.Username)
		if err != nil {
			logg.Error("http/users", "Failed to create user", err)
			http.Error(w, "failed to create user", http.StatusInternalServerError)
			return
		}
		logg.Info("http/users", "User created successfully with user_id="+userID)
	} else {
		logg.Info("http/users", "User already exists, returning existing user_id="+userID)
	}

	tokenStr, err := middleware.IssueToken(s.jwtSecret, userID, s.tokenTTL)
	if err != nil {
		logg.Error("http/users", "Failed to sign token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"user_id": userID,
		"token":   tokenStr,
	})
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		logg.Error("http/users", "Failed to list users", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, users)
}

// followHandler creates a follow edge from the token's user to followee_id.
// Expects JSON body: {"followee_id": "<id>"}
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFollow(w, r, "http/follow")
	if !ok {
		return
	}

	if err := s.store.CreateFollow(r.Context(), f.UserID, f.FolloweeID); err != nil {
		if errors.Is(err, store.ErrSelfFollow) {
			http.Error(w, "cannot follow yourself", http.StatusBadRequest)
			return
		}
		logg.Error("http/follow", "Failed to create follow relationship", err)
		http.Error(w, "failed to follow", http.StatusInternalServerError)
		return
	}

	s.afterWrite(r.Context(), "http/follow", models.Event{
		Kind:     models.EventFollowCreated,
		ActorID:  f.UserID,
		TargetID: f.FolloweeID,
	})
	logg.Info("http/follow", "User "+f.UserID+" followed "+f.FolloweeID)
	writeJSON(w, f)
}

// unfollowHandler removes the follow edge; removing a missing edge is not an error.
func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFollow(w, r, "http/unfollow")
	if !ok {
		return
	}

	if err := s.store.DeleteFollow(r.Context(), f.UserID, f.FolloweeID); err != nil {
		logg.Error("http/unfollow", "Failed to delete follow relationship", err)
		http.Error(w, "failed to unfollow", http.StatusInternalServerError)
		return
	}

	s.afterWrite(r.Context(), "http/unfollow", models.Event{
		Kind:     models.EventFollowRemoved,
		ActorID:  f.UserID,
		TargetID: f.FolloweeID,
	})
	logg.Info("http/unfollow", "User "+f.UserID+" unfollowed "+f.FolloweeID)
	writeJSON(w, f)
}

// decodeFollow builds the follow edge from the caller and the body, writing
// the error response itself when the edge is not acceptable.
func (s *Server) decodeFollow(w http.ResponseWriter, r *http.Request, module string) (models.Follow, bool) {
	var body struct {
		FolloweeID string `json:"followee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error(module, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return models.Follow{}, false
	}
	defer r.Body.Close()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized follow attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return models.Follow{}, false
	}
	if body.FolloweeID == "" {
		http.Error(w, "followee_id is required", http.StatusBadRequest)
		return models.Follow{}, false
	}
	if userID == body.FolloweeID {
		http.Error(w, "cannot follow yourself", http.StatusBadRequest)
		return models.Follow{}, false
	}

	if _, err := s.store.GetUser(r.Context(), body.FolloweeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return models.Follow{}, false
		}
		logg.Error(module, "Failed to look up followee", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return models.Follow{}, false
	}
	return models.Follow{UserID: userID, FolloweeID: body.FolloweeID}, true
}

// createPostHandler stores a post and publishes a post_created event.
// Expects JSON body: {"body": "post content", "reply_to": "<post id>"}
// Returns JSON response with created post data.
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body    string  `json:"body"`
		ReplyTo *string `json:"reply_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/posts", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info("http/posts", "Unauthorized post creation attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if n := utf8.RuneCountInString(body.Body); n == 0 || n > maxPostLen {
		logg.Info("http/posts", "Post body length invalid for user_id="+userID)
		http.Error(w, "post body must be 1-170 characters", http.StatusBadRequest)
		return
	}

	if body.ReplyTo != nil && *body.ReplyTo == "" {
		body.ReplyTo = nil
	}
	if body.ReplyTo != nil {
		if _, err := s.store.GetPost(r.Context(), *body.ReplyTo); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "reply_to post not found", http.StatusBadRequest)
				return
			}
			logg.Error("http/posts", "Failed to look up reply_to post", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	post := models.Post{
		ID:       uuid.NewString(),
		AuthorID: userID,
		Body:     body.Body,
		ReplyTo:  body.ReplyTo,
		Created:  time.Now().UTC(),
	}

	if err := s.store.AddPost(r.Context(), post); err != nil {
		logg.Error("http/posts", "Failed to save post", err)
		http.Error(w, "failed to save post", http.StatusInternalServerError)
		return
	}

	s.afterWrite(r.Context(), "http/posts", models.Event{
		Kind:    models.EventPostCreated,
		ActorID: userID,
		PostID:  post.ID,
	})
	logg.Info("http/posts", "Post created successfully by user_id="+userID)

	writeJSON(w, post)
}

// createRepostHandler records a repost of an existing post.
// Expects JSON body: {"post_id": "<id>"}
func (s *Server) createRepostHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/reposts", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if body.PostID == "" {
		http.Error(w, "post_id is required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetPost(r.Context(), body.PostID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}
		logg.Error("http/reposts", "Failed to look up post", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	repost := models.Repost{
		ID:         uuid.NewString(),
		ReposterID: userID,
		PostID:     body.PostID,
		Created:    time.Now().UTC(),
	}
	if err := s.store.AddRepost(r.Context(), repost); err != nil {
		logg.Error("http/reposts", "Failed to save repost", err)
		http.Error(w, "failed to save repost", http.StatusInternalServerError)
		return
	}

	// The reposter's own feed never shows their reposts, so only followers
	// are affected; the worker takes care of them.
	s.publish("http/reposts", models.Event{
		Kind:    models.EventRepostCreated,
		ActorID: userID,
		PostID:  repost.PostID,
	})
	logg.Info("http/reposts", "Repost created by user_id="+userID)

	writeJSON(w, repost)
}

// getFeedHandler returns the caller's home feed, served from the cache when
// possible. Anonymous callers get an empty list.
func (s *Server) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, []feed.Entry{})
		return
	}

	entries, hit, err := s.cache.Get(r.Context(), userID)
	if err != nil {
		logg.Error("http/feed", "Feed cache lookup failed", err)
	}
	if hit {
		s.metrics.RecordCacheHit()
		writeJSON(w, entries)
		return
	}
	s.metrics.RecordCacheMiss()

	// Read before computing: an invalidation in between makes Set a no-op.
	gen, genErr := s.cache.Generation(r.Context(), userID)
	if genErr != nil {
		logg.Error("http/feed", "Feed cache generation lookup failed", genErr)
	}

	entries, err = s.engine.ComputeFeed(r.Context(), userID)
	if err != nil {
		logg.Error("http/feed", "Failed to compute feed for user_id="+userID, err)
		http.Error(w, "failed to compute feed", http.StatusInternalServerError)
		return
	}

	if genErr == nil {
		err := s.cache.Set(r.Context(), userID, gen, entries)
		switch {
		case errors.Is(err, cache.ErrStaleGeneration):
			logg.Debug("http/feed", "Feed for user_id="+userID+" changed while computing, not cached")
		case err != nil:
			logg.Error("http/feed", "Failed to cache feed", err)
		}
	}

	logg.Debug("http/feed", "Feed computed for user_id="+userID)
	writeJSON(w, entries)
}

// afterWrite drops the actor's cached feed so they see their own write at
// once, then publishes ev for everybody else.
func (s *Server) afterWrite(ctx context.Context, module string, ev models.Event) {
	if err := s.cache.Invalidate(ctx, ev.ActorID); err != nil {
		logg.Error(module, "Failed to invalidate own feed", err)
	}
	s.publish(module, ev)
}

// publish logs broker errors instead of returning them; the write it
// announces is already stored.
func (s *Server) publish(module string, ev models.Event) {
	if s.kafkaWriter == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := s.kafkaWriter.WriteEvent(ev); err != nil {
		logg.Error(module, "Failed to publish "+string(ev.Kind)+" event", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}
