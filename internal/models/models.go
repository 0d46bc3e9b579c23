package models

import "time"

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Post is immutable once stored. ReplyTo is a bare reference and is never
// resolved when building feeds.
type Post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	ReplyTo  *string   `json:"reply_to,omitempty"`
	Created  time.Time `json:"created"`
}

// Repost records one repost action. The same user may repost a post more
// than once; each action is a separate record.
type Repost struct {
	ID         string    `json:"id"`
	ReposterID string    `json:"reposter_id"`
	PostID     string    `json:"post_id"`
	Created    time.Time `json:"created"`
}

// Follow is a directed edge: UserID follows FolloweeID.
type Follow struct {
	UserID     string `json:"user_id"`
	FolloweeID string `json:"followee_id"`
}

type EventKind string

const (
	EventPostCreated   EventKind = "post_created"
	EventRepostCreated EventKind = "repost_created"
	EventFollowCreated EventKind = "follow_created"
	EventFollowRemoved EventKind = "follow_removed"
)

// Event is published to Kafka after every successful write.
type Event struct {
	Kind     EventKind `json:"kind"`
	ActorID  string    `json:"actor_id"`
	PostID   string    `json:"post_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	At       time.Time `json:"at"`
}
